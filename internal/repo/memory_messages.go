package repo

import (
	"context"
	"sync"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

type MemoryMessageRepo struct {
	mu    sync.RWMutex
	byID  map[string]*model.Message
	order []string
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{byID: make(map[string]*model.Message)}
}

func (r *MemoryMessageRepo) List(ctx context.Context, limit int) ([]model.Message, error) {
	limit = normalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Message, 0, min(limit, len(r.order)))
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *r.byID[r.order[i]])
	}
	return out, nil
}

func (r *MemoryMessageRepo) Get(ctx context.Context, id string) (model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	return *m, nil
}

func (r *MemoryMessageRepo) Put(ctx context.Context, m model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return ErrDuplicate
	}
	r.byID[m.ID] = &m
	r.order = append(r.order, m.ID)
	return nil
}

func (r *MemoryMessageRepo) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	m.Status = status
	return *m, nil
}

func (r *MemoryMessageRepo) AttachTicket(ctx context.Context, id, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.TelavoxTicketID = ticketID
	return nil
}
