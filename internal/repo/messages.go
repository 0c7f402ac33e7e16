package repo

import (
	"context"
	"errors"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrDuplicate = errors.New("message already exists")
)

const DefaultListLimit = 100

// MessageRepository stores inbox messages keyed by id. List returns the
// newest messages first.
type MessageRepository interface {
	List(ctx context.Context, limit int) ([]model.Message, error)
	Get(ctx context.Context, id string) (model.Message, error)
	Put(ctx context.Context, m model.Message) error
	UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, error)
	AttachTicket(ctx context.Context, id, ticketID string) error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
