package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/LeventeLantos/sms-inbox/internal/client"
	"github.com/LeventeLantos/sms-inbox/internal/model"
	"github.com/LeventeLantos/sms-inbox/internal/notify"
	"github.com/LeventeLantos/sms-inbox/internal/repo"
	"github.com/LeventeLantos/sms-inbox/internal/webhook"
)

// OutgoingSender is the From value stored on replies.
const OutgoingSender = "You"

type Gateway interface {
	Send(ctx context.Context, to, message string) (client.SendResult, error)
}

type Ticketer interface {
	File(ctx context.Context, msg model.Message) (ticketID string, err error)
}

type Inbox struct {
	repo      repo.MessageRepository
	gateway   Gateway
	pub       notify.Publisher
	listLimit int
	now       func() time.Time

	ticketer      Ticketer
	ticketTimeout time.Duration
	pending       sync.WaitGroup
}

func NewInbox(r repo.MessageRepository, g Gateway, pub notify.Publisher, listLimit int) *Inbox {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Inbox{
		repo:      r,
		gateway:   g,
		pub:       pub,
		listLimit: listLimit,
		now:       time.Now,
	}
}

// WithTicketing files every newly received message as a ticket after it is
// stored. Failures are logged and never reach the webhook caller.
func (s *Inbox) WithTicketing(t Ticketer, timeout time.Duration) *Inbox {
	s.ticketer = t
	s.ticketTimeout = timeout
	return s
}

func (s *Inbox) List(ctx context.Context) ([]model.Message, error) {
	items, err := s.repo.List(ctx, s.listLimit)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return items, nil
}

func (s *Inbox) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, error) {
	if !status.Valid() {
		return model.Message{}, &ValidationError{Msg: "Invalid status: must be one of unread, read, sent"}
	}

	m, err := s.repo.UpdateStatus(ctx, id, status)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Message{}, err
	}
	if err != nil {
		return model.Message{}, &StoreError{Op: "update", Err: err}
	}

	s.publish(ctx, notify.EventMessageUpdated, m)
	return m, nil
}

type ReplyResult struct {
	ProviderID string
	Message    model.Message
}

// Reply sends through the gateway and then stores the outgoing record. A
// store failure after a successful send is reported as a StoreError; the
// SMS has already left.
func (s *Inbox) Reply(ctx context.Context, to, message string) (ReplyResult, error) {
	if to == "" || message == "" {
		return ReplyResult{}, &ValidationError{Msg: "Missing required fields: to and message"}
	}

	res, err := s.gateway.Send(ctx, to, message)
	if err != nil {
		return ReplyResult{}, err
	}
	slog.Info("sms sent", "to", to, "provider_id", res.ProviderID)

	m := model.Message{
		ID:        res.ProviderID,
		From:      OutgoingSender,
		To:        to,
		Message:   message,
		Timestamp: model.FormatTimestamp(res.SentAt),
		Status:    model.Sent,
		Direction: model.Outgoing,
	}
	if err := s.repo.Put(ctx, m); err != nil {
		return ReplyResult{}, &StoreError{Op: "put", Err: err}
	}

	s.publish(ctx, notify.EventNewMessage, m)
	return ReplyResult{ProviderID: res.ProviderID, Message: m}, nil
}

// Receive stores an inbound webhook payload. A payload whose id is already
// stored is acknowledged without side effects.
func (s *Inbox) Receive(ctx context.Context, p webhook.Payload) (model.Message, error) {
	now := s.now()

	p, err := p.Normalize(now)
	if err != nil {
		return model.Message{}, &ValidationError{Msg: "Missing required fields"}
	}

	m := model.Message{
		ID:        p.ID,
		From:      p.From,
		To:        p.To,
		Message:   p.Message,
		Timestamp: model.FormatTimestamp(now),
		Status:    model.Unread,
		Direction: model.Incoming,
	}

	err = s.repo.Put(ctx, m)
	if errors.Is(err, repo.ErrDuplicate) {
		slog.Info("duplicate webhook acknowledged", "id", m.ID)
		return m, nil
	}
	if err != nil {
		return model.Message{}, &StoreError{Op: "put", Err: err}
	}

	s.publish(ctx, notify.EventNewMessage, m)
	s.fileTicket(ctx, m)
	return m, nil
}

// Wait blocks until background ticketing work has finished.
func (s *Inbox) Wait() {
	s.pending.Wait()
}

func (s *Inbox) fileTicket(ctx context.Context, m model.Message) {
	if s.ticketer == nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		tctx := context.WithoutCancel(ctx)
		if s.ticketTimeout > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(tctx, s.ticketTimeout)
			defer cancel()
		}

		ticketID, err := s.ticketer.File(tctx, m)
		if err != nil {
			slog.Error("ticketing failed", "id", m.ID, "err", err)
			return
		}
		slog.Info("ticket filed", "id", m.ID, "ticket_id", ticketID)

		updated, err := s.repo.Get(tctx, m.ID)
		if err != nil {
			slog.Warn("reload after ticketing failed", "id", m.ID, "err", err)
			return
		}
		s.publish(tctx, notify.EventMessageUpdated, updated)
	}()
}

func (s *Inbox) publish(ctx context.Context, typ string, m model.Message) {
	if err := s.pub.Publish(ctx, notify.Event{Type: typ, Message: m}); err != nil {
		slog.Warn("notify failed", "type", typ, "id", m.ID, "err", err)
	}
}
