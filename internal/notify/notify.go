// Package notify fans store changes out to connected inbox clients.
package notify

import (
	"context"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

const (
	EventNewMessage     = "new-message"
	EventMessageUpdated = "message-updated"
)

type Event struct {
	Type    string        `json:"type"`
	Message model.Message `json:"message"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop is used in pull mode, where clients poll the message list instead.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
