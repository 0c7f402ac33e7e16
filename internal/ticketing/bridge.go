// Package ticketing mirrors inbound SMS into helpdesk tickets.
package ticketing

import (
	"context"
	"fmt"
	"strings"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

const DefaultCountryCode = "+46"

// DefaultMembers is the support roster every SMS ticket is assigned to.
var DefaultMembers = []string{"sms-support-1", "sms-support-2", "sms-support-3"}

type Client interface {
	CreateTicket(ctx context.Context, visitorID, subject string) (string, error)
	AssignMembers(ctx context.Context, ticketID string, members []string) error
	AddNote(ctx context.Context, ticketID, note string) error
}

type TicketStore interface {
	AttachTicket(ctx context.Context, id, ticketID string) error
}

// TicketingError names the step of the chain that failed.
type TicketingError struct {
	Step string
	Err  error
}

func (e *TicketingError) Error() string {
	return fmt.Sprintf("ticketing %s: %v", e.Step, e.Err)
}

func (e *TicketingError) Unwrap() error {
	return e.Err
}

type Bridge struct {
	client      Client
	store       TicketStore
	members     []string
	countryCode string
}

func NewBridge(client Client, store TicketStore, members []string, countryCode string) *Bridge {
	if len(members) == 0 {
		members = DefaultMembers
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &Bridge{
		client:      client,
		store:       store,
		members:     members,
		countryCode: countryCode,
	}
}

// File creates a ticket for msg, assigns the roster, adds an internal note
// and records the ticket id on the stored message. The first failing step
// aborts the rest.
func (b *Bridge) File(ctx context.Context, msg model.Message) (string, error) {
	ticketID, err := b.client.CreateTicket(ctx, VisitorID(msg.From, b.countryCode), "SMS from "+msg.From)
	if err != nil {
		return "", &TicketingError{Step: "create ticket", Err: err}
	}

	if err := b.client.AssignMembers(ctx, ticketID, b.members); err != nil {
		return ticketID, &TicketingError{Step: "assign members", Err: err}
	}

	note := fmt.Sprintf("SMS from %s: %s", msg.From, msg.Message)
	if err := b.client.AddNote(ctx, ticketID, note); err != nil {
		return ticketID, &TicketingError{Step: "add note", Err: err}
	}

	if err := b.store.AttachTicket(ctx, msg.ID, ticketID); err != nil {
		return ticketID, &TicketingError{Step: "attach ticket", Err: err}
	}
	return ticketID, nil
}

// VisitorID rewrites an international number to its national form, e.g.
// +46701234567 to 0701234567.
func VisitorID(phone, countryCode string) string {
	p := strings.ReplaceAll(phone, " ", "")
	if countryCode == "" {
		return p
	}

	digits := strings.TrimPrefix(countryCode, "+")
	for _, prefix := range []string{"+" + digits, "00" + digits} {
		if rest, ok := strings.CutPrefix(p, prefix); ok && rest != "" {
			return "0" + strings.TrimPrefix(rest, "0")
		}
	}
	return p
}
