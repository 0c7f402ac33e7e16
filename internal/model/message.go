package model

import (
	"strconv"
	"time"
)

type Status string

const (
	Unread Status = "unread"
	Read   Status = "read"
	Sent   Status = "sent"
)

func (s Status) Valid() bool {
	switch s {
	case Unread, Read, Sent:
		return true
	}
	return false
}

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// TimestampLayout matches the millisecond ISO-8601 form browsers produce.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type Message struct {
	ID              string    `json:"id"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Message         string    `json:"message"`
	Timestamp       string    `json:"timestamp"`
	Status          Status    `json:"status"`
	Direction       Direction `json:"direction"`
	TelavoxTicketID string    `json:"telavoxTicketId,omitempty"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FallbackID is used when neither the gateway nor the webhook supplies an id.
func FallbackID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
