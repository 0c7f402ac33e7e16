package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

func backends(t *testing.T) map[string]func(t *testing.T) MessageRepository {
	t.Helper()

	return map[string]func(t *testing.T) MessageRepository{
		"memory": func(t *testing.T) MessageRepository {
			return NewMemoryMessageRepo()
		},
		"bolt": func(t *testing.T) MessageRepository {
			r, err := OpenBoltMessageRepo(filepath.Join(t.TempDir(), "nested", "inbox.bolt"), "messages")
			if err != nil {
				t.Fatalf("OpenBoltMessageRepo() error: %v", err)
			}
			t.Cleanup(func() { _ = r.Close() })
			return r
		},
	}
}

func incoming(id string) model.Message {
	return model.Message{
		ID:        id,
		From:      "+46701234567",
		To:        "unknown",
		Message:   "hello " + id,
		Timestamp: "2026-10-16T10:00:00.000Z",
		Status:    model.Unread,
		Direction: model.Incoming,
	}
}

func TestRepo_PutGetRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			ctx := context.Background()

			want := incoming("1")
			if err := r.Put(ctx, want); err != nil {
				t.Fatalf("Put() error: %v", err)
			}

			got, err := r.Get(ctx, "1")
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if got != want {
				t.Fatalf("expected %+v, got %+v", want, got)
			}
		})
	}
}

func TestRepo_PutDuplicateKeepsOriginal(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			ctx := context.Background()

			if err := r.Put(ctx, incoming("dup")); err != nil {
				t.Fatalf("Put() error: %v", err)
			}

			second := incoming("dup")
			second.Message = "changed"
			if err := r.Put(ctx, second); !errors.Is(err, ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got %v", err)
			}

			got, _ := r.Get(ctx, "dup")
			if got.Message != "hello dup" {
				t.Fatalf("expected original body to survive, got %q", got.Message)
			}

			items, _ := r.List(ctx, 10)
			if len(items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(items))
			}
		})
	}
}

func TestRepo_ListNewestFirstAndCapped(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				if err := r.Put(ctx, incoming(fmt.Sprintf("m%d", i))); err != nil {
					t.Fatalf("Put() error: %v", err)
				}
			}

			items, err := r.List(ctx, 3)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if len(items) != 3 {
				t.Fatalf("expected 3 items, got %d", len(items))
			}
			for i, want := range []string{"m4", "m3", "m2"} {
				if items[i].ID != want {
					t.Fatalf("item %d: expected id %q, got %q", i, want, items[i].ID)
				}
			}
		})
	}
}

func TestRepo_ListEmptyIsNotNil(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			items, err := open(t).List(context.Background(), 0)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if items == nil {
				t.Fatalf("expected empty slice, got nil")
			}
		})
	}
}

func TestRepo_UpdateStatusIsIdempotent(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			ctx := context.Background()

			if err := r.Put(ctx, incoming("1")); err != nil {
				t.Fatalf("Put() error: %v", err)
			}

			for i := 0; i < 2; i++ {
				got, err := r.UpdateStatus(ctx, "1", model.Read)
				if err != nil {
					t.Fatalf("UpdateStatus() #%d error: %v", i, err)
				}
				if got.Status != model.Read {
					t.Fatalf("expected status read, got %q", got.Status)
				}
				if got.Direction != model.Incoming || got.Timestamp != "2026-10-16T10:00:00.000Z" {
					t.Fatalf("immutable fields changed: %+v", got)
				}
			}
		})
	}
}

func TestRepo_UnknownIDReturnsNotFound(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			ctx := context.Background()

			if _, err := r.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get: expected ErrNotFound, got %v", err)
			}
			if _, err := r.UpdateStatus(ctx, "nope", model.Read); !errors.Is(err, ErrNotFound) {
				t.Fatalf("UpdateStatus: expected ErrNotFound, got %v", err)
			}
			if err := r.AttachTicket(ctx, "nope", "t1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("AttachTicket: expected ErrNotFound, got %v", err)
			}

			items, _ := r.List(ctx, 10)
			if len(items) != 0 {
				t.Fatalf("expected store unchanged, got %d items", len(items))
			}
		})
	}
}

func TestRepo_AttachTicket(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			ctx := context.Background()

			if err := r.Put(ctx, incoming("1")); err != nil {
				t.Fatalf("Put() error: %v", err)
			}
			if err := r.AttachTicket(ctx, "1", "T-99"); err != nil {
				t.Fatalf("AttachTicket() error: %v", err)
			}

			got, _ := r.Get(ctx, "1")
			if got.TelavoxTicketID != "T-99" {
				t.Fatalf("expected ticket id T-99, got %q", got.TelavoxTicketID)
			}
			if got.Status != model.Unread {
				t.Fatalf("expected status untouched, got %q", got.Status)
			}
		})
	}
}

func TestBoltMessageRepo_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.bolt")
	ctx := context.Background()

	r, err := OpenBoltMessageRepo(path, "sms")
	if err != nil {
		t.Fatalf("OpenBoltMessageRepo() error: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if err := r.Put(ctx, incoming(id)); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	r, err = OpenBoltMessageRepo(path, "sms")
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer r.Close()

	items, err := r.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(items) != 2 || items[0].ID != "b" || items[1].ID != "a" {
		t.Fatalf("unexpected items after reopen: %+v", items)
	}
}

func TestNewPostgresMessageRepo_QuotesTableName(t *testing.T) {
	r := NewPostgresMessageRepo(nil, `sms"; DROP TABLE x; --`)
	if r.table != `"sms""; DROP TABLE x; --"` {
		t.Fatalf("unexpected sanitized table: %s", r.table)
	}

	if got := NewPostgresMessageRepo(nil, "").table; got != `"messages"` {
		t.Fatalf("expected default table, got %s", got)
	}
}
