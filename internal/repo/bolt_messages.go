package repo

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

// BoltMessageRepo keeps records in one bucket keyed by id and their
// insertion order in a second bucket keyed by a big-endian sequence.
type BoltMessageRepo struct {
	db     *bolt.DB
	bucket []byte
	order  []byte
}

func OpenBoltMessageRepo(path, table string) (*BoltMessageRepo, error) {
	if table == "" {
		table = "messages"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	r := &BoltMessageRepo{
		db:     db,
		bucket: []byte(table),
		order:  []byte(table + "_order"),
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(r.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(r.order)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *BoltMessageRepo) Close() error {
	return r.db.Close()
}

func (r *BoltMessageRepo) List(ctx context.Context, limit int) ([]model.Message, error) {
	limit = normalizeLimit(limit)
	out := []model.Message{}

	err := r.db.View(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(r.bucket)
		c := tx.Bucket(r.order).Cursor()
		for k, id := c.Last(); k != nil && len(out) < limit; k, id = c.Prev() {
			raw := msgs.Get(id)
			if raw == nil {
				continue
			}
			var m model.Message
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("decode message %s: %w", id, err)
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (r *BoltMessageRepo) Get(ctx context.Context, id string) (model.Message, error) {
	var m model.Message
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(r.bucket).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &m)
	})
	return m, err
}

func (r *BoltMessageRepo) Put(ctx context.Context, m model.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		msgs := tx.Bucket(r.bucket)
		if msgs.Get([]byte(m.ID)) != nil {
			return ErrDuplicate
		}
		order := tx.Bucket(r.order)
		seq, err := order.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := order.Put(key, []byte(m.ID)); err != nil {
			return err
		}
		return msgs.Put([]byte(m.ID), raw)
	})
}

func (r *BoltMessageRepo) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, error) {
	var out model.Message
	err := r.update(id, func(m *model.Message) {
		m.Status = status
		out = *m
	})
	return out, err
}

func (r *BoltMessageRepo) AttachTicket(ctx context.Context, id, ticketID string) error {
	return r.update(id, func(m *model.Message) {
		m.TelavoxTicketID = ticketID
	})
}

func (r *BoltMessageRepo) update(id string, fn func(*model.Message)) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		var m model.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		fn(&m)
		next, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), next)
	})
}
