package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "inbox:events"

// RedisBus carries events between instances sharing one store. Every
// instance publishes to the channel and relays what it receives to its
// local hub.
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Relay subscribes to the channel and forwards each event to local until
// ctx is canceled or the returned stop func is called. It returns once the
// subscription is confirmed.
func (b *RedisBus) Relay(ctx context.Context, local Publisher) (stop func() error, err error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("dropping malformed event", "channel", b.channel, "err", err)
					continue
				}
				if err := local.Publish(ctx, ev); err != nil {
					slog.Warn("relay publish failed", "type", ev.Type, "err", err)
				}
			}
		}
	}()

	return pubsub.Close, nil
}
