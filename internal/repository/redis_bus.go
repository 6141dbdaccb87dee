package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"KlineStream/internal/domain/models"
	"KlineStream/internal/domain/repository"
)

// RedisBus maps a (topic, key) pair onto the channel "<topic>:<key>" and
// subscribes with a pattern so one subscription sees every key of a topic.
type RedisBus struct {
	rdb    redis.UniversalClient
	buffer int
}

// NewRedisBus creates the Redis pub/sub backed bus.
func NewRedisBus(rdb redis.UniversalClient, buffer int) *RedisBus {
	return &RedisBus{rdb: rdb, buffer: buffer}
}

var _ repository.Bus = (*RedisBus)(nil)

func channelFor(topic, key string) string {
	return topic + ":" + key
}

func (b *RedisBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return b.rdb.Publish(ctx, channelFor(topic, key), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (repository.Subscription, error) {
	ps := b.rdb.PSubscribe(ctx, channelFor(topic, "*"))
	// wait for the subscription confirmation so no publish after return is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe %s: %w", topic, err)
	}

	prefix := channelFor(topic, "")
	sub := newPumpedSubscription(b.buffer, ps.Close)
	sub.run(ctx, func(deliver func(models.BusMessage) bool) {
		for msg := range ps.Channel() {
			key := strings.TrimPrefix(msg.Channel, prefix)
			if !deliver(models.BusMessage{Key: key, Payload: []byte(msg.Payload)}) {
				return
			}
		}
	})
	return sub, nil
}

// Close is a no-op; the client is owned by the caller.
func (b *RedisBus) Close() error {
	return nil
}
