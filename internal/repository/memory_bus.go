package repository

import (
	"context"
	"sync"

	"KlineStream/internal/domain/models"
	"KlineStream/internal/domain/repository"
)

// MemoryBus is an in-process bus. Publish never blocks: a subscriber whose
// buffer is full misses the message.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
	closed bool

	// OnDrop is called when a message is dropped for a slow subscriber.
	OnDrop func(topic, key string)
}

// NewMemoryBus creates an in-process bus with the given per-subscriber buffer.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 1
	}
	return &MemoryBus{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: buffer,
	}
}

var _ repository.Bus = (*MemoryBus)(nil)

func (b *MemoryBus) Publish(_ context.Context, topic, key string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return repository.ErrSubscriptionClosed
	}

	msg := models.BusMessage{Key: key, Payload: payload}
	for sub := range b.subs[topic] {
		select {
		case sub.out <- msg:
		default:
			if b.OnDrop != nil {
				b.OnDrop(topic, key)
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (repository.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, repository.ErrSubscriptionClosed
	}

	sub := &memorySubscription{
		bus:   b,
		topic: topic,
		out:   make(chan models.BusMessage, b.buffer),
		done:  make(chan struct{}),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers reports the live subscription count for topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.closeLocked()
		}
	}
	b.subs = nil
	return nil
}

type memorySubscription struct {
	bus   *MemoryBus
	topic string
	out   chan models.BusMessage
	done  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) Messages() <-chan models.BusMessage {
	return s.out
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if set := s.bus.subs[s.topic]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(s.bus.subs, s.topic)
		}
	}
	s.closeLocked()
	return nil
}

// closeLocked must be called with the bus write lock held so no publisher is
// mid-send on out.
func (s *memorySubscription) closeLocked() {
	s.once.Do(func() {
		close(s.done)
		close(s.out)
	})
}
