package repository

import (
	"context"
	"errors"
	"time"

	"KlineStream/internal/domain/models"
)

// ErrSubscriptionClosed is returned by a bus subscriber that has been shut down.
var ErrSubscriptionClosed = errors.New("bus subscription closed")

// TickSource produces ticks onto out in timestamp order until ctx is cancelled.
// It is the only sender on out.
type TickSource interface {
	Name() string
	Run(ctx context.Context, out chan<- models.Tick) error
}

// BusPublisher is the publish half of the message bus.
type BusPublisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// BusSubscriber opens independent subscriptions on the message bus.
type BusSubscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Bus is a backend that both publishes and subscribes.
type Bus interface {
	BusPublisher
	BusSubscriber
}

// Subscription is one live stream of bus messages. Messages is closed when the
// subscription ends, whether by Close or by the bus going away.
type Subscription interface {
	Messages() <-chan models.BusMessage
	Close() error
}

// TransportEvent is one inbound event from a subscriber's transport.
type TransportEvent struct {
	Text   string
	Closed bool
	Err    error
}

// Transport is the per-subscriber connection used by a distribution session.
// Events is closed once the transport stops reading.
type Transport interface {
	Events() <-chan TransportEvent
	WriteText(ctx context.Context, msg []byte) error
	Close() error
}

// Metrics records operational counters.
type Metrics interface {
	RecordTick(price float64)
	RecordPublish(window string, err error)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordForwarded(window string)
	SessionOpened()
	SessionClosed()
}

// SnapshotStore keeps the latest serialized record per routing key.
type SnapshotStore interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
