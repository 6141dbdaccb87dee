package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	"KlineStream/pkg/logger"
)

// KlineRelay hands aggregator snapshots to the bus. Every publish runs on its
// own goroutine and is only observed for logging and metrics; the caller never
// waits on the bus.
type KlineRelay struct {
	bus     drepo.BusPublisher
	topic   string
	timeout time.Duration
	metrics drepo.Metrics
	log     *logger.Logger

	slots  chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type RelayOption func(*KlineRelay)

// WithPublishTimeout bounds a single publish.
func WithPublishTimeout(d time.Duration) RelayOption {
	return func(r *KlineRelay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxInFlight caps concurrent publishes. Snapshots arriving while every
// slot is taken are dropped; the next tick carries the same or newer state.
func WithMaxInFlight(n int) RelayOption {
	return func(r *KlineRelay) {
		if n > 0 {
			r.slots = make(chan struct{}, n)
		}
	}
}

// NewKlineRelay creates a relay publishing on topic.
func NewKlineRelay(bus drepo.BusPublisher, topic string, metrics drepo.Metrics, log *logger.Logger, opts ...RelayOption) *KlineRelay {
	r := &KlineRelay{
		bus:     bus,
		topic:   topic,
		timeout: 5 * time.Second,
		metrics: metrics,
		log:     log,
		slots:   make(chan struct{}, 256),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Relay schedules one publish per snapshot and returns immediately.
func (r *KlineRelay) Relay(snaps []models.KLine) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, k := range snaps {
		r.relayOne(k)
	}
}

func (r *KlineRelay) relayOne(k models.KLine) {
	w := k.Window()
	payload, err := k.Marshal()
	if err != nil {
		r.metrics.RecordPublish(w.Label(), err)
		r.log.Error("serialize kline failed", logger.String("window", w.Label()), logger.Error(err))
		return
	}

	select {
	case r.slots <- struct{}{}:
	default:
		r.metrics.RecordError("publish_dropped")
		r.log.Warn("publish dropped, too many in flight", logger.String("window", w.Label()))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		err := r.bus.Publish(ctx, r.topic, w.Key(), payload)
		r.metrics.RecordLatency("publish", time.Since(start).Seconds())
		r.metrics.RecordPublish(w.Label(), err)
		if err != nil {
			r.log.Warn("publish kline failed",
				logger.String("topic", r.topic),
				logger.String("key", w.Key()),
				logger.Error(err),
			)
		}
	}()
}

// InFlight reports publishes that have not finished yet.
func (r *KlineRelay) InFlight() int {
	return len(r.slots)
}

// Close stops accepting snapshots and waits for in-flight publishes until ctx
// is done.
func (r *KlineRelay) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay drain: %w", ctx.Err())
	}
}
