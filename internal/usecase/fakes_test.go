package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
)

type fakeMetrics struct {
	mu        sync.Mutex
	ticks     int
	published map[string]int
	failed    map[string]int
	forwarded map[string]int
	errors    map[string]int
	open      int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		published: map[string]int{},
		failed:    map[string]int{},
		forwarded: map[string]int{},
		errors:    map[string]int{},
	}
}

func (m *fakeMetrics) RecordTick(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *fakeMetrics) RecordPublish(window string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed[window]++
		return
	}
	m.published[window]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) RecordForwarded(window string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forwarded[window]++
}

func (m *fakeMetrics) SessionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open++
}

func (m *fakeMetrics) SessionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open--
}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *fakeMetrics) openSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// fakeTransport records writes; tests push events through in.
type fakeTransport struct {
	in     chan drepo.TransportEvent
	mu     sync.Mutex
	writes []string
	wrote  chan struct{}
	closed bool
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:    make(chan drepo.TransportEvent, 16),
		wrote: make(chan struct{}, 1024),
	}
}

func (t *fakeTransport) Events() <-chan drepo.TransportEvent { return t.in }

func (t *fakeTransport) WriteText(_ context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.writes = append(t.writes, string(msg))
	t.wrote <- struct{}{}
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) send(text string) { t.in <- drepo.TransportEvent{Text: text} }

func (t *fakeTransport) written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeSubscription is fed directly by the test.
type fakeSubscription struct {
	ch     chan models.BusMessage
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (s *fakeSubscription) Messages() <-chan models.BusMessage { return s.ch }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSubscription) end() { s.once.Do(func() { close(s.ch) }) }

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeSubscriber struct {
	sub *fakeSubscription
	err error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{sub: &fakeSubscription{ch: make(chan models.BusMessage, 64)}}
}

func (f *fakeSubscriber) Subscribe(context.Context, string) (drepo.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

// fakePublisher fails every publish whose key is in failKeys and can be made
// to block until released.
type fakePublisher struct {
	mu       sync.Mutex
	failKeys map[string]bool
	block    chan struct{}
	sent     []models.BusMessage
}

var errBusDown = errors.New("bus down")

func (p *fakePublisher) Publish(ctx context.Context, _ string, key string, payload []byte) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKeys[key] {
		return errBusDown
	}
	p.sent = append(p.sent, models.BusMessage{Key: key, Payload: payload})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, m.Key)
	}
	return out
}

// sliceSource emits fixed ticks then returns.
type sliceSource struct {
	ticks []models.Tick
	err   error
}

func (s *sliceSource) Name() string { return "slice" }

func (s *sliceSource) Run(ctx context.Context, out chan<- models.Tick) error {
	for _, t := range s.ticks {
		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func klinePayload(w models.TimeWindow, close float64) []byte {
	b, _ := models.KLine{Open: close, High: close, Low: close, Close: close, UnixTimestamp: 0, TimeWindowSeconds: w.Seconds()}.Marshal()
	return b
}

func waitFor(ch <-chan struct{}, n int, d time.Duration) bool {
	deadline := time.After(d)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
	return true
}
