package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	"KlineStream/pkg/logger"
)

type sessionHarness struct {
	transport *fakeTransport
	bus       *fakeSubscriber
	metrics   *fakeMetrics
	session   *DistributionSession
	done      chan error
}

func startSession(t *testing.T, ctx context.Context) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		transport: newFakeTransport(),
		bus:       newFakeSubscriber(),
		metrics:   newFakeMetrics(),
		done:      make(chan error, 1),
	}
	h.session = NewDistributionSession("s-1", models.MustWindowSet(models.DefaultWindowLabels...),
		h.transport, h.bus, "demo", h.metrics, logger.Nop())
	go func() { h.done <- h.session.Run(ctx) }()
	return h
}

// command sends text and waits for the session's reply.
func (h *sessionHarness) command(t *testing.T, text string) {
	t.Helper()
	h.transport.send(text)
	require.True(t, waitFor(h.transport.wrote, 1, time.Second), "no reply to %q", text)
}

func (h *sessionHarness) publish(w models.TimeWindow, close float64) {
	h.bus.sub.ch <- models.BusMessage{Key: w.Key(), Payload: klinePayload(w, close)}
}

// drain ends the bus stream and waits for the loop to exit. Buffered messages
// are processed before the closed channel is observed.
func (h *sessionHarness) drain(t *testing.T) error {
	t.Helper()
	h.bus.sub.end()
	select {
	case err := <-h.done:
		return err
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

func TestSession_UnsubscribedForwardsNothing(t *testing.T) {
	h := startSession(t, context.Background())

	for i := 0; i < 50; i++ {
		h.publish(models.OneSecond, float64(i))
		h.publish(models.OneMinute, float64(i))
	}

	err := h.drain(t)
	assert.ErrorIs(t, err, drepo.ErrSubscriptionClosed)
	assert.Empty(t, h.transport.written())
}

func TestSession_SubscribedForwardsOnlyItsWindow(t *testing.T) {
	h := startSession(t, context.Background())
	h.command(t, "sub-5m")

	h.publish(models.OneSecond, 1)
	h.publish(models.FiveMinutes, 2)
	h.publish(models.OneHour, 3)
	h.publish(models.FiveMinutes, 4)
	h.publish(models.OneMinute, 5)

	h.drain(t)
	assert.Equal(t, []string{
		"Subscribed to 5m",
		string(klinePayload(models.FiveMinutes, 2)),
		string(klinePayload(models.FiveMinutes, 4)),
	}, h.transport.written())
	assert.Equal(t, 2, h.metrics.forwarded["5m"])
}

func TestSession_NewSubscriptionSupersedes(t *testing.T) {
	h := startSession(t, context.Background())
	h.command(t, "sub-1m")

	h.publish(models.OneMinute, 1)
	require.True(t, waitFor(h.transport.wrote, 1, time.Second))

	h.command(t, "sub-1h")
	h.publish(models.OneMinute, 2)
	h.publish(models.OneHour, 3)

	h.drain(t)
	assert.Equal(t, []string{
		"Subscribed to 1m",
		string(klinePayload(models.OneMinute, 1)),
		"Subscribed to 1h",
		string(klinePayload(models.OneHour, 3)),
	}, h.transport.written())
}

func TestSession_InvalidLabelKeepsSubscription(t *testing.T) {
	h := startSession(t, context.Background())
	h.command(t, "sub-1m")
	h.command(t, "sub-bogus")

	h.publish(models.OneMinute, 7)
	h.drain(t)

	assert.Equal(t, []string{
		"Subscribed to 1m",
		"Error: Invalid time window: bogus",
		string(klinePayload(models.OneMinute, 7)),
	}, h.transport.written())
}

func TestSession_UnsubStopsForwarding(t *testing.T) {
	h := startSession(t, context.Background())
	h.command(t, "sub-1s")
	h.command(t, "unsub")

	h.publish(models.OneSecond, 1)
	h.drain(t)

	assert.Equal(t, []string{"Subscribed to 1s", "Unsubscribed from all channels"}, h.transport.written())
}

func TestSession_CommandsAreTrimmedAndUnknownTextIgnored(t *testing.T) {
	h := startSession(t, context.Background())
	h.transport.send("hello")
	h.transport.send("subscribe 1m")
	h.command(t, "  sub-1h\n")
	h.drain(t)

	assert.Equal(t, []string{"Subscribed to 1h"}, h.transport.written())
}

func TestSession_MalformedMessagesAreDropped(t *testing.T) {
	h := startSession(t, context.Background())
	h.command(t, "sub-1m")

	h.bus.sub.ch <- models.BusMessage{Key: models.OneMinute.Key(), Payload: []byte("not json")}
	h.bus.sub.ch <- models.BusMessage{Key: "key_900", Payload: klinePayload(900, 1)}
	h.bus.sub.ch <- models.BusMessage{Key: "garbage", Payload: klinePayload(models.OneMinute, 1)}
	h.publish(models.OneMinute, 2)

	h.drain(t)
	assert.Equal(t, []string{"Subscribed to 1m", string(klinePayload(models.OneMinute, 2))}, h.transport.written())
	assert.Equal(t, 1, h.metrics.errorCount("bus_decode"))
	assert.Equal(t, 2, h.metrics.errorCount("bus_key"))
}

func TestSession_TransportCloseEndsSession(t *testing.T) {
	h := startSession(t, context.Background())
	h.command(t, "sub-1m")
	h.transport.in <- drepo.TransportEvent{Closed: true}

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	assert.True(t, h.bus.sub.isClosed())
	assert.True(t, h.transport.isClosed())
	assert.Equal(t, 0, h.metrics.openSessions())

	state, _ := h.session.State()
	assert.Equal(t, StateClosed, state)
}

func TestSession_TransportErrorEndsSession(t *testing.T) {
	h := startSession(t, context.Background())
	boom := errors.New("connection reset")
	h.transport.in <- drepo.TransportEvent{Err: boom}

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	assert.True(t, h.bus.sub.isClosed())
	assert.Equal(t, 1, h.metrics.errorCount("transport"))
}

func TestSession_WriteFailureIsNotFatal(t *testing.T) {
	h := startSession(t, context.Background())
	h.command(t, "sub-1m")

	h.transport.mu.Lock()
	h.transport.err = errors.New("broken pipe")
	h.transport.mu.Unlock()

	h.publish(models.OneMinute, 1)
	h.publish(models.OneMinute, 2)
	err := h.drain(t)

	assert.ErrorIs(t, err, drepo.ErrSubscriptionClosed)
	assert.Equal(t, 2, h.metrics.errorCount("transport_write"))
}

func TestSession_ContextCancelEndsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := startSession(t, ctx)
	cancel()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	assert.True(t, h.transport.isClosed())
}

func TestSession_SubscribeFailureClosesTransport(t *testing.T) {
	transport := newFakeTransport()
	bus := &fakeSubscriber{err: errors.New("no bus")}
	s := NewDistributionSession("s-2", models.MustWindowSet("1m"), transport, bus, "demo", newFakeMetrics(), logger.Nop())

	err := s.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, transport.isClosed())
}
