package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KlineStream/internal/domain/models"
	"KlineStream/internal/domain/repository"
)

func recv(t *testing.T, sub repository.Subscription) models.BusMessage {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return models.BusMessage{}
	}
}

func TestMemoryBus_EverySubscriberSeesEveryMessage(t *testing.T) {
	bus := NewMemoryBus(8)
	ctx := context.Background()

	a, err := bus.Subscribe(ctx, "demo")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "demo")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "demo", "key_60", []byte("x")))

	assert.Equal(t, models.BusMessage{Key: "key_60", Payload: []byte("x")}, recv(t, a))
	assert.Equal(t, models.BusMessage{Key: "key_60", Payload: []byte("x")}, recv(t, b))
	assert.Len(t, other.Messages(), 0)
}

func TestMemoryBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewMemoryBus(1)
	var dropped int
	bus.OnDrop = func(string, string) { dropped++ }

	sub, err := bus.Subscribe(context.Background(), "demo")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), "demo", "key_1", []byte{byte(i)}))
	}

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []byte{0}, recv(t, sub).Payload)
}

func TestMemoryBus_CloseEndsSubscription(t *testing.T) {
	bus := NewMemoryBus(4)
	sub, err := bus.Subscribe(context.Background(), "demo")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers("demo"))
	assert.NoError(t, bus.Publish(context.Background(), "demo", "key_1", nil))
}

func TestMemoryBus_ContextCancelEndsSubscription(t *testing.T) {
	bus := NewMemoryBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "demo")
	require.NoError(t, err)

	cancel()

	assert.Eventually(t, func() bool { return bus.Subscribers("demo") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.Messages()
	assert.False(t, ok)
}

func TestMemoryBus_ClosedBusRejects(t *testing.T) {
	bus := NewMemoryBus(4)
	sub, err := bus.Subscribe(context.Background(), "demo")
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.ErrorIs(t, bus.Publish(context.Background(), "demo", "k", nil), repository.ErrSubscriptionClosed)
	_, err = bus.Subscribe(context.Background(), "demo")
	assert.ErrorIs(t, err, repository.ErrSubscriptionClosed)
}
