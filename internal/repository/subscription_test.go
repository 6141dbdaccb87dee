package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KlineStream/internal/domain/models"
)

// chanSource mimics a backend stream whose channel closes when closeFn runs.
func chanSource(t *testing.T) (chan models.BusMessage, *pumpedSubscription, func(ctx context.Context)) {
	t.Helper()
	src := make(chan models.BusMessage)
	closed := make(chan struct{})
	sub := newPumpedSubscription(4, func() error {
		close(closed)
		return nil
	})
	start := func(ctx context.Context) {
		sub.run(ctx, func(deliver func(models.BusMessage) bool) {
			for {
				select {
				case msg := <-src:
					if !deliver(msg) {
						return
					}
				case <-closed:
					return
				}
			}
		})
	}
	return src, sub, start
}

func TestPumpedSubscription_DeliversInOrder(t *testing.T) {
	src, sub, start := chanSource(t)
	start(context.Background())
	defer sub.Close()

	src <- models.BusMessage{Key: "key_1"}
	src <- models.BusMessage{Key: "key_60"}

	assert.Equal(t, "key_1", (<-sub.Messages()).Key)
	assert.Equal(t, "key_60", (<-sub.Messages()).Key)
}

func TestPumpedSubscription_CloseEndsMessages(t *testing.T) {
	_, sub, start := chanSource(t)
	start(context.Background())

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")

	_, ok := <-sub.Messages()
	assert.False(t, ok)
}

func TestPumpedSubscription_ContextCancelCloses(t *testing.T) {
	_, sub, start := chanSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	start(ctx)
	cancel()

	select {
	case _, ok := <-sub.Messages():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("messages not closed after cancel")
	}
}

func TestPumpedSubscription_SourceExhausted(t *testing.T) {
	sub := newPumpedSubscription(1, nil)
	sub.run(context.Background(), func(deliver func(models.BusMessage) bool) {
		deliver(models.BusMessage{Key: "key_1"})
	})

	msg, ok := <-sub.Messages()
	require.True(t, ok)
	assert.Equal(t, "key_1", msg.Key)
	_, ok = <-sub.Messages()
	assert.False(t, ok)
	assert.NoError(t, sub.Close())
}
