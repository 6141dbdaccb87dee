package mocksource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KlineStream/internal/domain/models"
	"KlineStream/pkg/logger"
)

func TestSource_FirstTickIsInitialCurvePrice(t *testing.T) {
	s := New(Config{Seed: 42}, logger.Nop())
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	s.sleep = func(context.Context, time.Duration) bool { return true }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan models.Tick)
	go func() { _ = s.Run(ctx, out) }()

	first := <-out
	assert.Equal(t, 0.001, first.Price)
	assert.Equal(t, int64(1_700_000_000), first.Timestamp)

	for i := 0; i < 100; i++ {
		tk := <-out
		assert.InDelta(t, 0.001, tk.Price, 0.0001)
	}
}

func TestSource_DriftAndIntervalBounds(t *testing.T) {
	s := New(Config{MinInterval: 100 * time.Millisecond, MaxInterval: time.Second, Seed: 7}, logger.Nop())

	for i := 0; i < 1000; i++ {
		d := s.drift()
		require.GreaterOrEqual(t, d, int64(-maxDrift))
		require.LessOrEqual(t, d, int64(maxDrift))

		iv := s.interval()
		require.GreaterOrEqual(t, iv, 100*time.Millisecond)
		require.LessOrEqual(t, iv, time.Second)
	}
}

func TestSource_StopsOnCancel(t *testing.T) {
	s := New(Config{MinInterval: time.Hour}, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan models.Tick, 1)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, out) }()

	<-out
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("source did not stop")
	}
}
