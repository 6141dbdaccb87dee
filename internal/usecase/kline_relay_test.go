package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KlineStream/internal/domain/models"
	"KlineStream/pkg/logger"
)

func snapshotsFor(windows ...models.TimeWindow) []models.KLine {
	out := make([]models.KLine, 0, len(windows))
	for _, w := range windows {
		out = append(out, models.KLine{Open: 1, High: 1, Low: 1, Close: 1, TimeWindowSeconds: w.Seconds()})
	}
	return out
}

func TestKlineRelay_PublishesOnePerWindow(t *testing.T) {
	pub := &fakePublisher{}
	m := newFakeMetrics()
	r := NewKlineRelay(pub, "demo", m, logger.Nop())

	r.Relay(snapshotsFor(models.OneSecond, models.OneMinute, models.FiveMinutes, models.OneHour))
	require.NoError(t, r.Close(context.Background()))

	assert.ElementsMatch(t, []string{"key_1", "key_60", "key_300", "key_3600"}, pub.keys())
	assert.Equal(t, 1, m.published["1m"])
}

func TestKlineRelay_FailureIsLoggedNotReturned(t *testing.T) {
	pub := &fakePublisher{failKeys: map[string]bool{"key_1": true}}
	m := newFakeMetrics()
	r := NewKlineRelay(pub, "demo", m, logger.Nop())

	r.Relay(snapshotsFor(models.OneSecond, models.OneMinute))
	r.Relay(snapshotsFor(models.OneSecond, models.OneMinute))
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, 2, m.failed["1s"])
	assert.Equal(t, 2, m.published["1m"])
	assert.Equal(t, []string{"key_60", "key_60"}, pub.keys())
}

func TestKlineRelay_SerializationFailureSkipsPublish(t *testing.T) {
	pub := &fakePublisher{}
	m := newFakeMetrics()
	r := NewKlineRelay(pub, "demo", m, logger.Nop())

	r.Relay([]models.KLine{{Open: math.NaN(), TimeWindowSeconds: 60}})
	require.NoError(t, r.Close(context.Background()))

	assert.Empty(t, pub.keys())
	assert.Equal(t, 1, m.failed["1m"])
}

func TestKlineRelay_DropsWhenSaturated(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	m := newFakeMetrics()
	r := NewKlineRelay(pub, "demo", m, logger.Nop(), WithMaxInFlight(1))

	done := make(chan struct{})
	go func() {
		r.Relay(snapshotsFor(models.OneSecond, models.OneMinute, models.OneHour))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay blocked on a stuck bus")
	}
	assert.Equal(t, 1, r.InFlight())
	assert.Equal(t, 2, m.errorCount("publish_dropped"))

	close(pub.block)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 0, r.InFlight())
}

func TestKlineRelay_CloseHonoursDeadline(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	r := NewKlineRelay(pub, "demo", newFakeMetrics(), logger.Nop(), WithPublishTimeout(time.Minute))
	r.Relay(snapshotsFor(models.OneMinute))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)

	close(pub.block)
	assert.NoError(t, r.Close(context.Background()))

	r.Relay(snapshotsFor(models.OneMinute))
	assert.Equal(t, 0, r.InFlight())
}
