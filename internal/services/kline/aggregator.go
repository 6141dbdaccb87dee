package kline

import (
	"errors"
	"fmt"
	"time"

	"KlineStream/internal/domain/models"
)

// ErrUnknownWindow is returned by Snapshot for a window outside the configured set.
var ErrUnknownWindow = errors.New("unknown time window")

// Aggregator owns one independent Bucket per configured window.
// It is not safe for concurrent use: a single goroutine owns it.
type Aggregator struct {
	windows *models.WindowSet
	buckets map[models.TimeWindow]*Bucket
}

// NewAggregator opens every bucket aligned to now.
func NewAggregator(windows *models.WindowSet, now time.Time) *Aggregator {
	a := &Aggregator{
		windows: windows,
		buckets: make(map[models.TimeWindow]*Bucket, windows.Len()),
	}
	for _, w := range windows.Windows() {
		a.buckets[w] = NewBucket(w, now)
	}
	return a
}

// Update applies the tick to every bucket.
func (a *Aggregator) Update(price float64, ts int64) {
	for _, b := range a.buckets {
		b.Update(price, ts)
	}
}

// SnapshotAll copies every bucket, in window configuration order.
func (a *Aggregator) SnapshotAll() []models.KLine {
	out := make([]models.KLine, 0, len(a.buckets))
	for _, w := range a.windows.Windows() {
		out = append(out, a.buckets[w].Snapshot())
	}
	return out
}

// Snapshot copies the bucket of one window.
func (a *Aggregator) Snapshot(w models.TimeWindow) (models.KLine, error) {
	b, ok := a.buckets[w]
	if !ok {
		return models.KLine{}, fmt.Errorf("%w: %d seconds", ErrUnknownWindow, w.Seconds())
	}
	return b.Snapshot(), nil
}

// Windows returns the configured window set.
func (a *Aggregator) Windows() *models.WindowSet { return a.windows }
