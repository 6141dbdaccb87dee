package kline

import (
	"time"

	"KlineStream/internal/domain/models"
	"KlineStream/pkg/util"
)

// Bucket accumulates ticks into the OHLC record of one window.
type Bucket struct {
	rec    models.KLine
	seeded bool
}

// NewBucket opens a bucket for window w whose start is aligned to the whole multiple of w
// strictly before now, so the first tick falls inside it instead of forcing a reset.
func NewBucket(w models.TimeWindow, now time.Time) *Bucket {
	return NewBucketAt(w, util.PrevBoundary(now.Unix(), w.Seconds()))
}

// NewBucketAt opens an empty bucket with an explicit start.
func NewBucketAt(w models.TimeWindow, start int64) *Bucket {
	return &Bucket{rec: models.KLine{
		UnixTimestamp:     start,
		TimeWindowSeconds: w.Seconds(),
	}}
}

// Update applies one tick.
//
// A timestamp past start+duration resets the bucket to the tick's price and advances the
// start by exactly one duration, even when the gap spans several windows. The first tick
// into an empty bucket seeds all four prices.
func (b *Bucket) Update(price float64, ts int64) {
	d := int64(b.rec.TimeWindowSeconds)
	switch {
	case ts > b.rec.UnixTimestamp+d:
		b.reset(price)
		b.rec.UnixTimestamp += d
	case !b.seeded:
		b.reset(price)
	default:
		if price > b.rec.High {
			b.rec.High = price
		}
		if price < b.rec.Low {
			b.rec.Low = price
		}
		b.rec.Close = price
	}
}

func (b *Bucket) reset(price float64) {
	b.rec.Open = price
	b.rec.High = price
	b.rec.Low = price
	b.rec.Close = price
	b.seeded = true
}

// Snapshot returns a copy of the current record.
func (b *Bucket) Snapshot() models.KLine { return b.rec }
