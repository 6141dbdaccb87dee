package middleware

import (
	"fmt"
	"math"
	"time"

	"KlineStream/internal/domain/models"
	domrepo "KlineStream/internal/domain/repository"
	"KlineStream/pkg/logger"
)

// TickGuard sits between a tick source and the aggregator. It rejects ticks
// with a non-finite price, which would poison a bucket, and optionally
// throttles the feed. It is owned by
// the single consumer of the tick channel, so it never reorders and needs no
// locking.
type TickGuard struct {
	metrics domrepo.Metrics
	log     *logger.Logger
	maxRPS  int

	// positiveOnly additionally drops non-positive prices and negative timestamps.
	positiveOnly bool

	lastAccepted time.Time
	rejected     uint64
	throttled    uint64
}

type GuardOption func(*TickGuard)

// WithMaxRPS caps accepted ticks per second. Zero disables throttling.
func WithMaxRPS(n int) GuardOption {
	return func(g *TickGuard) {
		if n >= 0 {
			g.maxRPS = n
		}
	}
}

// WithPositiveOnly rejects zero or negative prices and negative timestamps.
// Off by default: the aggregator accepts any finite price.
func WithPositiveOnly(on bool) GuardOption {
	return func(g *TickGuard) {
		g.positiveOnly = on
	}
}

// NewTickGuard creates a guard. Throttling is off unless WithMaxRPS is given.
func NewTickGuard(metrics domrepo.Metrics, log *logger.Logger, opts ...GuardOption) *TickGuard {
	g := &TickGuard{metrics: metrics, log: log}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow reports whether t should reach the aggregator. now is the wall-clock
// arrival time used for throttling.
func (g *TickGuard) Allow(t models.Tick, now time.Time) bool {
	if err := g.validate(t); err != nil {
		g.rejected++
		g.metrics.RecordError("tick_invalid")
		g.log.Warn("tick rejected",
			logger.Float64("price", t.Price),
			logger.Int64("ts", t.Timestamp),
			logger.Error(err),
		)
		return false
	}
	if !g.allowRate(now) {
		g.throttled++
		g.metrics.RecordError("tick_throttled")
		return false
	}
	return true
}

// Stats returns the rejected and throttled counts.
func (g *TickGuard) Stats() (rejected, throttled uint64) {
	return g.rejected, g.throttled
}

func (g *TickGuard) allowRate(now time.Time) bool {
	if g.maxRPS <= 0 {
		return true
	}
	if !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < time.Second/time.Duration(g.maxRPS) {
		return false
	}
	g.lastAccepted = now
	return true
}

func (g *TickGuard) validate(t models.Tick) error {
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return fmt.Errorf("price not finite")
	}
	if !g.positiveOnly {
		return nil
	}
	if t.Price <= 0 {
		return fmt.Errorf("price not positive")
	}
	if t.Timestamp < 0 {
		return fmt.Errorf("timestamp negative")
	}
	return nil
}
