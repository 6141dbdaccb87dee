package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	mid "KlineStream/internal/middleware"
	"KlineStream/internal/services/kline"
	"KlineStream/pkg/logger"
)

// Relayer receives the snapshots produced for every tick.
type Relayer interface {
	Relay(snaps []models.KLine)
}

// KlineCollector runs a tick source into the aggregator. The source is the
// only sender on the tick channel and this collector is its only receiver, so
// ticks reach the aggregator in exactly the order the source emitted them.
type KlineCollector struct {
	source  drepo.TickSource
	agg     *kline.Aggregator
	guard   *mid.TickGuard
	relay   Relayer
	metrics drepo.Metrics
	log     *logger.Logger
	buffer  int
	now     func() time.Time
}

// NewKlineCollector creates a collector. guard may be nil.
func NewKlineCollector(source drepo.TickSource, agg *kline.Aggregator, guard *mid.TickGuard, relay Relayer, metrics drepo.Metrics, log *logger.Logger, buffer int) *KlineCollector {
	if buffer <= 0 {
		buffer = 1024
	}
	return &KlineCollector{
		source:  source,
		agg:     agg,
		guard:   guard,
		relay:   relay,
		metrics: metrics,
		log:     log,
		buffer:  buffer,
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled or the source stops. A source that ends
// with an error other than cancellation is reported.
func (c *KlineCollector) Run(ctx context.Context) error {
	ticks := make(chan models.Tick, c.buffer)
	srcErr := make(chan error, 1)

	go func() {
		defer close(ticks)
		srcErr <- c.source.Run(ctx, ticks)
	}()

	c.log.Info("kline collector started",
		logger.String("source", c.source.Name()),
		logger.Strings("windows", c.agg.Windows().Labels()),
		logger.Bool("guarded", c.guard != nil),
	)

	for {
		select {
		case <-ctx.Done():
			c.logStopped()
			return nil
		case t, ok := <-ticks:
			if !ok {
				err := <-srcErr
				if err == nil || errors.Is(err, context.Canceled) {
					return nil
				}
				c.metrics.RecordError("source")
				return fmt.Errorf("tick source %s: %w", c.source.Name(), err)
			}
			c.process(t)
		}
	}
}

func (c *KlineCollector) logStopped() {
	if c.guard == nil {
		c.log.Info("kline collector stopped")
		return
	}
	rejected, throttled := c.guard.Stats()
	c.log.Info("kline collector stopped",
		logger.Uint64("ticks_rejected", rejected),
		logger.Uint64("ticks_throttled", throttled),
	)
}

// process applies one tick and relays every window's snapshot.
func (c *KlineCollector) process(t models.Tick) {
	if c.guard != nil && !c.guard.Allow(t, c.now()) {
		return
	}

	start := time.Now()
	c.agg.Update(t.Price, t.Timestamp)
	c.relay.Relay(c.agg.SnapshotAll())

	c.metrics.RecordTick(t.Price)
	c.metrics.RecordLatency("aggregate", time.Since(start).Seconds())
}
