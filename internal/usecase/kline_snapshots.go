package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	"KlineStream/pkg/logger"
)

// ErrNoSnapshot is returned when a window has not published anything yet.
var ErrNoSnapshot = errors.New("no snapshot for window")

// KlineSnapshots keeps the latest published record per window. It learns
// records from the bus like any session does, so it never touches the
// aggregator.
type KlineSnapshots struct {
	windows *models.WindowSet
	bus     drepo.BusSubscriber
	topic   string
	store   drepo.SnapshotStore
	ttl     time.Duration
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewKlineSnapshots creates the snapshot cache. A zero ttl keeps entries until
// overwritten.
func NewKlineSnapshots(windows *models.WindowSet, bus drepo.BusSubscriber, topic string, store drepo.SnapshotStore, ttl time.Duration, metrics drepo.Metrics, log *logger.Logger) *KlineSnapshots {
	return &KlineSnapshots{
		windows: windows,
		bus:     bus,
		topic:   topic,
		store:   store,
		ttl:     ttl,
		metrics: metrics,
		log:     log.With(logger.String("component", "snapshots")),
	}
}

// Run consumes the bus until ctx is cancelled, resubscribing with a delay if
// the subscription ends underneath it.
func (s *KlineSnapshots) Run(ctx context.Context) error {
	const resubscribeDelay = time.Second

	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.metrics.RecordError("snapshot_subscription")
		s.log.Warn("snapshot subscription ended, resubscribing", logger.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeDelay):
		}
	}
}

func (s *KlineSnapshots) consume(ctx context.Context) error {
	sub, err := s.bus.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	defer func() { _ = sub.Close() }()

	for msg := range sub.Messages() {
		s.record(msg)
	}
	return drepo.ErrSubscriptionClosed
}

func (s *KlineSnapshots) record(msg models.BusMessage) {
	w, err := s.windows.ParseKey(msg.Key)
	if err != nil {
		return
	}
	if _, err := models.DecodeKLine(msg.Payload); err != nil {
		s.metrics.RecordError("bus_decode")
		s.log.Warn("skipping malformed kline", logger.String("key", msg.Key), logger.Error(err))
		return
	}
	if err := s.store.SetBytes(w.Key(), msg.Payload, s.ttl); err != nil {
		s.metrics.RecordError("snapshot_store")
		s.log.Warn("store snapshot failed", logger.String("key", msg.Key), logger.Error(err))
	}
}

// Latest returns the most recent record for w.
func (s *KlineSnapshots) Latest(w models.TimeWindow) (models.KLine, error) {
	if !s.windows.Contains(w) {
		return models.KLine{}, fmt.Errorf("%w: %d", models.ErrInvalidWindow, w.Seconds())
	}
	b, ok, err := s.store.GetBytes(w.Key())
	if err != nil {
		return models.KLine{}, fmt.Errorf("read snapshot %s: %w", w.Label(), err)
	}
	if !ok {
		return models.KLine{}, ErrNoSnapshot
	}
	return models.DecodeKLine(b)
}

// All returns the latest record of every window that has one, in configured
// window order.
func (s *KlineSnapshots) All() ([]models.KLine, error) {
	out := make([]models.KLine, 0, s.windows.Len())
	for _, w := range s.windows.Windows() {
		k, err := s.Latest(w)
		if errors.Is(err, ErrNoSnapshot) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// Windows exposes the configured window set.
func (s *KlineSnapshots) Windows() *models.WindowSet { return s.windows }
