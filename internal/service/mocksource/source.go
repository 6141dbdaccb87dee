package mocksource

import (
	"context"
	"math/rand"
	"time"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	"KlineStream/pkg/logger"
)

const (
	initialTokenReserves = 100_000_000_000
	initialSolReserves   = 100_000_000
	maxDrift             = 10_000
)

// CurveEvent is one simulated bonding-curve account update.
type CurveEvent struct {
	Slot                 int64
	VirtualTokenReserves int64
	VirtualSolReserves   int64
	Timestamp            int64
}

// Price is sol per token.
func (e CurveEvent) Price() float64 {
	return float64(e.VirtualSolReserves) / float64(e.VirtualTokenReserves)
}

// Config controls the simulator pacing.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Seed        int64 // zero seeds from the clock
}

// Source random-walks the reserves of a bonding curve and emits its price.
type Source struct {
	cfg   Config
	rng   *rand.Rand
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
	log   *logger.Logger
	event CurveEvent
}

var _ drepo.TickSource = (*Source)(nil)

func New(cfg Config, log *logger.Logger) *Source {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		now:   time.Now,
		sleep: sleepCtx,
		log:   log.With(logger.String("source", "mock")),
		event: CurveEvent{
			Slot:                 1000,
			VirtualTokenReserves: initialTokenReserves,
			VirtualSolReserves:   initialSolReserves,
		},
	}
}

func (s *Source) Name() string { return "mock" }

// Run emits one tick per step until ctx is cancelled.
func (s *Source) Run(ctx context.Context, out chan<- models.Tick) error {
	s.log.Info("mock source started")
	for {
		ev := s.next()
		select {
		case out <- models.Tick{Price: ev.Price(), Timestamp: ev.Timestamp}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !s.sleep(ctx, s.interval()) {
			return ctx.Err()
		}
	}
}

// next stamps the current state and then drifts the reserves for the
// following step.
func (s *Source) next() CurveEvent {
	ev := s.event
	ev.Timestamp = s.now().Unix()

	s.event.VirtualTokenReserves += s.drift()
	s.event.VirtualSolReserves += s.drift()
	s.event.Slot++
	return ev
}

func (s *Source) drift() int64 {
	return s.rng.Int63n(2*maxDrift+1) - maxDrift
}

func (s *Source) interval() time.Duration {
	span := int64(s.cfg.MaxInterval - s.cfg.MinInterval)
	if span <= 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + time.Duration(s.rng.Int63n(span+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
