package repository

import (
	"context"
	"sync"

	"KlineStream/internal/domain/models"
)

// pumpedSubscription adapts a backend-specific receive loop to
// repository.Subscription. The pump goroutine owns out and closes it on exit.
type pumpedSubscription struct {
	out     chan models.BusMessage
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	closeFn func() error
	err     error
}

func newPumpedSubscription(buffer int, closeFn func() error) *pumpedSubscription {
	return &pumpedSubscription{
		out:     make(chan models.BusMessage, buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

// run drives recv until it reports the source is exhausted, ctx ends, or the
// subscription is closed. recv is handed a deliver func that returns false
// once delivery should stop.
func (s *pumpedSubscription) run(ctx context.Context, recv func(deliver func(models.BusMessage) bool)) {
	go func() {
		defer close(s.done)
		defer close(s.out)
		recv(func(msg models.BusMessage) bool {
			select {
			case s.out <- msg:
				return true
			case <-s.stop:
				return false
			case <-ctx.Done():
				return false
			}
		})
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
}

func (s *pumpedSubscription) Messages() <-chan models.BusMessage {
	return s.out
}

// Close stops delivery, releases the backend handle and waits for the pump.
func (s *pumpedSubscription) Close() error {
	s.once.Do(func() {
		close(s.stop)
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
		<-s.done
	})
	return s.err
}
