package usecase

import (
	"context"
	"errors"
	"strings"

	"KlineStream/internal/domain/models"
	drepo "KlineStream/internal/domain/repository"
	"KlineStream/pkg/logger"
)

const (
	cmdSubscribePrefix = "sub-"
	cmdUnsubscribe     = "unsub"

	replySubscribed    = "Subscribed to "
	replyInvalidWindow = "Error: Invalid time window: "
	replyUnsubscribed  = "Unsubscribed from all channels"
)

// SessionState is the subscription state of one distribution session.
type SessionState int

const (
	StateUnsubscribed SessionState = iota
	StateSubscribed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DistributionSession serves one subscriber. It merges the subscriber's
// commands with the bus stream and forwards the payloads of at most one
// window. All of its state is owned by the goroutine running Run.
type DistributionSession struct {
	id        string
	windows   *models.WindowSet
	transport drepo.Transport
	bus       drepo.BusSubscriber
	topic     string
	metrics   drepo.Metrics
	log       *logger.Logger

	state  SessionState
	window models.TimeWindow
}

// NewDistributionSession creates a session in the unsubscribed state.
func NewDistributionSession(id string, windows *models.WindowSet, transport drepo.Transport, bus drepo.BusSubscriber, topic string, metrics drepo.Metrics, log *logger.Logger) *DistributionSession {
	return &DistributionSession{
		id:        id,
		windows:   windows,
		transport: transport,
		bus:       bus,
		topic:     topic,
		metrics:   metrics,
		log:       log.With(logger.String("session_id", id)),
		state:     StateUnsubscribed,
	}
}

// Run opens the session's bus subscription and processes events until the
// transport closes or fails, the subscription ends, or ctx is cancelled. The
// subscription and the transport are both closed on return.
func (s *DistributionSession) Run(ctx context.Context) error {
	defer func() {
		s.state = StateClosed
		_ = s.transport.Close()
	}()

	sub, err := s.bus.Subscribe(ctx, s.topic)
	if err != nil {
		s.metrics.RecordError("bus_subscribe")
		s.log.Error("bus subscribe failed", logger.String("topic", s.topic), logger.Error(err))
		return err
	}
	defer func() { _ = sub.Close() }()

	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()
	s.log.Info("session opened")

	events := s.transport.Events()
	messages := sub.Messages()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session cancelled")
			return nil

		case ev, ok := <-events:
			if !ok || ev.Closed {
				s.log.Info("session closed by subscriber")
				return nil
			}
			if ev.Err != nil {
				s.metrics.RecordError("transport")
				s.log.Error("transport error", logger.Error(ev.Err))
				return ev.Err
			}
			s.handleCommand(ctx, ev.Text)

		case msg, ok := <-messages:
			if !ok {
				s.log.Warn("bus subscription ended")
				return drepo.ErrSubscriptionClosed
			}
			s.forward(ctx, msg)
		}
	}
}

// State returns the current state and, when subscribed, the window.
func (s *DistributionSession) State() (SessionState, models.TimeWindow) {
	return s.state, s.window
}

func (s *DistributionSession) handleCommand(ctx context.Context, text string) {
	cmd := strings.TrimSpace(text)

	switch {
	case strings.HasPrefix(cmd, cmdSubscribePrefix):
		label := strings.TrimPrefix(cmd, cmdSubscribePrefix)
		w, err := s.windows.ParseLabel(label)
		if err != nil {
			s.log.Warn("invalid subscription label", logger.String("label", label))
			s.reply(ctx, replyInvalidWindow+label)
			return
		}
		s.state = StateSubscribed
		s.window = w
		s.log.Debug("subscribed", logger.String("window", w.Label()))
		s.reply(ctx, replySubscribed+label)

	case cmd == cmdUnsubscribe:
		s.state = StateUnsubscribed
		s.window = 0
		s.log.Debug("unsubscribed")
		s.reply(ctx, replyUnsubscribed)

	default:
		s.log.Debug("ignoring unknown command", logger.String("text", cmd))
	}
}

// forward decodes msg and writes its raw payload when it belongs to the
// subscribed window. Malformed messages are dropped.
func (s *DistributionSession) forward(ctx context.Context, msg models.BusMessage) {
	w, err := s.windows.ParseKey(msg.Key)
	if err != nil {
		s.metrics.RecordError("bus_key")
		s.log.Warn("dropping message with unknown key", logger.String("key", msg.Key))
		return
	}
	if _, err := models.DecodeKLine(msg.Payload); err != nil {
		s.metrics.RecordError("bus_decode")
		s.log.Error("dropping malformed kline", logger.String("key", msg.Key), logger.Error(err))
		return
	}

	if s.state != StateSubscribed || w != s.window {
		return
	}

	if err := s.transport.WriteText(ctx, msg.Payload); err != nil {
		s.metrics.RecordError("transport_write")
		s.log.Warn("forward failed", logger.String("window", w.Label()), logger.Error(err))
		return
	}
	s.metrics.RecordForwarded(w.Label())
}

func (s *DistributionSession) reply(ctx context.Context, text string) {
	if err := s.transport.WriteText(ctx, []byte(text)); err != nil && !errors.Is(err, context.Canceled) {
		s.metrics.RecordError("transport_write")
		s.log.Warn("reply failed", logger.Error(err))
	}
}
