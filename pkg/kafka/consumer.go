package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Record is one message delivered by a Stream.
type Record struct {
	Key   string
	Value []byte
}

// Stream is a single-subscriber reader over one topic. Every stream joins its
// own consumer group so each subscriber sees every message instead of a
// partition share.
type Stream struct {
	topic  string
	cfg    *StreamConfig
	reader *kafka.Reader
	out    chan Record

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var streamSeq atomic.Uint64

// NewStream opens a reader on topic and starts delivering records.
func NewStream(topic string, opts ...StreamOption) (*Stream, error) {
	cfg := &StreamConfig{
		GroupPrefix: "kline-session",
		StartOffset: "latest",
		BufferSize:  64,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  5 * time.Second,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     250 * time.Millisecond,

		CommitInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	reader := kafka.NewReader(readerConfig(topic, cfg))

	initMetricsOnce()
	streamsOpen.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		topic:  topic,
		cfg:    cfg,
		reader: reader,
		out:    make(chan Record, cfg.BufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// readerConfig builds the reader settings of one stream. The group is unique
// to the stream so it is assigned every partition of the topic.
func readerConfig(topic string, cfg *StreamConfig) kafka.ReaderConfig {
	start := kafka.LastOffset
	if cfg.StartOffset == "earliest" {
		start = kafka.FirstOffset
	}
	commit := cfg.CommitInterval
	if commit <= 0 {
		commit = 5 * time.Second
	}
	return kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        fmt.Sprintf("%s-%d-%d", cfg.GroupPrefix, time.Now().UnixNano(), streamSeq.Add(1)),
		StartOffset:    start,
		CommitInterval: commit,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
	}
}

// Messages is closed once the stream stops.
func (s *Stream) Messages() <-chan Record {
	return s.out
}

// Close stops the reader and waits for the delivery goroutine to exit.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.closeErr = s.reader.Close()
		streamsOpen.Dec()
	})
	return s.closeErr
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	attempt := 0
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			attempt++
			streamReadErrors.WithLabelValues(s.topic).Inc()
			select {
			case <-time.After(backoffWithJitter(s.cfg.BackoffMin, s.cfg.BackoffMax, attempt)):
				continue
			case <-ctx.Done():
				return
			}
		}
		attempt = 0

		select {
		case s.out <- Record{Key: string(msg.Key), Value: msg.Value}:
			streamDelivered.WithLabelValues(s.topic).Inc()
		case <-ctx.Done():
			return
		}
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}
