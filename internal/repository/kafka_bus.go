package repository

import (
	"context"
	"fmt"

	"KlineStream/internal/domain/models"
	"KlineStream/internal/domain/repository"
	pkgkafka "KlineStream/pkg/kafka"
)

// KafkaBus publishes through a shared producer and gives every subscriber its
// own Kafka stream.
type KafkaBus struct {
	producer   *pkgkafka.Producer
	streamOpts []pkgkafka.StreamOption
	buffer     int
}

// NewKafkaBus creates the Kafka-backed bus.
func NewKafkaBus(producer *pkgkafka.Producer, buffer int, streamOpts ...pkgkafka.StreamOption) *KafkaBus {
	return &KafkaBus{producer: producer, streamOpts: streamOpts, buffer: buffer}
}

var _ repository.Bus = (*KafkaBus)(nil)

func (b *KafkaBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return b.producer.Publish(ctx, topic, []byte(key), payload)
}

// Subscribe opens a stream that starts at the end of the topic. The stream
// lives until Close or until ctx is done.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string) (repository.Subscription, error) {
	stream, err := pkgkafka.NewStream(topic, b.streamOpts...)
	if err != nil {
		return nil, fmt.Errorf("open kafka stream: %w", err)
	}

	sub := newPumpedSubscription(b.buffer, stream.Close)
	sub.run(ctx, func(deliver func(models.BusMessage) bool) {
		for rec := range stream.Messages() {
			if !deliver(models.BusMessage{Key: rec.Key, Payload: rec.Value}) {
				return
			}
		}
	})
	return sub, nil
}

func (b *KafkaBus) Close() error {
	if b.producer != nil {
		return b.producer.Close()
	}
	return nil
}
