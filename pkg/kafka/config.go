package kafka

import "time"

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithCompression sets compression type.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Compression = compression
	}
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
	}
}

// WithMaxAttempts sets max retry attempts by the writer.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		c.MaxAttempts = n
	}
}

// WithBatching sets writer batch size and linger.
func WithBatching(size int, timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
		c.BatchTimeout = timeout
	}
}

// WithWriteTimeout bounds a single write to the brokers.
func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = d
	}
}

// WithAsync toggles async writes (fire-and-forget).
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.Async = async
	}
}

// WithHashByKey routes equal keys to the same partition, which keeps the
// snapshots of one window in publish order.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.HashByKey = hash
	}
}

// StreamOption configures Stream.
type StreamOption func(*StreamConfig)

// StreamConfig holds reader configuration for a per-subscriber stream.
type StreamConfig struct {
	Brokers     []string
	GroupPrefix string
	StartOffset string // "latest" or "earliest"
	BufferSize  int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	MinBytes    int
	MaxBytes    int
	MaxWait     time.Duration

	// CommitInterval batches offset commits in the background. Streams never
	// resume from a committed offset, so a zero value (synchronous commit per
	// message) is replaced by the default.
	CommitInterval time.Duration
}

// WithStreamBrokers sets Kafka brokers.
func WithStreamBrokers(brokers []string) StreamOption {
	return func(c *StreamConfig) {
		c.Brokers = brokers
	}
}

// WithStreamGroupPrefix sets the prefix of the per-stream consumer group.
func WithStreamGroupPrefix(prefix string) StreamOption {
	return func(c *StreamConfig) {
		c.GroupPrefix = prefix
	}
}

// WithStreamStartOffset sets where a fresh stream begins reading.
func WithStreamStartOffset(offset string) StreamOption {
	return func(c *StreamConfig) {
		c.StartOffset = offset
	}
}

// WithStreamBufferSize sets the delivery channel capacity.
func WithStreamBufferSize(n int) StreamOption {
	return func(c *StreamConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithStreamBackoff configures the reconnect backoff range.
func WithStreamBackoff(min, max time.Duration) StreamOption {
	return func(c *StreamConfig) {
		c.BackoffMin = min
		c.BackoffMax = max
	}
}

// WithStreamFetch sets fetch min/max bytes and the max broker wait.
func WithStreamFetch(minBytes, maxBytes int, maxWait time.Duration) StreamOption {
	return func(c *StreamConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
		c.MaxWait = maxWait
	}
}

// WithStreamCommitInterval sets how often consumed offsets are committed.
func WithStreamCommitInterval(d time.Duration) StreamOption {
	return func(c *StreamConfig) {
		if d > 0 {
			c.CommitInterval = d
		}
	}
}
