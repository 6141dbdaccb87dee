package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"KlineStream/internal/domain/models"
	"KlineStream/pkg/logger"
	"KlineStream/pkg/util"
)

type Config struct {
	Environment string         `yaml:"environment" default:"development" validate:"required"`
	Server      ServerConfig   `yaml:"server"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Log         LogConfig      `yaml:"log"`
	Windows     []string       `yaml:"windows" default:"[\"1s\",\"1m\",\"5m\",\"1h\"]" validate:"min=1"`
	Source      SourceConfig   `yaml:"source"`
	Bus         BusConfig      `yaml:"bus"`
	Kafka       KafkaConfig    `yaml:"kafka"`
	Redis       RedisConfig    `yaml:"redis"`
	Finnhub     FinnhubConfig  `yaml:"finnhub"`
	Session     SessionConfig  `yaml:"session"`
	Snapshot    SnapshotConfig `yaml:"snapshot"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type LogConfig struct {
	logger.Config `yaml:",inline"`
	Collector     struct {
		Enabled   bool          `yaml:"enabled"`
		Topic     string        `yaml:"topic" default:"kline-logs"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100"`
	} `yaml:"collector"`
}

type SourceConfig struct {
	Type        string        `yaml:"type" default:"mock" validate:"oneof=mock finnhub"`
	MaxRPS      int           `yaml:"max_rps" validate:"gte=0"`
	Buffer      int           `yaml:"buffer" default:"1024" validate:"gt=0"`
	MinInterval time.Duration `yaml:"min_interval" default:"100ms"`
	MaxInterval time.Duration `yaml:"max_interval" default:"1s"`

	// PositiveOnly drops zero or negative prices before aggregation.
	PositiveOnly bool `yaml:"positive_only"`
}

type BusConfig struct {
	Backend        string        `yaml:"backend" default:"kafka" validate:"oneof=kafka redis memory"`
	Topic          string        `yaml:"topic" default:"demo" validate:"required"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
	MaxInFlight    int           `yaml:"max_in_flight" default:"256" validate:"gt=0"`
	Buffer         int           `yaml:"subscription_buffer" default:"256" validate:"gt=0"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" default:"[\"localhost:9092\"]"`
	RequiredAcks int           `yaml:"required_acks" default:"1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	Stream       struct {
		GroupPrefix string        `yaml:"group_prefix" default:"kline-session"`
		StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=latest earliest"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
		MaxWait     time.Duration `yaml:"max_wait" default:"250ms"`

		// CommitInterval batches offset commits; per-message commits are never used.
		CommitInterval time.Duration `yaml:"commit_interval" default:"5s" validate:"gt=0"`
	} `yaml:"stream"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FinnhubConfig struct {
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	QuoteURL       string        `yaml:"quote_url" default:"https://finnhub.io/api/v1/quote"`
	Symbol         string        `yaml:"symbol" default:"BINANCE:BTCUSDT"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
}

type SessionConfig struct {
	PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
	PongWait     time.Duration `yaml:"pong_wait" default:"60s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	ReadLimit    int64         `yaml:"read_limit" default:"4096"`
	Buffer       int           `yaml:"buffer" default:"64"`
	// Per-IP upgrade admission; ConnectRate 0 disables it.
	ConnectBurst float64 `yaml:"connect_burst" default:"10" validate:"gte=0"`
	ConnectRate  float64 `yaml:"connect_rate" default:"1" validate:"gte=0"`
}

type SnapshotConfig struct {
	Enabled bool          `yaml:"enabled" default:"true"`
	Store   string        `yaml:"store" default:"memory" validate:"oneof=memory redis layered"`
	TTL     time.Duration `yaml:"ttl" default:"2h"`
	Prefix  string        `yaml:"prefix" default:"kline:latest:"`
	// L1TTL bounds the in-process layer of the layered store.
	L1TTL time.Duration `yaml:"l1_ttl" default:"1s"`
}

var validate = validator.New()

// Load applies struct defaults, then the YAML file at path (skipped when path
// is empty), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return &c, nil
}

// LoadWithEnv loads config and overrides it with environment variables. A
// .env file in the working directory is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("KLINE_BUS_BACKEND"); v != "" {
		c.Bus.Backend = v
	}
	if v := getenv("KLINE_WINDOWS"); v != "" {
		c.Windows = util.SplitList(v)
	}
	if v := getenv("TICK_SOURCE"); v != "" {
		c.Source.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Bus.Topic = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("FINNHUB_SYMBOL"); v != "" {
		c.Finnhub.Symbol = v
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.WindowSet(); err != nil {
		return err
	}
	if c.Bus.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty for the kafka bus")
	}
	if c.Source.Type == "finnhub" {
		if c.Finnhub.APIKey == "" {
			return errors.New("finnhub.api_key is required for the finnhub source")
		}
		if c.Finnhub.Symbol == "" {
			return errors.New("finnhub.symbol is required for the finnhub source")
		}
	}
	if c.Log.Collector.Enabled && c.Bus.Backend != "kafka" {
		return errors.New("log.collector requires the kafka bus")
	}
	return nil
}

// WindowSet parses the configured window labels.
func (c *Config) WindowSet() (*models.WindowSet, error) {
	ws, err := models.NewWindowSet(c.Windows)
	if err != nil {
		return nil, fmt.Errorf("windows: %w", err)
	}
	return ws, nil
}
