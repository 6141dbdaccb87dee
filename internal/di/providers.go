package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"KlineStream/internal/domain/models"
	"KlineStream/internal/domain/repository"
	"KlineStream/internal/handler/api"
	"KlineStream/internal/handler/ws"
	mid "KlineStream/internal/middleware"
	internalrepo "KlineStream/internal/repository"
	"KlineStream/internal/service/cache"
	"KlineStream/internal/service/finnhub"
	"KlineStream/internal/service/mocksource"
	"KlineStream/internal/service/ratelimit"
	"KlineStream/internal/services/kline"
	"KlineStream/internal/usecase"
	"KlineStream/pkg/config"
	xhttp "KlineStream/pkg/http"
	pkgkafka "KlineStream/pkg/kafka"
	applogger "KlineStream/pkg/logger"
	"KlineStream/pkg/metrics"
	"KlineStream/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer. It is nil unless the bus runs
// on Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Bus.Backend != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.BatchSize, cfg.Kafka.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger creates the application logger and, when enabled, attaches the
// error collector publishing through the Kafka producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log.Config)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
			PublishTimeout: cfg.Bus.PublishTimeout,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideWindowSet parses the configured windows once for every component.
func ProvideWindowSet(cfg *config.Config) (*models.WindowSet, error) {
	return cfg.WindowSet()
}

// ProvideRedisClient connects to Redis when the bus or the snapshot store uses
// it. The cleanup closes the client.
func ProvideRedisClient(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if cfg.Bus.Backend != "redis" && !(cfg.Snapshot.Enabled && cfg.Snapshot.Store != "memory") {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

// ProvideBus selects the bus backend.
func ProvideBus(cfg *config.Config, producer *pkgkafka.Producer, rdb redis.UniversalClient) (repository.Bus, error) {
	switch cfg.Bus.Backend {
	case "kafka":
		return internalrepo.NewKafkaBus(producer, cfg.Bus.Buffer,
			pkgkafka.WithStreamBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithStreamGroupPrefix(cfg.Kafka.Stream.GroupPrefix),
			pkgkafka.WithStreamStartOffset(cfg.Kafka.Stream.StartOffset),
			pkgkafka.WithStreamBufferSize(cfg.Bus.Buffer),
			pkgkafka.WithStreamBackoff(cfg.Kafka.Stream.BackoffMin, cfg.Kafka.Stream.BackoffMax),
			pkgkafka.WithStreamFetch(1, 1<<20, cfg.Kafka.Stream.MaxWait),
			pkgkafka.WithStreamCommitInterval(cfg.Kafka.Stream.CommitInterval),
		), nil
	case "redis":
		return internalrepo.NewRedisBus(rdb, cfg.Bus.Buffer), nil
	case "memory":
		return internalrepo.NewMemoryBus(cfg.Bus.Buffer), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Bus.Backend)
	}
}

// ProvideSnapshotStore picks the store backing the latest-kline cache.
func ProvideSnapshotStore(cfg *config.Config, rdb redis.UniversalClient) repository.SnapshotStore {
	if rdb == nil {
		return cache.NewTTLCache()
	}
	switch cfg.Snapshot.Store {
	case "redis":
		return cache.NewRedisCache(rdb, cfg.Snapshot.Prefix)
	case "layered":
		return cache.NewLayeredCache(cache.NewRedisCache(rdb, cfg.Snapshot.Prefix), cfg.Snapshot.L1TTL)
	default:
		return cache.NewTTLCache()
	}
}

// ProvideTickSource selects the price feed.
func ProvideTickSource(cfg *config.Config, log *applogger.Logger) (repository.TickSource, error) {
	switch cfg.Source.Type {
	case "mock":
		return mocksource.New(mocksource.Config{
			MinInterval: cfg.Source.MinInterval,
			MaxInterval: cfg.Source.MaxInterval,
		}, log), nil
	case "finnhub":
		return finnhub.New(finnhub.Config{
			APIKey:         cfg.Finnhub.APIKey,
			WebsocketURL:   cfg.Finnhub.WebSocketURL,
			QuoteURL:       cfg.Finnhub.QuoteURL,
			Symbol:         cfg.Finnhub.Symbol,
			ReconnectDelay: cfg.Finnhub.ReconnectDelay,
			PingInterval:   cfg.Finnhub.PingInterval,
		}, xhttp.NewClient(xhttp.WithTimeout(10*time.Second)), log), nil
	default:
		return nil, fmt.Errorf("unknown tick source %q", cfg.Source.Type)
	}
}

// ProvideAggregator aligns every bucket to the current time.
func ProvideAggregator(windows *models.WindowSet) *kline.Aggregator {
	return kline.NewAggregator(windows, time.Now())
}

// ProvideTickGuard builds the validation and throttling stage in front of the
// aggregator.
func ProvideTickGuard(cfg *config.Config, m repository.Metrics, log *applogger.Logger) *mid.TickGuard {
	return mid.NewTickGuard(m, log,
		mid.WithMaxRPS(cfg.Source.MaxRPS),
		mid.WithPositiveOnly(cfg.Source.PositiveOnly),
	)
}

// ProvideKlineRelay creates the fire-and-forget publisher.
func ProvideKlineRelay(cfg *config.Config, bus repository.Bus, m repository.Metrics, log *applogger.Logger) *usecase.KlineRelay {
	return usecase.NewKlineRelay(bus, cfg.Bus.Topic, m, log,
		usecase.WithPublishTimeout(cfg.Bus.PublishTimeout),
		usecase.WithMaxInFlight(cfg.Bus.MaxInFlight),
	)
}

// ProvideKlineCollector creates the collector use case.
func ProvideKlineCollector(
	cfg *config.Config,
	source repository.TickSource,
	agg *kline.Aggregator,
	guard *mid.TickGuard,
	relay *usecase.KlineRelay,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.KlineCollector {
	return usecase.NewKlineCollector(source, agg, guard, relay, m, log, cfg.Source.Buffer)
}

// ProvideKlineSnapshots creates the latest-kline cache, or nil when disabled.
func ProvideKlineSnapshots(
	cfg *config.Config,
	windows *models.WindowSet,
	bus repository.Bus,
	store repository.SnapshotStore,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.KlineSnapshots {
	if !cfg.Snapshot.Enabled {
		return nil
	}
	return usecase.NewKlineSnapshots(windows, bus, cfg.Bus.Topic, store, cfg.Snapshot.TTL, m, log)
}

// ProvideKlinesHandler creates the snapshot and health endpoints.
func ProvideKlinesHandler(
	cfg *config.Config,
	windows *models.WindowSet,
	source repository.TickSource,
	snaps *usecase.KlineSnapshots,
	log *applogger.Logger,
) *api.KlinesEchoHandler {
	return api.NewKlinesEchoHandler(log, snaps, models.Health{
		Source:  source.Name(),
		Bus:     cfg.Bus.Backend,
		Topic:   cfg.Bus.Topic,
		Windows: windows.Labels(),
	})
}

// ProvideWSHandler creates the subscriber websocket endpoint.
func ProvideWSHandler(
	cfg *config.Config,
	windows *models.WindowSet,
	bus repository.Bus,
	m repository.Metrics,
	log *applogger.Logger,
) *ws.KlineWSHandler {
	var limiter *ratelimit.Limiter
	if cfg.Session.ConnectRate > 0 {
		limiter = ratelimit.New(cfg.Session.ConnectBurst, cfg.Session.ConnectRate)
	}
	return ws.NewKlineWSHandler(log, windows, bus, cfg.Bus.Topic, m, ws.TransportConfig{
		PingInterval: cfg.Session.PingInterval,
		PongWait:     cfg.Session.PongWait,
		WriteTimeout: cfg.Session.WriteTimeout,
		ReadLimit:    cfg.Session.ReadLimit,
		Buffer:       cfg.Session.Buffer,
	}, limiter)
}

// ProvideHTTPServer creates the Echo server with every handler registered.
func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, klines *api.KlinesEchoHandler, wsHandler *ws.KlineWSHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, []xhttp.Handler{klines, wsHandler},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	log *applogger.Logger,
	collector *usecase.KlineCollector,
	relay *usecase.KlineRelay,
	snaps *usecase.KlineSnapshots,
	bus repository.Bus,
	wsHandler *ws.KlineWSHandler,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(log, collector, relay, snaps, bus, wsHandler, httpServer)
}
