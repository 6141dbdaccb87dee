//go:build wireinject
// +build wireinject

package di

import (
	"KlineStream/pkg/config"
	"KlineStream/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideRedisClient,

		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideWindowSet,

		// Repositories
		ProvideBus,
		ProvideSnapshotStore,
		ProvideTickSource,

		// Use cases
		ProvideAggregator,
		ProvideTickGuard,
		ProvideKlineRelay,
		ProvideKlineCollector,
		ProvideKlineSnapshots,

		// Transport
		ProvideKlinesHandler,
		ProvideWSHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
