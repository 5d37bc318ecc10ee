//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/trickingegg/golden-dragon/pkg/config"
	"github.com/trickingegg/golden-dragon/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup releases infrastructure in reverse construction order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvidePublisher,
		ProvideRedisCache,
		ProvideCache,
		ProvideCandleStore,
		ProvideBrokerage,

		// Repositories
		ProvideMarginProvider,
		ProvideHistory,

		// Domain services
		ProvideEnsemble,
		ProvideValidator,
		ProvideTracker,

		// Use cases
		ProvideOrderQueue,
		ProvideOrderExecutor,
		ProvideCandleWriter,
		ProvideSupervisor,
		ProvidePipeline,
		ProvideCandleCollector,
		ProvideKafkaConsumer,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
