//go:build wireinject
// +build wireinject

package di

import (
	"ZoneScan/pkg/config"
	"ZoneScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Logging and metrics
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideTickStorage,
		ProvideCandleStore,
		ProvideZoneStore,
		ProvideTickPublisher,
		ProvideZoneEvents,
		ProvideArchiver,

		// Market data services
		ProvideKiteClient,
		ProvideMarketStream,
		ProvideUniverse,
		ProvideDetector,
		ProvideNotifier,

		// Use cases
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideKafkaTicksHandler,
		ProvideScanner,
		ProvideScheduler,
		ProvideChartUseCase,

		// Queue and HTTP surface
		ProvideQueuePublisher,
		ProvideQueueConsumer,
		ProvideZonesHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
