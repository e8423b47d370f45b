//go:build wireinject
// +build wireinject

package di

import (
	"SalesPulse/pkg/config"
	"SalesPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideDetector,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisCache,
		ProvideCache,

		// Repositories
		ProvideSeriesStore,
		ProvideAlertPublisher,
		ProvideThresholdStore,
		ProvideForecaster,

		// Alert fan-out
		ProvideHub,
		ProvideAlertDispatcher,

		// Use cases
		ProvideThresholdService,
		ProvideSeriesAnalysis,
		ProvideQueue,
		ProvideObservationPipeline,
		ProvideKafkaConsumer,

		// Transport
		ProvideHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
