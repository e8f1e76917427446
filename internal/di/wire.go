//go:build wireinject
// +build wireinject

package di

import (
	"CoinCast/internal/usecase"
	"CoinCast/pkg/config"
	"CoinCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideKafkaConsumer,

		// Repositories
		ProvideObservationStore,
		ProvideFeatureStore,
		ProvideRunStore,
		ProvideRegistry,

		// Feature pipeline services
		ProvideIndicatorEngine,
		ProvideScorer,
		ProvideBucketer,
		ProvideMerger,

		// Use cases
		ProvideDatasetBuilder,
		ProvideArtifactStore,
		ProvideTracker,
		ProvideTraining,
		ProvideForecastCache,
		ProvidePredictor,
		ProvideIngestPipeline,
		ProvideIngestHandler,
		ProvideTrainJob,
		ProvideJobQueue,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeTraining wires the training use case for one-shot CLI runs.
func InitializeTraining(cfg *config.Config) (*usecase.Training, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideObservationStore,
		ProvideFeatureStore,
		ProvideRunStore,
		ProvideIndicatorEngine,
		ProvideScorer,
		ProvideBucketer,
		ProvideMerger,
		ProvideDatasetBuilder,
		ProvideArtifactStore,
		ProvideTracker,
		ProvideTraining,
	)
	return &usecase.Training{}, nil
}
