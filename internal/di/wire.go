//go:build wireinject
// +build wireinject

package di

import (
	"PaperDesk/pkg/config"
	"PaperDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideLocker,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideFinnhubREST,

		// Repositories and adapters
		ProvideStores,
		ProvideEventPublisher,
		ProvideNewsProvider,
		ProvidePriceBook,
		ProvidePriceProvider,
		ProvideSentimentRegistry,
		ProvideTickSinks,

		// Use cases
		ProvideParameterBook,
		ProvideSentimentAggregator,
		ProvideSignalGenerator,
		ProvideTradeManager,
		ProvideLearningLoop,
		ProvideJobQueue,
		ProvideScheduler,
		ProvideDesk,
		ProvideTickProcessor,
		ProvidePriceCollector,
		ProvideKafkaTicksHandler,

		// Transport and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
