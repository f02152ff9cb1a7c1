//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"PipeKit/pkg/config"
	"PipeKit/pkg/server"
)

// InitializeApp wires the processing service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		ProvideRedisClient,
		ProvidePublisher,
		ProvideMessageSource,
		ProvideRESTPoster,
		ProvideObjectStore,
		ProvideDatabase,
		ProvideRecordWriter,

		ProvideDispatcher,
		ProvideOutputDispatcher,
		ProvideBatchHandler,

		ProvideHTTPHandlers,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializePoller wires the poller service.
func InitializePoller(cfg *config.Config) (*server.PollerApp, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideRegistry,
		ProvideRedisClient,
		ProvidePublisher,
		ProvidePollerSource,
		ProvideRateLimiter,
		ProvidePoller,
		ProvidePollerApp,
	)
	return nil, nil, nil
}
