//go:build wireinject
// +build wireinject

package di

import (
	"SignalPulse/pkg/config"
	"SignalPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires every dependency. The returned cleanup releases clients in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideHub,

		// Repositories
		ProvideFeedMirror,
		ProvideAlertStore,
		ProvideAlertSinks,
		ProvideAlertHistory,
		ProvideFeedDriver,

		// Capabilities
		ProvidePreferenceStore,
		ProvideWebhook,
		ProvideWebhookQueue,
		ProvideWorkers,
		ProvideNotificationPlatform,
		ProvidePermissionGate,
		ProvideAudioGate,
		ProvideTonePlayer,

		// Use cases
		ProvideDispatcher,
		ProvideFeedSubscriber,
		ProvideDiffer,
		ProvideLiveFeed,

		// HTTP
		ProvideHTTPHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
