package di

import (
	"context"
	"fmt"
	"time"

	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/handler/api"
	internalrepo "SignalPulse/internal/repository"
	"SignalPulse/internal/service/audio"
	"SignalPulse/internal/service/capability"
	"SignalPulse/internal/service/docstream"
	"SignalPulse/internal/service/hub"
	"SignalPulse/internal/service/notify"
	"SignalPulse/internal/service/preference"
	"SignalPulse/internal/service/ratelimit"
	"SignalPulse/internal/service/tone"
	"SignalPulse/internal/usecase"
	"SignalPulse/pkg/cache"
	pkgch "SignalPulse/pkg/clickhouse"
	"SignalPulse/pkg/config"
	xhttp "SignalPulse/pkg/http"
	pkgkafka "SignalPulse/pkg/kafka"
	xlogger "SignalPulse/pkg/logger"
	"SignalPulse/pkg/metrics"
	"SignalPulse/pkg/queue"
	"SignalPulse/pkg/server"
)

// AlertSinks is every destination of dispatch audit records.
type AlertSinks []domrepo.AlertSink

// ProvideLogger creates the root logger. With the collector enabled, repeated
// warn/error entries are shipped to Kafka through a dedicated producer.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, func(), error) {
	l, err := xlogger.New(&xlogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if !cfg.Logging.Collector.Enabled {
		return l, func() {}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithClientID(cfg.Kafka.ClientID+"-logs"),
		pkgkafka.WithAsync(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("log collector producer: %w", err)
	}
	l.AddCollector(&xlogger.CollectionConfig{
		TimeInterval:   cfg.Logging.Collector.Interval,
		CountThreshold: cfg.Logging.Collector.Threshold,
		Topic:          cfg.Logging.Collector.Topic,
		Publisher:      producer,
	})
	cleanup := func() {
		l.RemoveCollector()
		_ = producer.Close()
	}
	return l, cleanup, nil
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideHub creates the browser websocket hub.
func ProvideHub(cfg *config.Config, logger *xlogger.Logger) *hub.Hub {
	return hub.New(logger, hub.WithSendBuffer(cfg.Audio.SendBuffer))
}

// ProvideRedisCache connects to Redis when enabled. It returns nil otherwise.
func ProvideRedisCache(cfg *config.Config, logger *xlogger.Logger) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, 0, 0),
		cache.WithRedisDialTimeout(cfg.Redis.DialTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	logger.Info("redis connected", xlogger.String("addr", cfg.Redis.Addr))
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache picks Redis, Redis behind an in-process layer, or memory only.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache, logger *xlogger.Logger) (cache.Service, func()) {
	if rc == nil {
		logger.Info("preferences kept in memory")
		mc := cache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }
	}
	if cfg.Redis.Layered {
		return cache.NewLayeredCache(rc), func() {}
	}
	return rc, func() {}
}

// ProvideWebhook builds the notification webhook. It returns nil without a URL.
func ProvideWebhook(cfg *config.Config) *notify.Webhook {
	n := cfg.Notifications
	client := xhttp.NewClient(
		xhttp.WithTimeout(n.WebhookTimeout),
		xhttp.WithHeader("Authorization", bearer(n.WebhookToken)),
	)
	return notify.NewWebhook(n.WebhookURL, client)
}

// ProvideWebhookQueue makes webhook delivery durable through Redis. It returns
// nil unless both Redis and a webhook are configured.
func ProvideWebhookQueue(cfg *config.Config, rc *cache.RedisCache, hook *notify.Webhook, logger *xlogger.Logger) *queue.RedisQueue {
	if rc == nil || hook == nil {
		return nil
	}
	q := cfg.Notifications.Queue
	opts := []queue.Option{queue.WithWorkers(q.Workers), queue.WithRetry(q.Retries, q.RetryDelay)}
	if cfg.Redis.Prefix != "" {
		opts = append(opts, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	}
	wq := queue.NewRedisQueue(rc.Client(), logger, opts...)
	wq.RegisterJob(hook.Job())
	return wq
}

// ProvideWorkers lists the optional background runners.
func ProvideWorkers(wq *queue.RedisQueue) server.Workers {
	var workers server.Workers
	if wq != nil {
		workers = append(workers, wq)
	}
	return workers
}

// ProvidePreferenceStore persists preferences in the cache.
func ProvidePreferenceStore(c cache.Service, logger *xlogger.Logger) *preference.Store {
	return preference.NewStore(internalrepo.NewCacheKeyValueStore(c), logger.With(xlogger.String("component", "preferences")))
}

// ProvideNotificationPlatform delivers notifications to browser clients and the optional webhook.
func ProvideNotificationPlatform(cfg *config.Config, clients *hub.Hub, hook *notify.Webhook, wq *queue.RedisQueue, logger *xlogger.Logger) domrepo.NotificationPlatform {
	opts := []notify.Option{notify.WithWebhook(hook)}
	if wq != nil {
		opts = append(opts, notify.WithWebhookQueue(wq))
	}
	return notify.NewPlatform(clients, cfg.Notifications.Policy, logger, opts...)
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// ProvidePermissionGate mirrors the platform permission.
func ProvidePermissionGate(platform domrepo.NotificationPlatform, logger *xlogger.Logger) *capability.PermissionGate {
	return capability.NewPermissionGate(platform, logger.With(xlogger.String("component", "permission")))
}

// ProvideAudioGate owns the shared audio context rendered to browser clients.
func ProvideAudioGate(clients *hub.Hub, logger *xlogger.Logger) *capability.AudioGate {
	return capability.NewAudioGate(audio.NewFactory(clients), logger.With(xlogger.String("component", "audio")))
}

// ProvideTonePlayer plays tone programs on the audio gate's context.
func ProvideTonePlayer(gate *capability.AudioGate, logger *xlogger.Logger) *tone.Player {
	return tone.NewPlayer(gate, logger.With(xlogger.String("component", "tone")))
}

// ProvideKafkaProducer creates the alert producer. It is nil without brokers.
func ProvideKafkaProducer(cfg *config.Config, logger *xlogger.Logger) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithClientID(cfg.Kafka.ClientID),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka producer close failed", xlogger.Error(err))
		}
	}, nil
}

// ProvideClickHouseClient connects and creates the dispatch log table. It is nil when disabled.
func ProvideClickHouseClient(cfg *config.Config, logger *xlogger.Logger) (*pkgch.Client, func(), error) {
	ch := cfg.ClickHouse
	if !ch.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.DispatchLogSchema(ch.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	logger.Info("clickhouse ready", xlogger.String("database", ch.Database))

	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("clickhouse close failed", xlogger.Error(err))
		}
	}, nil
}

// ProvideAlertStore is nil without ClickHouse.
func ProvideAlertStore(client *pkgch.Client, cfg *config.Config, logger *xlogger.Logger) *internalrepo.CHAlertStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewCHAlertStore(client.DB(), cfg.ClickHouse.Database, logger)
}

// ProvideAlertSinks collects the configured audit destinations.
func ProvideAlertSinks(store *internalrepo.CHAlertStore, producer *pkgkafka.Producer, cfg *config.Config) AlertSinks {
	var sinks AlertSinks
	if store != nil {
		sinks = append(sinks, store)
	}
	if producer != nil && cfg.Kafka.Topics.Alerts != "" {
		sinks = append(sinks, internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.Topics.Alerts))
	}
	return sinks
}

// ProvideAlertHistory is nil without ClickHouse.
func ProvideAlertHistory(store *internalrepo.CHAlertStore) domrepo.AlertHistory {
	if store == nil {
		return nil
	}
	return store
}

// ProvideDispatcher creates the notification dispatcher.
func ProvideDispatcher(
	cfg *config.Config,
	permission *capability.PermissionGate,
	platform domrepo.NotificationPlatform,
	prefs *preference.Store,
	player *tone.Player,
	sinks AlertSinks,
	m domrepo.Metrics,
	logger *xlogger.Logger,
) *usecase.Dispatcher {
	return usecase.NewDispatcher(permission, platform, prefs, player, m,
		logger.With(xlogger.String("component", "dispatcher")),
		usecase.WithAlertSinks(sinks...),
		usecase.WithNotificationIcon(cfg.Notifications.Icon),
		usecase.WithDedupCapacity(cfg.Feed.DedupCapacity),
	)
}

// ProvideFeedMirror holds the current result sets of the three collections.
func ProvideFeedMirror(cfg *config.Config) *internalrepo.FeedMirror {
	return internalrepo.NewFeedMirror(
		max(cfg.Feed.SignalsWindow, internalrepo.DefaultSignalsCapacity),
		max(cfg.Feed.TradesWindow, internalrepo.DefaultTradesCapacity),
	)
}

// ProvideFeedSubscriber opens the three live queries on the mirror.
func ProvideFeedSubscriber(cfg *config.Config, mirror *internalrepo.FeedMirror, m domrepo.Metrics, logger *xlogger.Logger) *usecase.FeedSubscriber {
	return usecase.NewFeedSubscriber(mirror, m, logger.With(xlogger.String("component", "feed")),
		usecase.WithSignalsWindow(cfg.Feed.SignalsWindow),
		usecase.WithTradesWindow(cfg.Feed.TradesWindow),
		usecase.WithPortfolioDoc(cfg.Feed.PortfolioDoc),
	)
}

// ProvideDiffer creates the differencing engine. A full signals window with a
// new head still counts as growth.
func ProvideDiffer(cfg *config.Config) *usecase.Differ {
	return usecase.NewDiffer(cfg.Feed.Freshness, usecase.WithSaturatedWindow(cfg.Feed.SignalsWindow))
}

// ProvideLiveFeed wires the pipeline.
func ProvideLiveFeed(
	subscriber *usecase.FeedSubscriber,
	differ *usecase.Differ,
	dispatcher *usecase.Dispatcher,
	clients *hub.Hub,
	m domrepo.Metrics,
	logger *xlogger.Logger,
) *usecase.LiveFeed {
	return usecase.NewLiveFeed(subscriber, differ, dispatcher, m,
		logger.With(xlogger.String("component", "live_feed")),
		usecase.WithStatsBroadcaster(clients),
	)
}

// ProvideFeedDriver feeds the mirror from Kafka change streams or the docstream gateway.
func ProvideFeedDriver(cfg *config.Config, mirror *internalrepo.FeedMirror, logger *xlogger.Logger) (server.Runner, error) {
	switch cfg.Feed.Source {
	case config.SourceDocstream:
		client := docstream.New(docstream.Config{
			URL:            cfg.Docstream.URL,
			Token:          cfg.Docstream.Token,
			SignalsLimit:   cfg.Feed.SignalsWindow,
			TradesLimit:    cfg.Feed.TradesWindow,
			PortfolioDoc:   cfg.Feed.PortfolioDoc,
			ReconnectDelay: cfg.Docstream.ReconnectDelay,
			PingInterval:   cfg.Docstream.PingInterval,
		}, mirror, logger)
		return client, nil

	case config.SourceKafka:
		c := cfg.Kafka.Consumer
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerLookback(c.Lookback),
			pkgkafka.WithConsumerWorkers(c.Workers),
			pkgkafka.WithConsumerBufferSize(c.BufferSize),
			pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
			pkgkafka.WithConsumerDLQ(c.DLQTopic),
			pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
			pkgkafka.WithConsumerLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		consumer.WithConsumerHook(pkgkafka.NewHookChain(
			pkgkafka.JSONValidationHook{},
			pkgkafka.LoggingHook{Logger: logger, Slow: 200 * time.Millisecond},
		))

		source := internalrepo.NewKafkaFeedSource(mirror, internalrepo.KafkaFeedTopics{
			Signals:   cfg.Kafka.Topics.Signals,
			Portfolio: cfg.Kafka.Topics.Portfolio,
			Trades:    cfg.Kafka.Topics.Trades,
		}, logger)
		for _, h := range source.Handlers() {
			consumer.RegisterHandler(h)
		}
		return &kafkaFeedDriver{consumer: consumer, primeTimeout: c.PrimeTimeout}, nil
	}
	return nil, fmt.Errorf("unknown feed source %q", cfg.Feed.Source)
}

// kafkaFeedDriver replays the feed topics into the mirror before the live
// feed starts, so the backlog becomes its first snapshot.
type kafkaFeedDriver struct {
	consumer     *pkgkafka.Consumer
	primeTimeout time.Duration
}

func (d *kafkaFeedDriver) Prime(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.primeTimeout)
	defer cancel()
	return d.consumer.Prime(ctx)
}

func (d *kafkaFeedDriver) Run(ctx context.Context) error {
	return d.consumer.Run(ctx, 10*time.Second)
}

// ProvideHTTPHandler creates the API handler.
func ProvideHTTPHandler(
	cfg *config.Config,
	feed *usecase.LiveFeed,
	prefs *preference.Store,
	permission *capability.PermissionGate,
	audioGate *capability.AudioGate,
	clients *hub.Hub,
	history domrepo.AlertHistory,
	logger *xlogger.Logger,
) *api.FeedEchoHandler {
	rate := cfg.Server.PermissionRate
	opts := []api.FeedEchoOption{
		api.WithWebsocket(clients),
		api.WithPermissionLimit(ratelimit.New(rate.Burst, rate.PerSecond).Middleware()),
	}
	if history != nil {
		opts = append(opts, api.WithAlertHistory(history))
	}
	return api.NewFeedEchoHandler(logger, feed, prefs, permission, audioGate, opts...)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, handler *api.FeedEchoHandler, logger *xlogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{handler},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins...),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(logger),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	logger *xlogger.Logger,
	feed *usecase.LiveFeed,
	driver server.Runner,
	workers server.Workers,
	httpServer *xhttp.Server,
	prefs *preference.Store,
	permission *capability.PermissionGate,
	audioGate *capability.AudioGate,
	clients *hub.Hub,
) *server.App {
	return server.New(cfg, logger, feed, driver, workers, httpServer, prefs, permission, audioGate, clients)
}
