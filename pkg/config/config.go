package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	xutil "SignalPulse/pkg/util"

	"gopkg.in/yaml.v3"
)

// Feed source types.
const (
	SourceKafka     = "kafka"
	SourceDocstream = "docstream"
)

type Config struct {
	Environment string `yaml:"environment"`
	Logging     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		// Collector ships deduplicated warn/error logs to Kafka.
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic"`
			Interval  time.Duration `yaml:"interval"`
			Threshold int           `yaml:"threshold"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowOrigins    []string      `yaml:"allow_origins"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
		PermissionRate  struct {
			Burst     float64 `yaml:"burst"`
			PerSecond float64 `yaml:"per_second"`
		} `yaml:"permission_rate"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Feed struct {
		Source        string        `yaml:"source"`
		SignalsWindow int           `yaml:"signals_window"`
		TradesWindow  int           `yaml:"trades_window"`
		PortfolioDoc  string        `yaml:"portfolio_doc"`
		Freshness     time.Duration `yaml:"freshness"`
		DedupCapacity int           `yaml:"dedup_capacity"`
	} `yaml:"feed"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		ClientID     string   `yaml:"client_id"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Signals   string `yaml:"signals"`
			Portfolio string `yaml:"portfolio"`
			Trades    string `yaml:"trades"`
			Alerts    string `yaml:"alerts"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			// Lookback limits the replay to recent messages; 0 replays whole topics.
			Lookback     time.Duration `yaml:"lookback"`
			PrimeTimeout time.Duration `yaml:"prime_timeout"`
			Workers      int           `yaml:"workers"`
			BufferSize   int           `yaml:"buffer_size"`
			RetryMax     int           `yaml:"retry_max"`
			BackoffMin   time.Duration `yaml:"backoff_min"`
			BackoffMax   time.Duration `yaml:"backoff_max"`
			DLQTopic     string        `yaml:"dlq_topic"`
			MinBytes     int           `yaml:"min_bytes"`
			MaxBytes     int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Docstream struct {
		URL            string        `yaml:"url"`
		Token          string        `yaml:"token"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"docstream"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix"`
		PoolSize    int           `yaml:"pool_size"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
		// Layered keeps an in-process copy in front of Redis.
		Layered bool `yaml:"layered"`
	} `yaml:"redis"`
	Notifications struct {
		Policy         string        `yaml:"policy"`
		Icon           string        `yaml:"icon"`
		WebhookURL     string        `yaml:"webhook_url"`
		WebhookToken   string        `yaml:"webhook_token"`
		WebhookTimeout time.Duration `yaml:"webhook_timeout"`
		// Queue settings apply when Redis is enabled; webhook posts are then retried.
		Queue struct {
			Workers    int           `yaml:"workers"`
			Retries    int           `yaml:"retries"`
			RetryDelay time.Duration `yaml:"retry_delay"`
		} `yaml:"queue"`
	} `yaml:"notifications"`
	Audio struct {
		// UnlockOnConnect treats the first websocket gesture as the unlock gesture.
		UnlockOnConnect bool `yaml:"unlock_on_connect"`
		SendBuffer      int  `yaml:"send_buffer"`
	} `yaml:"audio"`
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides selected fields from the environment.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	c.Server.Port = xutil.ParseIntDefault(getenv("HTTP_PORT"), c.Server.Port)
	if v := getenv("FEED_SOURCE"); v != "" {
		c.Feed.Source = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("DOCSTREAM_URL"); v != "" {
		c.Docstream.URL = v
	}
	if v := getenv("DOCSTREAM_TOKEN"); v != "" {
		c.Docstream.Token = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("NOTIFY_POLICY"); v != "" {
		c.Notifications.Policy = v
	}
	if v := getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		c.Notifications.WebhookURL = v
	}
	if v := getenv("NOTIFY_WEBHOOK_TOKEN"); v != "" {
		c.Notifications.WebhookToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Server.PermissionRate.Burst == 0 {
		c.Server.PermissionRate.Burst = 3
	}
	if c.Server.PermissionRate.PerSecond == 0 {
		c.Server.PermissionRate.PerSecond = 0.2
	}
	if c.Feed.Source == "" {
		c.Feed.Source = SourceKafka
	}
	if c.Feed.SignalsWindow == 0 {
		c.Feed.SignalsWindow = 100
	}
	if c.Feed.TradesWindow == 0 {
		c.Feed.TradesWindow = 20
	}
	if c.Feed.PortfolioDoc == "" {
		c.Feed.PortfolioDoc = "main"
	}
	if c.Feed.Freshness == 0 {
		c.Feed.Freshness = 30 * time.Second
	}
	if c.Kafka.Topics.Signals == "" {
		c.Kafka.Topics.Signals = "signals"
	}
	if c.Kafka.Topics.Portfolio == "" {
		c.Kafka.Topics.Portfolio = "portfolio"
	}
	if c.Kafka.Topics.Trades == "" {
		c.Kafka.Topics.Trades = "trades"
	}
	if c.Kafka.Topics.Alerts == "" {
		c.Kafka.Topics.Alerts = "signal-alerts"
	}
	if c.Kafka.Consumer.PrimeTimeout == 0 {
		c.Kafka.Consumer.PrimeTimeout = 30 * time.Second
	}
	if c.Notifications.Policy == "" {
		c.Notifications.Policy = "prompt"
	}
	if c.Notifications.Icon == "" {
		c.Notifications.Icon = "/favicon.ico"
	}
	if c.Notifications.Queue.Workers <= 0 {
		c.Notifications.Queue.Workers = 2
	}
	if c.Notifications.Queue.Retries == 0 {
		c.Notifications.Queue.Retries = 3
	}
	if c.Notifications.Queue.RetryDelay <= 0 {
		c.Notifications.Queue.RetryDelay = 5 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Feed.Source {
	case SourceKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for feed.source=kafka")
		}
	case SourceDocstream:
		if c.Docstream.URL == "" {
			return fmt.Errorf("docstream.url is required for feed.source=docstream")
		}
	default:
		return fmt.Errorf("feed.source must be '%s' or '%s', got '%s'", SourceKafka, SourceDocstream, c.Feed.Source)
	}
	if c.Feed.SignalsWindow <= 0 || c.Feed.TradesWindow <= 0 {
		return fmt.Errorf("feed windows must be positive")
	}
	if c.Feed.Freshness <= 0 {
		return fmt.Errorf("feed.freshness must be positive")
	}
	switch strings.ToLower(c.Notifications.Policy) {
	case "prompt", "grant", "deny":
	default:
		return fmt.Errorf("notifications.policy must be prompt, grant or deny, got '%s'", c.Notifications.Policy)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Logging.Collector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("logging.collector needs kafka.brokers")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
