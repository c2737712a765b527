package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
environment: dev
kafka:
  brokers: ["localhost:9092"]
`

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, SourceKafka, c.Feed.Source)
	assert.Equal(t, 100, c.Feed.SignalsWindow)
	assert.Equal(t, 20, c.Feed.TradesWindow)
	assert.Equal(t, 30*time.Second, c.Feed.Freshness)
	assert.Equal(t, "signals", c.Kafka.Topics.Signals)
	assert.Equal(t, "signal-alerts", c.Kafka.Topics.Alerts)
	assert.Equal(t, 30*time.Second, c.Kafka.Consumer.PrimeTimeout)
	assert.Zero(t, c.Kafka.Consumer.Lookback)
	assert.Equal(t, "prompt", c.Notifications.Policy)
	assert.Equal(t, 3, c.Notifications.Queue.Retries)
	assert.Equal(t, 5*time.Second, c.Notifications.Queue.RetryDelay)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing environment": "kafka:\n  brokers: [a]\n",
		"unknown source":      "environment: dev\nfeed:\n  source: firestore\n",
		"docstream no url":    "environment: dev\nfeed:\n  source: docstream\n",
		"negative window":     minimal + "feed:\n  signals_window: -1\n",
		"bad policy":          minimal + "notifications:\n  policy: ask\n",
		"redis without addr":  minimal + "redis:\n  enabled: true\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("NOTIFY_POLICY", "grant")
	t.Setenv("HTTP_PORT", "9090")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, "grant", c.Notifications.Policy)
	assert.Equal(t, 9090, c.Server.Port)
}
