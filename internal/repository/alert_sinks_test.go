package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"SignalPulse/internal/domain/models"
	"SignalPulse/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topic string
	key   string
	value interface{}
}

func (c *capturePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	c.topic, c.key, c.value = topic, string(key), value
	return nil
}

func TestKafkaAlertPublisherKeysBySymbol(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewKafkaAlertPublisher(pub, "signalpulse.alerts")

	require.NoError(t, sink.Record(context.Background(), models.AlertRecord{EventID: "e1", Symbol: "BTC"}))
	assert.Equal(t, "signalpulse.alerts", pub.topic)
	assert.Equal(t, "BTC", pub.key)

	require.NoError(t, sink.Record(context.Background(), models.AlertRecord{EventID: "r1", Strategy: models.StrategyHourlyReport}))
	assert.Equal(t, models.StrategyHourlyReport, pub.key)
}

func TestRecentQueryFilters(t *testing.T) {
	s := NewCHAlertStore(nil, "signalpulse", nil)

	q, args := s.recentQuery("", time.Time{}, 50)
	assert.NotContains(t, q, "WHERE")
	assert.Equal(t, []any{50}, args)

	since := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	q, args = s.recentQuery("ETH", since, 10)
	assert.True(t, strings.Contains(q, "FROM signalpulse.dispatch_log FINAL WHERE symbol = ? AND dispatched_at >= ?"))
	assert.Equal(t, []any{"ETH", since, 10}, args)
}

func TestDispatchLogSchema(t *testing.T) {
	stmts := DispatchLogSchema("signalpulse")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "signalpulse.dispatch_log")
}

func TestCacheKeyValueStore(t *testing.T) {
	ctx := context.Background()
	kv := NewCacheKeyValueStore(cache.NewMemoryCache())

	_, ok, err := kv.Get(ctx, "sound_enabled")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "sound_enabled", "false"))
	v, ok, err := kv.Get(ctx, "sound_enabled")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "false", v)
}
