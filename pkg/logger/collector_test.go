package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorDeduplicatesRepeatedEntries(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})
	defer c.Close()

	fields := map[string]interface{}{"collection": "signals"}
	c.AddLog("error", "feed delivery failed", fields, "feed.go:10")
	c.AddLog("error", "feed delivery failed", fields, "feed.go:10")
	c.AddLog("warn", "tone skipped", nil, "player.go:20")

	require.NoError(t, c.Flush(context.Background()))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Equal(t, "logs", pub.topic)
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)

	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	require.Equal(t, 2, counts["feed delivery failed"])
	require.Equal(t, 1, counts["tone skipped"])
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *Logger
	l.Info("ignored", String("k", "v"))
	l.Error("ignored", Error(nil))
	require.Nil(t, l.With(Int("n", 1)))
}
