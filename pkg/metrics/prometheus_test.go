package metrics

import (
	"testing"

	"SignalPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordSnapshot("signals", 51)
	r.RecordSnapshot("signals", 52)
	r.RecordVerdict("RSI", true)
	r.RecordNotification(models.OutcomeDelivered)
	r.RecordTone("buy", models.OutcomeSkipped)
	r.RecordError("feed_signals")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.snapshots.WithLabelValues("signals")))
	assert.Equal(t, 52.0, testutil.ToFloat64(r.snapshotSize.WithLabelValues("signals")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.verdicts.WithLabelValues("RSI", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues(models.OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tones.WithLabelValues("buy", models.OutcomeSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("feed_signals")))
}

func TestRecorderStatsGauges(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordStats(models.AggregateStats{
		Total:         4,
		Rate:          0.5,
		AvgConfidence: 72,
		Today:         3,
		BySymbol:      map[string]models.SymbolTally{"BTC": {Buys: 2, Sells: 1}},
	})

	assert.Equal(t, 4.0, testutil.ToFloat64(r.signalsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.signalsToday))
	assert.Equal(t, 0.5, testutil.ToFloat64(r.buyRate))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.symbolSignals.WithLabelValues("BTC", "BUY")))
}
