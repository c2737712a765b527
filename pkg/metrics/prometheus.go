package metrics

import (
	"strconv"

	"SignalPulse/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	snapshots     *prometheus.CounterVec
	snapshotSize  *prometheus.GaugeVec
	verdicts      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	tones         *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec

	signalsTotal  prometheus.Gauge
	signalsToday  prometheus.Gauge
	buyRate       prometheus.Gauge
	avgConfidence prometheus.Gauge
	symbolSignals *prometheus.GaugeVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		snapshots: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalpulse_snapshots_total",
				Help: "Total number of feed deliveries accepted per collection",
			},
			[]string{"collection"},
		),
		snapshotSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalpulse_snapshot_size",
				Help: "Number of documents in the last delivery per collection",
			},
			[]string{"collection"},
		),
		verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalpulse_head_candidates_total",
				Help: "Head events seen on snapshot growth, by strategy and freshness",
			},
			[]string{"strategy", "fresh"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalpulse_notifications_total",
				Help: "Notification outcomes",
			},
			[]string{"outcome"},
		),
		tones: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalpulse_tones_total",
				Help: "Tone outcomes by program",
			},
			[]string{"tone", "outcome"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		signalsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalpulse_signals_total",
			Help: "Trade signals in the last snapshot",
		}),
		signalsToday: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalpulse_signals_today",
			Help: "Trade signals created today",
		}),
		buyRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalpulse_buy_rate",
			Help: "Share of BUY signals in the last snapshot",
		}),
		avgConfidence: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalpulse_avg_confidence",
			Help: "Average confidence of trade signals",
		}),
		symbolSignals: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalpulse_symbol_signals",
				Help: "Signals per symbol and kind in the last snapshot",
			},
			[]string{"symbol", "signal"},
		),
	}
}

// RecordSnapshot records an accepted delivery.
func (r *Recorder) RecordSnapshot(collection string, size int) {
	r.snapshots.WithLabelValues(collection).Inc()
	r.snapshotSize.WithLabelValues(collection).Set(float64(size))
}

// RecordVerdict records a head candidate.
func (r *Recorder) RecordVerdict(strategy string, fresh bool) {
	r.verdicts.WithLabelValues(strategy, strconv.FormatBool(fresh)).Inc()
}

func (r *Recorder) RecordNotification(outcome string) {
	r.notifications.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordTone(name, outcome string) {
	r.tones.WithLabelValues(name, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordStats publishes the latest aggregates as gauges.
func (r *Recorder) RecordStats(s models.AggregateStats) {
	r.signalsTotal.Set(float64(s.Total))
	r.signalsToday.Set(float64(s.Today))
	r.buyRate.Set(s.Rate)
	r.avgConfidence.Set(s.AvgConfidence)

	r.symbolSignals.Reset()
	for sym, t := range s.BySymbol {
		r.symbolSignals.WithLabelValues(sym, string(models.SignalBuy)).Set(float64(t.Buys))
		r.symbolSignals.WithLabelValues(sym, string(models.SignalSell)).Set(float64(t.Sells))
		r.symbolSignals.WithLabelValues(sym, string(models.SignalNeutral)).Set(float64(t.Neutral))
	}
}
