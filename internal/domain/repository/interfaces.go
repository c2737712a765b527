package repository

import (
	"context"
	"time"

	"SignalPulse/internal/domain/models"
)

// Collections served by the document store.
const (
	CollectionSignals   = "signals"
	CollectionPortfolio = "portfolio"
	CollectionTrades    = "trades"
)

// SignalsCallback receives the full signals result set on every change.
type SignalsCallback func(events []models.SignalEvent, err error)

// PortfolioCallback receives the portfolio document on every change.
type PortfolioCallback func(p *models.Portfolio, err error)

// TradesCallback receives the full trades result set on every change.
type TradesCallback func(trades []models.TradeRecord, err error)

// Unsubscribe cancels one live query. It must be safe to call more than once.
type Unsubscribe func()

// FeedSource is the push-based document store. Every change redelivers the whole
// current result set of the query, ordered by created_at descending.
type FeedSource interface {
	WatchSignals(ctx context.Context, limit int, cb SignalsCallback) (Unsubscribe, error)
	WatchPortfolio(ctx context.Context, docID string, cb PortfolioCallback) (Unsubscribe, error)
	WatchTrades(ctx context.Context, limit int, cb TradesCallback) (Unsubscribe, error)
}

// KeyValueStore is the durable preference persistence.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// NotificationPlatform is the system notification surface.
type NotificationPlatform interface {
	Permission(ctx context.Context) models.Permission
	RequestPermission(ctx context.Context) (models.Permission, error)
	Notify(ctx context.Context, n models.Notification) error
}

// AlertSink receives the audit record of every handled verdict.
type AlertSink interface {
	Record(ctx context.Context, rec models.AlertRecord) error
}

// AlertHistory queries previously recorded alerts.
type AlertHistory interface {
	Recent(ctx context.Context, symbol string, since time.Time, limit int) ([]models.AlertRecord, error)
}

// StatsBroadcaster pushes fresh aggregates to live consumers.
type StatsBroadcaster interface {
	BroadcastStats(stats models.AggregateStats)
}

type Metrics interface {
	RecordSnapshot(collection string, size int)
	RecordVerdict(strategy string, fresh bool)
	RecordNotification(outcome string)
	RecordTone(name, outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordStats(stats models.AggregateStats)
}
