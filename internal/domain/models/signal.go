package models

import (
	"time"
)

// SignalKind is the direction carried by a trade signal.
type SignalKind string

const (
	SignalBuy     SignalKind = "BUY"
	SignalSell    SignalKind = "SELL"
	SignalNeutral SignalKind = "NEUTRAL"
)

// Reserved strategy tags for non-actionable system entries.
const (
	StrategyHeartbeat    = "HEARTBEAT"
	StrategyHourlyReport = "HOURLY_REPORT"
)

// SignalEvent is one document of the signals collection as delivered by the feed.
type SignalEvent struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	Strategy    string     `json:"strategy"`
	Signal      SignalKind `json:"signal"`
	Confidence  float64    `json:"confidence"` // 0-100, missing decodes as 0
	Price       float64    `json:"price"`
	Mode        string     `json:"mode"`
	Description string     `json:"desc"`
	CreatedAt   Timestamp  `json:"created_at"`
}

// IsSystemLog reports whether the event is a heartbeat or periodic report.
func (e SignalEvent) IsSystemLog() bool {
	return e.Strategy == StrategyHeartbeat || e.Strategy == StrategyHourlyReport
}

// Age returns how long ago the event was created relative to now.
func (e SignalEvent) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt.Time)
}

// Snapshot is the full ordered result set of the signals query (newest first).
type Snapshot struct {
	All        []SignalEvent
	ReceivedAt time.Time
}

// Head returns the newest event of the snapshot.
func (s Snapshot) Head() (SignalEvent, bool) {
	if len(s.All) == 0 {
		return SignalEvent{}, false
	}
	return s.All[0], true
}

// Len returns the number of events in the snapshot.
func (s Snapshot) Len() int { return len(s.All) }

// Classification is the partition of a snapshot into actionable and bookkeeping entries.
type Classification struct {
	TradeSignals []SignalEvent `json:"trade_signals"`
	SystemLogs   []SignalEvent `json:"system_logs"`
}
