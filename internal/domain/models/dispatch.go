package models

import "time"

// DispatchState is the differencing memory of one active subscription.
// The zero value is the Cold state.
type DispatchState struct {
	Warm               bool   `json:"warm"`
	LastObservedCount  int    `json:"last_observed_count"`
	LastObservedHeadID string `json:"last_observed_head_id"`
}

// Verdict is emitted when a fresh head event appears.
type Verdict struct {
	Event      SignalEvent
	ObservedAt time.Time
}

// Permission mirrors the platform notification permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notification is a system notification handed to the platform.
type Notification struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DispatchOutcome values recorded per channel.
const (
	OutcomeDelivered = "delivered"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeSilent    = "silent"
)

// AlertRecord is the audit entry written for each handled verdict.
type AlertRecord struct {
	EventID      string     `json:"event_id"`
	Symbol       string     `json:"symbol"`
	Strategy     string     `json:"strategy"`
	Signal       SignalKind `json:"signal"`
	Confidence   float64    `json:"confidence"`
	Price        float64    `json:"price"`
	Title        string     `json:"title"`
	Notification string     `json:"notification"`
	Tone         string     `json:"tone"`
	ToneName     string     `json:"tone_name"`
	EventAt      time.Time  `json:"event_at"`
	DispatchedAt time.Time  `json:"dispatched_at"`
}
