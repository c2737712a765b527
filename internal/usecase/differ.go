package usecase

import (
	"time"

	"SignalPulse/internal/domain/models"
)

// DefaultFreshnessWindow is the maximum age an event may have and still alert.
const DefaultFreshnessWindow = 30 * time.Second

// Differ decides whether a snapshot carries a genuinely new, fresh head event.
// Only growth at the head is inspected; several events inserted between two
// deliveries are absorbed and only the newest one is evaluated.
type Differ struct {
	freshness time.Duration
	window    int
}

// DifferOption configures Differ.
type DifferOption func(*Differ)

// WithSaturatedWindow sets the query window size. Once snapshots are that long
// their size no longer grows, so a changed head id at full size counts as growth.
func WithSaturatedWindow(n int) DifferOption {
	return func(d *Differ) {
		if n > 0 {
			d.window = n
		}
	}
}

// NewDiffer creates a Differ. A non-positive window falls back to the default.
func NewDiffer(freshness time.Duration, opts ...DifferOption) *Differ {
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	d := &Differ{freshness: freshness}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FreshnessWindow returns the configured window.
func (d *Differ) FreshnessWindow() time.Duration { return d.freshness }

// DiffResult is the outcome of observing one snapshot.
type DiffResult struct {
	State     models.DispatchState
	Candidate *models.SignalEvent // set when the snapshot grew
	Verdict   *models.Verdict     // set when the candidate is fresh
}

// Observe advances state with snapshot. The first snapshot after a (re)subscription
// only records the size.
func (d *Differ) Observe(state models.DispatchState, snap models.Snapshot, now time.Time) DiffResult {
	next := models.DispatchState{
		Warm:              true,
		LastObservedCount: snap.Len(),
	}
	if head, ok := snap.Head(); ok {
		next.LastObservedHeadID = head.ID
	}

	if !state.Warm {
		return DiffResult{State: next}
	}

	res := DiffResult{State: next}
	if !d.grew(state, snap, next.LastObservedHeadID) {
		return res
	}

	head := snap.All[0]
	res.Candidate = &head
	if d.IsFresh(head, now) {
		res.Verdict = &models.Verdict{Event: head, ObservedAt: now}
	}
	return res
}

func (d *Differ) grew(state models.DispatchState, snap models.Snapshot, headID string) bool {
	if snap.Len() > state.LastObservedCount {
		return true
	}
	saturated := d.window > 0 && snap.Len() == d.window && state.LastObservedCount == d.window
	return saturated && headID != "" && headID != state.LastObservedHeadID
}

// IsFresh reports whether e was created less than the freshness window before now.
func (d *Differ) IsFresh(e models.SignalEvent, now time.Time) bool {
	if e.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(e.CreatedAt.Time) < d.freshness
}
