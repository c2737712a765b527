package usecase

import (
	"time"

	"SignalPulse/internal/domain/models"
)

// PipelineResult is everything derived from one signals snapshot.
type PipelineResult struct {
	State          models.DispatchState
	Stats          models.AggregateStats
	Classification models.Classification
	Verdicts       []models.Verdict
	Candidate      *models.SignalEvent
}

// ProcessSnapshot runs classification, aggregation and differencing for one snapshot.
// It has no side effects and can be driven by any scheduler.
func ProcessSnapshot(d *Differ, snap models.Snapshot, state models.DispatchState, now time.Time) PipelineResult {
	cls := Classify(snap.All)
	diff := d.Observe(state, snap, now)

	res := PipelineResult{
		State:          diff.State,
		Stats:          Aggregate(cls.TradeSignals, now),
		Classification: cls,
		Verdicts:       make([]models.Verdict, 0, 1),
		Candidate:      diff.Candidate,
	}
	if diff.Verdict != nil {
		res.Verdicts = append(res.Verdicts, *diff.Verdict)
	}
	return res
}
