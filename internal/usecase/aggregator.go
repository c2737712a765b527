package usecase

import (
	"time"

	"SignalPulse/internal/domain/models"
	xutil "SignalPulse/pkg/util"
)

// Aggregate recomputes all statistics from trade signals. now fixes the local day
// used for the today count; nothing else depends on it.
func Aggregate(signals []models.SignalEvent, now time.Time) models.AggregateStats {
	stats := models.AggregateStats{
		BySymbol:    make(map[string]models.SymbolTally),
		Symbols:     make([]string, 0),
		BestSymbol:  models.NoSymbol,
		WorstSymbol: models.NoSymbol,
	}

	var confSum float64
	for _, s := range signals {
		stats.Total++
		confSum += s.Confidence

		tally, seen := stats.BySymbol[s.Symbol]
		if !seen {
			stats.Symbols = append(stats.Symbols, s.Symbol)
		}
		switch s.Signal {
		case models.SignalBuy:
			stats.Buys++
			tally.Buys++
		case models.SignalSell:
			stats.Sells++
			tally.Sells++
		default:
			tally.Neutral++
		}
		stats.BySymbol[s.Symbol] = tally

		if !s.CreatedAt.IsZero() && xutil.SameDay(s.CreatedAt.Time, now) {
			stats.Today++
		}
	}

	if stats.Total > 0 {
		stats.Rate = float64(stats.Buys) / float64(stats.Total)
		stats.AvgConfidence = confSum / float64(stats.Total)
	}

	// strict > keeps the first symbol seen on ties
	maxBuys, maxSells := 0, 0
	for _, sym := range stats.Symbols {
		t := stats.BySymbol[sym]
		if t.Buys > maxBuys {
			maxBuys = t.Buys
			stats.BestSymbol = sym
		}
		if t.Sells > maxSells {
			maxSells = t.Sells
			stats.WorstSymbol = sym
		}
	}
	return stats
}
