package usecase

import "SignalPulse/internal/domain/models"

// Classify splits events into trade signals and system logs, preserving order in both.
func Classify(events []models.SignalEvent) models.Classification {
	out := models.Classification{
		TradeSignals: make([]models.SignalEvent, 0, len(events)),
		SystemLogs:   make([]models.SignalEvent, 0),
	}
	for _, e := range events {
		if e.IsSystemLog() {
			out.SystemLogs = append(out.SystemLogs, e)
			continue
		}
		out.TradeSignals = append(out.TradeSignals, e)
	}
	return out
}
