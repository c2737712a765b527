package tone

import (
	"time"

	"SignalPulse/internal/domain/models"
)

// Program names.
const (
	NameReportChord = "report_chord"
	NameBuy         = "buy"
	NameBuyFlourish = "buy_flourish"
	NameSell        = "sell"
	NameSellSweep   = "sell_sweep"
	NameNeutral     = "neutral"
)

const (
	// HighConfidence is the confidence from which BUY/SELL tones get a sweep.
	HighConfidence = 80.0

	// StartGain is the envelope's initial amplitude.
	StartGain = 0.1
	// SilenceGain is the envelope target at stop time; exponential ramps cannot reach 0.
	SilenceGain = 0.001

	shortDuration = 300 * time.Millisecond
	longDuration  = 600 * time.Millisecond
	chordDecay    = 1500 * time.Millisecond
	chordStagger  = 100 * time.Millisecond
)

var chordFrequencies = []float64{262, 330, 392}

// Voice is one oscillator with its envelope, relative to the program start.
type Voice struct {
	Waveform  string        `json:"waveform"`
	Frequency float64       `json:"frequency"`
	SweepTo   float64       `json:"sweep_to,omitempty"` // 0 means no sweep
	SweepTime time.Duration `json:"sweep_time,omitempty"`
	Offset    time.Duration `json:"offset"`
	Duration  time.Duration `json:"duration"`
	StartGain float64       `json:"start_gain"`
}

// Program is a deterministic description of an alert sound.
type Program struct {
	Name   string  `json:"name"`
	Voices []Voice `json:"voices"`
}

// Length is the time from program start until its last voice stops.
func (p Program) Length() time.Duration {
	var end time.Duration
	for _, v := range p.Voices {
		if e := v.Offset + v.Duration; e > end {
			end = e
		}
	}
	return end
}

// ReportChord is the major triad played for hourly reports.
func ReportChord() Program {
	p := Program{Name: NameReportChord, Voices: make([]Voice, 0, len(chordFrequencies))}
	for i, f := range chordFrequencies {
		p.Voices = append(p.Voices, Voice{
			Waveform:  "sine",
			Frequency: f,
			Offset:    time.Duration(i) * chordStagger,
			Duration:  chordDecay,
			StartGain: StartGain,
		})
	}
	return p
}

// ForSignal selects the program for a trade signal.
func ForSignal(kind models.SignalKind, confidence float64) Program {
	high := confidence >= HighConfidence
	dur := shortDuration
	if high {
		dur = longDuration
	}

	switch kind {
	case models.SignalBuy:
		base := Voice{Waveform: "sine", Frequency: 880, Duration: dur, StartGain: StartGain}
		if !high {
			return Program{Name: NameBuy, Voices: []Voice{base}}
		}
		flourish := base
		flourish.SweepTo = 1760
		flourish.SweepTime = 100 * time.Millisecond
		return Program{Name: NameBuyFlourish, Voices: []Voice{base, flourish}}
	case models.SignalSell:
		base := Voice{Waveform: "sine", Frequency: 440, Duration: dur, StartGain: StartGain}
		if !high {
			return Program{Name: NameSell, Voices: []Voice{base}}
		}
		sweep := base
		sweep.SweepTo = 220
		sweep.SweepTime = 200 * time.Millisecond
		return Program{Name: NameSellSweep, Voices: []Voice{base, sweep}}
	default:
		return Program{Name: NameNeutral, Voices: []Voice{{
			Waveform:  "sine",
			Frequency: 330,
			Duration:  shortDuration,
			StartGain: StartGain,
		}}}
	}
}

// Select maps an event to its program. ok is false for events that stay silent.
func Select(e models.SignalEvent) (Program, bool) {
	switch e.Strategy {
	case models.StrategyHeartbeat:
		return Program{}, false
	case models.StrategyHourlyReport:
		return ReportChord(), true
	default:
		return ForSignal(e.Signal, e.Confidence), true
	}
}
