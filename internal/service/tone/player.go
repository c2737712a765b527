package tone

import (
	"fmt"

	"SignalPulse/internal/service/audio"
	xlogger "SignalPulse/pkg/logger"
)

// ContextProvider hands out the running output context.
type ContextProvider interface {
	Running() (audio.Context, error)
}

// Player schedules programs against the shared output context. Each voice gets
// its own oscillator and gain node, so overlapping programs never share state.
type Player struct {
	provider ContextProvider
	logger   *xlogger.Logger
}

// NewPlayer creates a Player.
func NewPlayer(provider ContextProvider, logger *xlogger.Logger) *Player {
	return &Player{provider: provider, logger: logger}
}

// Play schedules p starting now. It reports whether the program was scheduled;
// a locked or failing context is logged and absorbed.
func (pl *Player) Play(p Program) (played bool) {
	defer func() {
		if r := recover(); r != nil {
			pl.warn(p, fmt.Errorf("schedule panic: %v", r))
			played = false
		}
	}()

	ac, err := pl.provider.Running()
	if err != nil {
		pl.warn(p, err)
		return false
	}

	now := ac.CurrentTime()
	for _, v := range p.Voices {
		schedule(ac, v, now)
	}
	return true
}

func schedule(ac audio.Context, v Voice, base float64) {
	start := base + v.Offset.Seconds()
	stop := start + v.Duration.Seconds()

	osc := ac.NewOscillator()
	gain := ac.NewGain()
	osc.SetType(v.Waveform)
	osc.Connect(gain)
	gain.ConnectDestination()

	osc.Frequency().SetValueAtTime(v.Frequency, start)
	if v.SweepTo > 0 && v.SweepTime > 0 {
		osc.Frequency().LinearRampToValueAtTime(v.SweepTo, start+v.SweepTime.Seconds())
	}

	gain.Gain().SetValueAtTime(v.StartGain, start)
	gain.Gain().ExponentialRampToValueAtTime(SilenceGain, stop)

	osc.Start(start)
	osc.Stop(stop)
}

func (pl *Player) warn(p Program, err error) {
	pl.logger.Warn("tone skipped", xlogger.String("tone", p.Name), xlogger.Error(err))
}
