// Package audio models the audio output context tones are scheduled against.
// The Engine implementation does not produce sound itself: it renders every
// scheduled oscillator into a ScheduledVoice and hands it to a Sink, which
// forwards it to the clients that own real speakers.
package audio

import "context"

// State of an output context.
type State string

const (
	StateSuspended State = "suspended"
	StateRunning   State = "running"
	StateClosed    State = "closed"
)

// Param is a schedulable node parameter. Times are context seconds.
type Param interface {
	SetValueAtTime(value, t float64)
	LinearRampToValueAtTime(value, t float64)
	ExponentialRampToValueAtTime(value, t float64)
}

// Oscillator is a single-use tone source.
type Oscillator interface {
	SetType(waveform string)
	Frequency() Param
	Connect(g Gain)
	Start(t float64)
	Stop(t float64)
}

// Gain is an amplitude node.
type Gain interface {
	Gain() Param
	ConnectDestination()
}

// Context is the shared output context.
type Context interface {
	State() State
	Resume(ctx context.Context) error
	CurrentTime() float64
	NewOscillator() Oscillator
	NewGain() Gain
}

// Factory creates the output context on first use.
type Factory func() (Context, error)
