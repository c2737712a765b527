package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when resuming a closed context.
var ErrClosed = errors.New("audio: context closed")

// Automation is one scheduled parameter change.
type Automation struct {
	Kind  string  `json:"kind"` // set, linear, exponential
	Value float64 `json:"value"`
	Time  float64 `json:"time"`
}

// ScheduledVoice is a fully scheduled oscillator ready to be played by a client.
type ScheduledVoice struct {
	Waveform  string       `json:"waveform"`
	Start     float64      `json:"start"`
	Stop      float64      `json:"stop"`
	Frequency []Automation `json:"frequency"`
	Gain      []Automation `json:"gain"`
	Connected bool         `json:"connected"`
}

// Sink receives rendered voices.
type Sink interface {
	EmitVoice(v ScheduledVoice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(v ScheduledVoice)

func (f SinkFunc) EmitVoice(v ScheduledVoice) { f(v) }

// Engine is an in-process Context. It starts suspended.
type Engine struct {
	mu     sync.Mutex
	state  State
	origin time.Time
	sink   Sink
	now    func() time.Time
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a suspended engine that renders into sink.
func NewEngine(sink Sink, opts ...EngineOption) *Engine {
	e := &Engine{state: StateSuspended, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.origin = e.now()
	return e
}

// NewFactory returns a Factory building an Engine bound to sink.
func NewFactory(sink Sink, opts ...EngineOption) Factory {
	return func() (Context, error) {
		return NewEngine(sink, opts...), nil
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Resume(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return ErrClosed
	}
	e.state = StateRunning
	return nil
}

// Close moves the engine to its terminal state.
func (e *Engine) Close() {
	e.mu.Lock()
	e.state = StateClosed
	e.mu.Unlock()
}

func (e *Engine) CurrentTime() float64 {
	return e.now().Sub(e.origin).Seconds()
}

func (e *Engine) NewOscillator() Oscillator {
	return &oscillator{engine: e, waveform: "sine", freq: &param{}}
}

func (e *Engine) NewGain() Gain {
	return &gainNode{gain: &param{}}
}

func (e *Engine) emit(v ScheduledVoice) {
	e.mu.Lock()
	running := e.state == StateRunning
	e.mu.Unlock()
	if !running || e.sink == nil {
		return
	}
	e.sink.EmitVoice(v)
}

type param struct {
	events []Automation
}

func (p *param) SetValueAtTime(value, t float64) {
	p.events = append(p.events, Automation{Kind: "set", Value: value, Time: t})
}

func (p *param) LinearRampToValueAtTime(value, t float64) {
	p.events = append(p.events, Automation{Kind: "linear", Value: value, Time: t})
}

func (p *param) ExponentialRampToValueAtTime(value, t float64) {
	p.events = append(p.events, Automation{Kind: "exponential", Value: value, Time: t})
}

func (p *param) snapshot() []Automation {
	out := make([]Automation, len(p.events))
	copy(out, p.events)
	return out
}

type gainNode struct {
	gain      *param
	connected bool
}

func (g *gainNode) Gain() Param         { return g.gain }
func (g *gainNode) ConnectDestination() { g.connected = true }

type oscillator struct {
	engine   *Engine
	waveform string
	freq     *param
	out      *gainNode
	start    float64
	started  bool
}

func (o *oscillator) SetType(waveform string) { o.waveform = waveform }
func (o *oscillator) Frequency() Param        { return o.freq }

func (o *oscillator) Connect(g Gain) {
	if gn, ok := g.(*gainNode); ok {
		o.out = gn
	}
}

func (o *oscillator) Start(t float64) {
	o.start = t
	o.started = true
}

// Stop completes the node graph and renders it.
func (o *oscillator) Stop(t float64) {
	if !o.started {
		return
	}
	v := ScheduledVoice{
		Waveform:  o.waveform,
		Start:     o.start,
		Stop:      t,
		Frequency: o.freq.snapshot(),
	}
	if o.out != nil {
		v.Gain = o.out.gain.snapshot()
		v.Connected = o.out.connected
	}
	o.engine.emit(v)
}
