package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"SignalPulse/internal/service/audio"
	xlogger "SignalPulse/pkg/logger"
)

// ErrContextUnavailable means no running audio context exists yet.
var ErrContextUnavailable = errors.New("audio context unavailable")

// GestureSource delivers user gestures (click, touch, key). The returned func stops delivery.
type GestureSource interface {
	OnGesture(fn func()) (cancel func())
}

// AudioGate owns the single audio output context of the process. The context is
// created lazily and resumed by the first user gesture.
type AudioGate struct {
	factory audio.Factory
	logger  *xlogger.Logger

	mu       sync.Mutex
	ac       audio.Context
	unlocked bool
	cancel   func()
}

// NewAudioGate creates a gate; no context is built until needed.
func NewAudioGate(factory audio.Factory, logger *xlogger.Logger) *AudioGate {
	return &AudioGate{factory: factory, logger: logger}
}

// context returns the shared context, creating it on first use. Caller holds mu.
func (g *AudioGate) context() (audio.Context, error) {
	if g.ac != nil {
		return g.ac, nil
	}
	if g.factory == nil {
		return nil, ErrContextUnavailable
	}
	ac, err := g.factory()
	if err != nil {
		return nil, fmt.Errorf("create audio context: %w", err)
	}
	g.ac = ac
	return ac, nil
}

// Listen waits for the first gesture from src, then unlocks and stops listening.
// Calling Listen on an unlocked gate does nothing.
func (g *AudioGate) Listen(src GestureSource) {
	g.mu.Lock()
	if g.unlocked || g.cancel != nil {
		g.mu.Unlock()
		return
	}
	var once sync.Once
	g.cancel = src.OnGesture(func() {
		once.Do(func() {
			if err := g.Unlock(context.Background()); err != nil {
				g.logger.Warn("audio unlock on gesture failed", xlogger.Error(err))
			}
		})
	})
	g.mu.Unlock()
}

// Unlock resumes the context. It is idempotent.
func (g *AudioGate) Unlock(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ac, err := g.context()
	if err != nil {
		return err
	}
	if ac.State() != audio.StateRunning {
		if err := ac.Resume(ctx); err != nil {
			return fmt.Errorf("resume audio context: %w", err)
		}
	}
	if !g.unlocked {
		g.logger.Info("audio context unlocked")
	}
	g.unlocked = true
	g.stopListeningLocked()
	return nil
}

// IsUnlocked reports whether the context exists and is running.
func (g *AudioGate) IsUnlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked && g.ac != nil && g.ac.State() == audio.StateRunning
}

// Running returns the context when it is unlocked and running.
func (g *AudioGate) Running() (audio.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.unlocked || g.ac == nil || g.ac.State() != audio.StateRunning {
		return nil, ErrContextUnavailable
	}
	return g.ac, nil
}

// Close stops listening for gestures.
func (g *AudioGate) Close() {
	g.mu.Lock()
	g.stopListeningLocked()
	g.mu.Unlock()
}

func (g *AudioGate) stopListeningLocked() {
	if g.cancel != nil {
		cancel := g.cancel
		g.cancel = nil
		cancel()
	}
}
