package preference

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	domrepo "SignalPulse/internal/domain/repository"
	xlogger "SignalPulse/pkg/logger"
)

// KeySoundEnabled is the persisted sound toggle.
const KeySoundEnabled = "sound_enabled"

// Store keeps user preferences. The sound toggle is read once in Load and
// written through on every change.
type Store struct {
	kv      domrepo.KeyValueStore
	logger  *xlogger.Logger
	timeout time.Duration

	sound atomic.Bool
}

// NewStore creates a store with sound enabled until Load says otherwise.
func NewStore(kv domrepo.KeyValueStore, logger *xlogger.Logger) *Store {
	s := &Store{kv: kv, logger: logger, timeout: 2 * time.Second}
	s.sound.Store(true)
	return s
}

// Load reads persisted values. Absent or unreadable values keep the default.
func (s *Store) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, ok, err := s.kv.Get(ctx, KeySoundEnabled)
	if err != nil {
		return fmt.Errorf("load %s: %w", KeySoundEnabled, err)
	}
	if !ok {
		s.sound.Store(true)
		return nil
	}
	enabled, perr := strconv.ParseBool(raw)
	if perr != nil {
		s.logger.Warn("invalid stored preference", xlogger.String("key", KeySoundEnabled), xlogger.String("value", raw))
		enabled = true
	}
	s.sound.Store(enabled)
	return nil
}

// SoundEnabled returns the current toggle.
func (s *Store) SoundEnabled() bool {
	return s.sound.Load()
}

// SetSoundEnabled persists the toggle before returning. The in-memory value
// changes even when persisting fails.
func (s *Store) SetSoundEnabled(ctx context.Context, enabled bool) error {
	s.sound.Store(enabled)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.kv.Set(ctx, KeySoundEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("persist %s: %w", KeySoundEnabled, err)
	}
	s.logger.Info("sound preference updated", xlogger.Bool("enabled", enabled))
	return nil
}
