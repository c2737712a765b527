package capability

import (
	"context"
	"fmt"
	"sync"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	xlogger "SignalPulse/pkg/logger"
)

// PermissionGate mirrors the platform notification permission. It never requests
// on its own; Request must be driven by a user action.
type PermissionGate struct {
	platform domrepo.NotificationPlatform
	logger   *xlogger.Logger

	mu    sync.RWMutex
	state models.Permission
}

// NewPermissionGate creates a gate in the default state. Call Refresh to sync with the platform.
func NewPermissionGate(platform domrepo.NotificationPlatform, logger *xlogger.Logger) *PermissionGate {
	return &PermissionGate{platform: platform, logger: logger, state: models.PermissionDefault}
}

// Refresh re-queries the platform.
func (g *PermissionGate) Refresh(ctx context.Context) models.Permission {
	p := g.platform.Permission(ctx)
	g.mu.Lock()
	g.state = p
	g.mu.Unlock()
	return p
}

// CurrentState returns the mirrored permission.
func (g *PermissionGate) CurrentState() models.Permission {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Granted reports whether notifications may be delivered.
func (g *PermissionGate) Granted() bool {
	return g.CurrentState() == models.PermissionGranted
}

// Request prompts the platform once and mirrors the answer. An already granted
// permission is returned without prompting.
func (g *PermissionGate) Request(ctx context.Context) (models.Permission, error) {
	if g.Granted() {
		return models.PermissionGranted, nil
	}

	p, err := g.platform.RequestPermission(ctx)
	if err != nil {
		return g.CurrentState(), fmt.Errorf("request permission: %w", err)
	}

	g.mu.Lock()
	g.state = p
	g.mu.Unlock()

	g.logger.Info("notification permission resolved", xlogger.String("permission", string(p)))
	return p, nil
}
