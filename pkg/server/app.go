package server

import (
	"context"
	"fmt"

	"SignalPulse/internal/service/capability"
	"SignalPulse/internal/service/hub"
	"SignalPulse/internal/service/preference"
	"SignalPulse/internal/usecase"
	"SignalPulse/pkg/config"
	xhttp "SignalPulse/pkg/http"
	xlogger "SignalPulse/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Runner is a background component that works until ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// Primer is implemented by feed drivers that can load the existing backlog
// into the mirror before the live feed subscribes.
type Primer interface {
	Prime(ctx context.Context) error
}

// Workers are optional background runners started next to the feed driver.
type Workers []Runner

// App owns the process lifecycle.
type App struct {
	cfg        *config.Config
	logger     *xlogger.Logger
	feed       *usecase.LiveFeed
	driver     Runner
	workers    Workers
	httpServer *xhttp.Server
	prefs      *preference.Store
	permission *capability.PermissionGate
	audio      *capability.AudioGate
	hub        *hub.Hub
}

// New creates an App.
func New(
	cfg *config.Config,
	logger *xlogger.Logger,
	feed *usecase.LiveFeed,
	driver Runner,
	workers Workers,
	httpServer *xhttp.Server,
	prefs *preference.Store,
	permission *capability.PermissionGate,
	audio *capability.AudioGate,
	clients *hub.Hub,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		feed:       feed,
		driver:     driver,
		workers:    workers,
		httpServer: httpServer,
		prefs:      prefs,
		permission: permission,
		audio:      audio,
		hub:        clients,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.prefs.Load(ctx); err != nil {
		a.logger.Warn("preferences not loaded, using defaults", xlogger.Error(err))
	}
	perm := a.permission.Refresh(ctx)
	a.logger.Info("notification permission", xlogger.String("permission", string(perm)))
	if a.cfg.Audio.UnlockOnConnect {
		a.audio.Listen(a.hub)
	}

	a.primeDriver(ctx)
	if err := a.feed.Start(ctx); err != nil {
		return fmt.Errorf("start live feed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.driver.Run(gctx); err != nil {
			return fmt.Errorf("feed driver: %w", err)
		}
		return nil
	})
	for _, w := range a.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		return a.httpServer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	a.logger.Info("signalpulse started",
		xlogger.String("env", a.cfg.Environment),
		xlogger.String("feed_source", a.cfg.Feed.Source),
		xlogger.Int("port", a.cfg.Server.Port),
	)
	err := g.Wait()
	a.logger.Info("signalpulse stopped")
	return err
}

// primeDriver loads the backlog when the driver supports it. A failed prime
// is logged and the driver catches up once it runs.
func (a *App) primeDriver(ctx context.Context) bool {
	p, ok := a.driver.(Primer)
	if !ok {
		return false
	}
	if err := p.Prime(ctx); err != nil {
		a.logger.Warn("feed backlog not fully loaded", xlogger.Error(err))
		return false
	}
	return true
}

func (a *App) shutdown() {
	a.logger.Info("shutting down")
	a.feed.Stop()
	a.audio.Close()
	a.hub.Close()
}
