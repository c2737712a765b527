package api

import (
	"context"
	"net/http"
	"sort"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/usecase"
	xhttp "SignalPulse/pkg/http"
	xlogger "SignalPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// FeedReader exposes the live feed state.
type FeedReader interface {
	Stats() models.AggregateStats
	Classification() models.Classification
	Portfolio() (models.Portfolio, bool)
	Trades(limit int) []models.TradeRecord
	Status() usecase.FeedStatus
	Restart(ctx context.Context) error
}

// Preferences reads and writes the sound toggle.
type Preferences interface {
	SoundEnabled() bool
	SetSoundEnabled(ctx context.Context, enabled bool) error
}

// PermissionController mirrors and requests the notification permission.
type PermissionController interface {
	CurrentState() models.Permission
	Request(ctx context.Context) (models.Permission, error)
}

// AudioUnlocker owns the audio output context.
type AudioUnlocker interface {
	Unlock(ctx context.Context) error
	IsUnlocked() bool
}

// WebsocketServer serves browser clients.
type WebsocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

// FeedEchoOption configures FeedEchoHandler.
type FeedEchoOption func(*FeedEchoHandler)

// WithAlertHistory enables GET /api/alerts.
func WithAlertHistory(h domrepo.AlertHistory) FeedEchoOption {
	return func(f *FeedEchoHandler) { f.history = h }
}

// WithPermissionLimit guards the permission request endpoint.
func WithPermissionLimit(mw echo.MiddlewareFunc) FeedEchoOption {
	return func(f *FeedEchoHandler) { f.permissionLimit = mw }
}

// WithWebsocket enables GET /ws.
func WithWebsocket(ws WebsocketServer) FeedEchoOption {
	return func(f *FeedEchoHandler) { f.ws = ws }
}

// FeedEchoHandler serves the live feed API.
type FeedEchoHandler struct {
	logger     *xlogger.Logger
	feed       FeedReader
	prefs      Preferences
	permission PermissionController
	audio      AudioUnlocker

	history         domrepo.AlertHistory
	permissionLimit echo.MiddlewareFunc
	ws              WebsocketServer
}

func NewFeedEchoHandler(
	logger *xlogger.Logger,
	feed FeedReader,
	prefs Preferences,
	permission PermissionController,
	audio AudioUnlocker,
	opts ...FeedEchoOption,
) *FeedEchoHandler {
	h := &FeedEchoHandler{
		logger:     logger.With(xlogger.String("component", "api")),
		feed:       feed,
		prefs:      prefs,
		permission: permission,
		audio:      audio,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *FeedEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/stats", h.Stats)
	g.GET("/signals", h.Signals)
	g.GET("/portfolio", h.Portfolio)
	g.GET("/trades", h.Trades)
	g.GET("/feed/status", h.FeedStatus)
	g.POST("/feed/restart", h.RestartFeed)
	g.GET("/preferences", h.GetPreferences)
	g.PUT("/preferences/sound", h.SetSound)
	g.GET("/notifications/permission", h.GetPermission)
	if h.permissionLimit != nil {
		g.POST("/notifications/permission", h.RequestPermission, h.permissionLimit)
	} else {
		g.POST("/notifications/permission", h.RequestPermission)
	}
	g.GET("/audio", h.AudioState)
	g.POST("/audio/unlock", h.UnlockAudio)
	g.GET("/alerts", h.Alerts)

	if h.ws != nil {
		e.GET("/ws", h.Websocket)
	}
}

// StatsView is the /api/stats payload.
type StatsView struct {
	models.AggregateStats
	Feed usecase.FeedStatus `json:"feed"`
}

func (h *FeedEchoHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, StatsView{AggregateStats: h.feed.Stats(), Feed: h.feed.Status()})
}

func (h *FeedEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cls := h.feed.Classification()
	var rows []models.SignalEvent
	switch req.Kind {
	case "system":
		rows = cls.SystemLogs
	case "all":
		rows = make([]models.SignalEvent, 0, len(cls.TradeSignals)+len(cls.SystemLogs))
		rows = append(rows, cls.TradeSignals...)
		rows = append(rows, cls.SystemLogs...)
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].CreatedAt.Time.After(rows[j].CreatedAt.Time)
		})
	default:
		rows = cls.TradeSignals
	}
	total := len(rows)
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	if rows == nil {
		rows = []models.SignalEvent{}
	}
	return xhttp.ListResponse(c, rows, int64(total))
}

func (h *FeedEchoHandler) Portfolio(c echo.Context) error {
	p, ok := h.feed.Portfolio()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("portfolio not received yet"))
	}
	return xhttp.SuccessResponse(c, p.View())
}

func (h *FeedEchoHandler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.feed.Trades(req.Limit)
	if rows == nil {
		rows = []models.TradeRecord{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FeedEchoHandler) FeedStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.feed.Status())
}

func (h *FeedEchoHandler) RestartFeed(c echo.Context) error {
	if err := h.feed.Restart(context.WithoutCancel(c.Request().Context())); err != nil {
		h.logger.Error("feed restart failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("feed restart failed").WithError(err))
	}
	return xhttp.AcceptedResponse(c, h.feed.Status())
}

// PreferencesView is the /api/preferences payload.
type PreferencesView struct {
	SoundEnabled bool `json:"sound_enabled"`
}

func (h *FeedEchoHandler) GetPreferences(c echo.Context) error {
	return xhttp.SuccessResponse(c, PreferencesView{SoundEnabled: h.prefs.SoundEnabled()})
}

func (h *FeedEchoHandler) SetSound(c echo.Context) error {
	req := &models.SoundToggleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.prefs.SetSoundEnabled(c.Request().Context(), *req.Enabled); err != nil {
		// the toggle still applies for this process
		h.logger.Warn("sound preference not persisted", xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, PreferencesView{SoundEnabled: h.prefs.SoundEnabled()})
}

// PermissionView is the notification permission payload.
type PermissionView struct {
	Permission models.Permission `json:"permission"`
}

func (h *FeedEchoHandler) GetPermission(c echo.Context) error {
	return xhttp.SuccessResponse(c, PermissionView{Permission: h.permission.CurrentState()})
}

func (h *FeedEchoHandler) RequestPermission(c echo.Context) error {
	p, err := h.permission.Request(c.Request().Context())
	if err != nil {
		h.logger.Warn("permission request failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("permission request failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, PermissionView{Permission: p})
}

// AudioView is the audio output payload.
type AudioView struct {
	Unlocked bool `json:"unlocked"`
}

func (h *FeedEchoHandler) AudioState(c echo.Context) error {
	return xhttp.SuccessResponse(c, AudioView{Unlocked: h.audio.IsUnlocked()})
}

func (h *FeedEchoHandler) UnlockAudio(c echo.Context) error {
	if err := h.audio.Unlock(c.Request().Context()); err != nil {
		h.logger.Warn("audio unlock failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("audio output unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, AudioView{Unlocked: h.audio.IsUnlocked()})
}

func (h *FeedEchoHandler) Alerts(c echo.Context) error {
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("alert history is not configured"))
	}
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since, aerr := xhttp.ParseSince(req.Since)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	rows, err := h.history.Recent(c.Request().Context(), req.Symbol, since, req.Limit)
	if err != nil {
		h.logger.Error("alert history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("alert history unavailable").WithError(err))
	}
	if rows == nil {
		rows = []models.AlertRecord{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FeedEchoHandler) Websocket(c echo.Context) error {
	if err := h.ws.ServeWS(c.Response(), c.Request()); err != nil {
		h.logger.Debug("websocket upgrade rejected", xlogger.Error(err))
	}
	return nil
}
