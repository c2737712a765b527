package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/service/ratelimit"
	"SignalPulse/internal/usecase"
	xlogger "SignalPulse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func stamp(t time.Time) models.Timestamp { return models.Timestamp{Time: t} }

type fakeFeed struct {
	cls       models.Classification
	portfolio *models.Portfolio
	trades    []models.TradeRecord
	restarts  int
}

func (f *fakeFeed) Stats() models.AggregateStats {
	return models.AggregateStats{Total: len(f.cls.TradeSignals), BestSymbol: "BTC"}
}
func (f *fakeFeed) Classification() models.Classification { return f.cls }
func (f *fakeFeed) Portfolio() (models.Portfolio, bool) {
	if f.portfolio == nil {
		return models.Portfolio{}, false
	}
	return *f.portfolio, true
}
func (f *fakeFeed) Trades(limit int) []models.TradeRecord {
	if limit > len(f.trades) {
		limit = len(f.trades)
	}
	return f.trades[:limit]
}
func (f *fakeFeed) Status() usecase.FeedStatus { return usecase.FeedStatus{Running: true, Freshness: "30s"} }
func (f *fakeFeed) Restart(context.Context) error {
	f.restarts++
	return nil
}

type fakePrefs struct {
	sound bool
	err   error
}

func (p *fakePrefs) SoundEnabled() bool { return p.sound }
func (p *fakePrefs) SetSoundEnabled(_ context.Context, v bool) error {
	p.sound = v
	return p.err
}

type fakePermission struct{ state models.Permission }

func (p *fakePermission) CurrentState() models.Permission { return p.state }
func (p *fakePermission) Request(context.Context) (models.Permission, error) {
	p.state = models.PermissionGranted
	return p.state, nil
}

type fakeAudio struct {
	unlocked bool
	err      error
}

func (a *fakeAudio) Unlock(context.Context) error {
	if a.err != nil {
		return a.err
	}
	a.unlocked = true
	return nil
}
func (a *fakeAudio) IsUnlocked() bool { return a.unlocked }

type fakeHistory struct {
	symbol string
	since  time.Time
	limit  int
}

func (h *fakeHistory) Recent(_ context.Context, symbol string, since time.Time, limit int) ([]models.AlertRecord, error) {
	h.symbol, h.since, h.limit = symbol, since, limit
	return []models.AlertRecord{{EventID: "e1", Symbol: symbol}}, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type fixture struct {
	e       *echo.Echo
	feed    *fakeFeed
	prefs   *fakePrefs
	perm    *fakePermission
	audio   *fakeAudio
	history *fakeHistory
}

func newFixture(opts ...FeedEchoOption) *fixture {
	f := &fixture{
		e:       echo.New(),
		feed:    &fakeFeed{},
		prefs:   &fakePrefs{sound: true},
		perm:    &fakePermission{state: models.PermissionDefault},
		audio:   &fakeAudio{},
		history: &fakeHistory{},
	}
	opts = append([]FeedEchoOption{WithAlertHistory(f.history)}, opts...)
	NewFeedEchoHandler(xlogger.Nop(), f.feed, f.prefs, f.perm, f.audio, opts...).RegisterRoutes(f.e)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestSignalsByKind(t *testing.T) {
	f := newFixture()
	f.feed.cls = models.Classification{
		TradeSignals: []models.SignalEvent{
			{ID: "t2", CreatedAt: stamp(at)},
			{ID: "t1", CreatedAt: stamp(at.Add(-2 * time.Minute))},
		},
		SystemLogs: []models.SignalEvent{
			{ID: "hb", Strategy: models.StrategyHeartbeat, CreatedAt: stamp(at.Add(-time.Minute))},
		},
	}

	code, env := f.do(t, http.MethodGet, "/api/signals?limit=1", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.SignalEvent `json:"rows"`
		Total int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "t2", list.Rows[0].ID)

	_, env = f.do(t, http.MethodGet, "/api/signals?kind=all", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	ids := []string{}
	for _, r := range list.Rows {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"t2", "hb", "t1"}, ids)

	code, _ = f.do(t, http.MethodGet, "/api/signals?kind=orders", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPortfolioView(t *testing.T) {
	f := newFixture()
	code, _ := f.do(t, http.MethodGet, "/api/portfolio", "")
	assert.Equal(t, http.StatusNotFound, code)

	f.feed.portfolio = &models.Portfolio{Balance: 11000, InitialBalance: 10000, TotalTrades: 4, WinningTrades: 3}
	code, env := f.do(t, http.MethodGet, "/api/portfolio", "")
	require.Equal(t, http.StatusOK, code)
	var view models.PortfolioView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "75.0", view.WinRate)
	assert.Equal(t, "1000.00", view.PnL)
	assert.Equal(t, "10.00", view.PnLPct)
}

func TestSoundToggle(t *testing.T) {
	f := newFixture()
	code, _ := f.do(t, http.MethodPut, "/api/preferences/sound", `{}`)
	assert.Equal(t, http.StatusBadRequest, code, "enabled is required")

	f.prefs.err = errors.New("redis down")
	code, env := f.do(t, http.MethodPut, "/api/preferences/sound", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"sound_enabled":false}`, string(env.Data))
	assert.False(t, f.prefs.sound)
}

func TestPermissionRequestIsRateLimited(t *testing.T) {
	f := newFixture(WithPermissionLimit(ratelimit.New(1, 0).Middleware()))

	_, env := f.do(t, http.MethodGet, "/api/notifications/permission", "")
	assert.JSONEq(t, `{"permission":"default"}`, string(env.Data))

	code, env := f.do(t, http.MethodPost, "/api/notifications/permission", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"permission":"granted"}`, string(env.Data))

	code, _ = f.do(t, http.MethodPost, "/api/notifications/permission", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestAudioUnlock(t *testing.T) {
	f := newFixture()
	_, env := f.do(t, http.MethodGet, "/api/audio", "")
	assert.JSONEq(t, `{"unlocked":false}`, string(env.Data))

	code, env := f.do(t, http.MethodPost, "/api/audio/unlock", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"unlocked":true}`, string(env.Data))

	g := newFixture()
	g.audio.err = errors.New("no device")
	code, _ = g.do(t, http.MethodPost, "/api/audio/unlock", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAlertsQuery(t *testing.T) {
	f := newFixture()
	code, _ := f.do(t, http.MethodGet, "/api/alerts?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/alerts?symbol=ETH&since=2024-05-10T00:00:00Z&limit=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ETH", f.history.symbol)
	assert.Equal(t, 5, f.history.limit)
	assert.True(t, f.history.since.Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)))
}

func TestFeedRestartAndTrades(t *testing.T) {
	f := newFixture()
	f.feed.trades = make([]models.TradeRecord, 30)

	code, env := f.do(t, http.MethodGet, "/api/trades", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(20), list.Total)

	code, _ = f.do(t, http.MethodPost, "/api/feed/restart", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, 1, f.feed.restarts)

	_, env = f.do(t, http.MethodGet, "/api/stats", "")
	assert.Contains(t, string(env.Data), `"best_symbol":"BTC"`)
	assert.Contains(t, string(env.Data), `"running":true`)
}
