package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/service/tone"
	xlogger "SignalPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HourlyReportTitle is the notification title of periodic reports.
const HourlyReportTitle = "Hourly Report"

// PermissionChecker answers whether notifications are granted.
type PermissionChecker interface {
	Granted() bool
}

// SoundPreference answers whether tones are enabled.
type SoundPreference interface {
	SoundEnabled() bool
}

// TonePlayer schedules a tone program.
type TonePlayer interface {
	Play(p tone.Program) bool
}

// DispatcherOption configures Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAlertSinks adds audit sinks.
func WithAlertSinks(sinks ...domrepo.AlertSink) DispatcherOption {
	return func(d *Dispatcher) {
		for _, s := range sinks {
			if s != nil {
				d.sinks = append(d.sinks, s)
			}
		}
	}
}

// WithNotificationIcon sets the icon sent with notifications.
func WithNotificationIcon(icon string) DispatcherOption {
	return func(d *Dispatcher) { d.icon = icon }
}

// WithDispatchClock overrides the time source.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDedupCapacity bounds how many handled event ids are remembered.
func WithDedupCapacity(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.capacity = n
		}
	}
}

// Dispatcher turns verdicts into at most one notification and one tone per event id.
type Dispatcher struct {
	permission PermissionChecker
	platform   domrepo.NotificationPlatform
	sound      SoundPreference
	player     TonePlayer
	sinks      []domrepo.AlertSink
	metrics    domrepo.Metrics
	logger     *xlogger.Logger
	icon       string
	now        func() time.Time

	mu       sync.Mutex
	handled  map[string]struct{}
	order    []string
	capacity int
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	permission PermissionChecker,
	platform domrepo.NotificationPlatform,
	sound SoundPreference,
	player TonePlayer,
	metrics domrepo.Metrics,
	logger *xlogger.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		permission: permission,
		platform:   platform,
		sound:      sound,
		player:     player,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		handled:    make(map[string]struct{}),
		capacity:   1024,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one verdict. It reports ok=false for an already handled
// event id and for heartbeats, which are silent and leave no audit record.
func (d *Dispatcher) Dispatch(ctx context.Context, v models.Verdict) (rec models.AlertRecord, ok bool) {
	e := v.Event
	if !d.claim(e.ID) {
		d.logger.Debug("verdict already dispatched", xlogger.String("event_id", e.ID))
		return models.AlertRecord{}, false
	}

	rec = models.AlertRecord{
		EventID:      e.ID,
		Symbol:       e.Symbol,
		Strategy:     e.Strategy,
		Signal:       e.Signal,
		Confidence:   e.Confidence,
		Price:        e.Price,
		Notification: models.OutcomeSilent,
		Tone:         models.OutcomeSilent,
		EventAt:      e.CreatedAt.Time,
		DispatchedAt: d.now(),
	}

	if e.Strategy == models.StrategyHeartbeat {
		d.logger.Debug("heartbeat head", xlogger.String("event_id", e.ID))
		return rec, false
	}

	title, body := Compose(e)
	rec.Title = title
	rec.Notification = d.notify(ctx, e, title, body)

	if prog, audible := tone.Select(e); audible {
		rec.ToneName = prog.Name
		rec.Tone = d.playTone(prog)
	}

	d.finish(ctx, rec)
	return rec, true
}

// Compose builds the notification title and body for an event.
func Compose(e models.SignalEvent) (title, body string) {
	if e.Strategy == models.StrategyHourlyReport {
		return HourlyReportTitle, e.Description
	}
	title = fmt.Sprintf("%s Signal: %s", e.Signal, e.Symbol)
	body = fmt.Sprintf("Strategy: %s | Confidence: %s%% | Price: %s",
		e.Strategy,
		decimal.NewFromFloat(e.Confidence).StringFixed(1),
		decimal.NewFromFloat(e.Price).String(),
	)
	return title, body
}

func (d *Dispatcher) notify(ctx context.Context, e models.SignalEvent, title, body string) string {
	if !d.permission.Granted() {
		d.metrics.RecordNotification(models.OutcomeSkipped)
		return models.OutcomeSkipped
	}

	n := models.Notification{
		ID:        uuid.NewString(),
		EventID:   e.ID,
		Title:     title,
		Body:      body,
		Icon:      d.icon,
		CreatedAt: d.now(),
	}
	if err := d.platform.Notify(ctx, n); err != nil {
		d.logger.Warn("notification failed",
			xlogger.String("event_id", e.ID),
			xlogger.String("title", title),
			xlogger.Error(err),
		)
		d.metrics.RecordNotification(models.OutcomeFailed)
		return models.OutcomeFailed
	}
	d.metrics.RecordNotification(models.OutcomeDelivered)
	return models.OutcomeDelivered
}

func (d *Dispatcher) playTone(p tone.Program) string {
	if !d.sound.SoundEnabled() {
		d.metrics.RecordTone(p.Name, models.OutcomeSkipped)
		return models.OutcomeSkipped
	}
	if !d.player.Play(p) {
		d.metrics.RecordTone(p.Name, models.OutcomeFailed)
		return models.OutcomeFailed
	}
	d.metrics.RecordTone(p.Name, models.OutcomeDelivered)
	return models.OutcomeDelivered
}

func (d *Dispatcher) finish(ctx context.Context, rec models.AlertRecord) {
	d.logger.Info("verdict dispatched",
		xlogger.String("event_id", rec.EventID),
		xlogger.String("symbol", rec.Symbol),
		xlogger.String("strategy", rec.Strategy),
		xlogger.String("notification", rec.Notification),
		xlogger.String("tone", rec.Tone),
	)
	for _, s := range d.sinks {
		if err := s.Record(ctx, rec); err != nil {
			d.metrics.RecordError("alert_sink")
			d.logger.Warn("alert record failed", xlogger.String("event_id", rec.EventID), xlogger.Error(err))
		}
	}
}

// claim marks id as handled; it returns false when id was seen before.
func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.handled[id]; seen {
		return false
	}
	d.handled[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.handled, oldest)
	}
	return true
}
