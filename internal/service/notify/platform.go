// Package notify is the server-side notification surface. It keeps a
// permission state with browser semantics and delivers notifications to
// connected clients and an optional webhook.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/service/hub"
	xhttp "SignalPulse/pkg/http"
	xlogger "SignalPulse/pkg/logger"
	"SignalPulse/pkg/queue"
)

// Permission policies decide how a request resolves.
const (
	PolicyPrompt = "prompt" // starts default, a request grants
	PolicyGrant  = "grant"  // granted from the start
	PolicyDeny   = "deny"   // denied from the start
)

// ErrNotPermitted is returned by Notify unless permission is granted.
var ErrNotPermitted = errors.New("notify: permission not granted")

// Broadcaster pushes an envelope to connected clients.
type Broadcaster interface {
	Broadcast(typ string, data interface{})
}

var (
	_ Broadcaster                  = (*hub.Hub)(nil)
	_ domrepo.NotificationPlatform = (*Platform)(nil)
)

// Webhook posts notifications to an HTTP endpoint.
type Webhook struct {
	URL    string
	client *xhttp.Client
}

// NewWebhook returns nil when url is empty.
func NewWebhook(url string, client *xhttp.Client) *Webhook {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	if client == nil {
		client = xhttp.NewClient()
	}
	return &Webhook{URL: url, client: client}
}

func (w *Webhook) post(ctx context.Context, n models.Notification) error {
	return w.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    w.URL,
		Body:   n,
	}, nil)
}

// WebhookJobType names queued webhook deliveries.
const WebhookJobType = "notification.webhook"

type webhookJob struct{ hook *Webhook }

// Job returns the queue job that posts queued notifications to w.
func (w *Webhook) Job() queue.Job { return webhookJob{hook: w} }

func (j webhookJob) Type() string { return WebhookJobType }

func (j webhookJob) Handle(ctx context.Context, payload json.RawMessage) error {
	var n models.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	return j.hook.post(ctx, n)
}

// Option configures Platform.
type Option func(*Platform)

// WithWebhook adds a webhook delivery target.
func WithWebhook(w *Webhook) Option {
	return func(p *Platform) { p.webhook = w }
}

// WithWebhookQueue hands webhook deliveries to q instead of posting inline.
// The queue must have the webhook job registered.
func WithWebhookQueue(q queue.Enqueuer) Option {
	return func(p *Platform) { p.queue = q }
}

// Platform implements the notification surface.
type Platform struct {
	clients Broadcaster
	webhook *Webhook
	queue   queue.Enqueuer
	policy  string
	logger  *xlogger.Logger

	mu    sync.RWMutex
	state models.Permission
}

// ParsePolicy validates a policy name. Empty means prompt.
func ParsePolicy(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", PolicyPrompt:
		return PolicyPrompt, nil
	case PolicyGrant:
		return PolicyGrant, nil
	case PolicyDeny:
		return PolicyDeny, nil
	}
	return "", fmt.Errorf("unknown permission policy %q", s)
}

// NewPlatform creates a Platform. Unknown policies fall back to prompt.
func NewPlatform(clients Broadcaster, policy string, logger *xlogger.Logger, opts ...Option) *Platform {
	pol, err := ParsePolicy(policy)
	if err != nil {
		logger.Warn("falling back to prompt policy", xlogger.Error(err))
	}
	p := &Platform{
		clients: clients,
		policy:  pol,
		logger:  logger.With(xlogger.String("component", "notify")),
		state:   models.PermissionDefault,
	}
	switch pol {
	case PolicyGrant:
		p.state = models.PermissionGranted
	case PolicyDeny:
		p.state = models.PermissionDenied
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Permission returns the current state.
func (p *Platform) Permission(context.Context) models.Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// RequestPermission resolves a default state once. A decided state is returned unchanged.
func (p *Platform) RequestPermission(ctx context.Context) (models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return p.Permission(ctx), err
	}

	p.mu.Lock()
	if p.state != models.PermissionDefault {
		st := p.state
		p.mu.Unlock()
		return st, nil
	}
	if p.policy == PolicyDeny {
		p.state = models.PermissionDenied
	} else {
		p.state = models.PermissionGranted
	}
	st := p.state
	p.mu.Unlock()

	p.logger.Info("notification permission decided", xlogger.String("permission", string(st)))
	if p.clients != nil {
		p.clients.Broadcast(hub.TypePermission, st)
	}
	return st, nil
}

// Notify delivers n to the connected clients and the webhook.
func (p *Platform) Notify(ctx context.Context, n models.Notification) error {
	if p.Permission(ctx) != models.PermissionGranted {
		return ErrNotPermitted
	}
	if p.clients != nil {
		p.clients.Broadcast(hub.TypeNotification, n)
	}
	if p.webhook == nil {
		return nil
	}
	if p.queue != nil {
		if err := p.queue.Enqueue(ctx, WebhookJobType, n); err != nil {
			return fmt.Errorf("queue notification webhook: %w", err)
		}
		return nil
	}
	if err := p.webhook.post(ctx, n); err != nil {
		return fmt.Errorf("notification webhook: %w", err)
	}
	return nil
}
