package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/service/hub"
	xlogger "SignalPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClients struct {
	mu    sync.Mutex
	types []string
	data  []interface{}
}

func (r *recordingClients) Broadcast(typ string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, typ)
	r.data = append(r.data, data)
}

func TestPromptPolicyGrantsOnRequest(t *testing.T) {
	ctx := context.Background()
	clients := &recordingClients{}
	p := NewPlatform(clients, PolicyPrompt, xlogger.Nop())

	assert.Equal(t, models.PermissionDefault, p.Permission(ctx))
	assert.ErrorIs(t, p.Notify(ctx, models.Notification{Title: "x"}), ErrNotPermitted)

	st, err := p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionGranted, st)
	assert.Equal(t, []string{hub.TypePermission}, clients.types)

	st, err = p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionGranted, st)
	assert.Len(t, clients.types, 1, "decided state is not announced again")
}

func TestDenyPolicyNeverDelivers(t *testing.T) {
	ctx := context.Background()
	clients := &recordingClients{}
	p := NewPlatform(clients, PolicyDeny, xlogger.Nop())

	st, err := p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDenied, st)
	assert.ErrorIs(t, p.Notify(ctx, models.Notification{}), ErrNotPermitted)
	assert.Empty(t, clients.types)
}

func TestNotifyFansOutToClientsAndWebhook(t *testing.T) {
	got := make(chan models.Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n models.Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		got <- n
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clients := &recordingClients{}
	p := NewPlatform(clients, PolicyGrant, xlogger.Nop(), WithWebhook(NewWebhook(srv.URL, nil)))

	n := models.Notification{ID: "n1", EventID: "e1", Title: "BUY Signal: BTC"}
	require.NoError(t, p.Notify(context.Background(), n))
	assert.Equal(t, []string{hub.TypeNotification}, clients.types)
	assert.Equal(t, "BUY Signal: BTC", (<-got).Title)
}

func TestWebhookFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPlatform(nil, PolicyGrant, xlogger.Nop(), WithWebhook(NewWebhook(srv.URL, nil)))
	assert.Error(t, p.Notify(context.Background(), models.Notification{ID: "n1"}))
}

func TestParsePolicy(t *testing.T) {
	pol, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPrompt, pol)

	_, err = ParsePolicy("ask")
	assert.Error(t, err)

	assert.Nil(t, NewWebhook(" ", nil))
}

type recordingQueue struct {
	types    []string
	payloads []interface{}
}

func (q *recordingQueue) Enqueue(_ context.Context, typ string, payload interface{}) error {
	q.types = append(q.types, typ)
	q.payloads = append(q.payloads, payload)
	return nil
}

func TestQueuedWebhookDelivery(t *testing.T) {
	got := make(chan models.Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n models.Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		got <- n
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, nil)
	q := &recordingQueue{}
	p := NewPlatform(nil, PolicyGrant, xlogger.Nop(), WithWebhook(hook), WithWebhookQueue(q))

	n := models.Notification{ID: "n1", Title: "SELL Signal: ETH"}
	require.NoError(t, p.Notify(context.Background(), n))
	require.Equal(t, []string{WebhookJobType}, q.types)
	assert.Len(t, got, 0, "queued deliveries are not posted inline")

	job := hook.Job()
	assert.Equal(t, WebhookJobType, job.Type())
	raw, err := json.Marshal(q.payloads[0])
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), raw))
	assert.Equal(t, "SELL Signal: ETH", (<-got).Title)

	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`not json`)))
}
