package docstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	xlogger "SignalPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	mu        sync.Mutex
	signals   chan []models.SignalEvent
	portfolio map[string]models.Portfolio
	failures  []string
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{signals: make(chan []models.SignalEvent, 4), portfolio: make(map[string]models.Portfolio)}
}

func (m *fakeMirror) ReplaceSignals(events []models.SignalEvent) { m.signals <- events }
func (m *fakeMirror) ReplaceTrades([]models.TradeRecord)         {}

func (m *fakeMirror) PutPortfolio(doc string, p models.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio[doc] = p
}

func (m *fakeMirror) Fail(collection string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, collection)
}

func TestApplyFrames(t *testing.T) {
	m := newFakeMirror()
	c := New(Config{}, m, xlogger.Nop())

	require.NoError(t, c.Apply(Frame{Type: "snapshot", Collection: domrepo.CollectionPortfolio, Docs: json.RawMessage(`{"balance":5}`)}))
	assert.Equal(t, 5.0, m.portfolio["main"].Balance)

	assert.Error(t, c.Apply(Frame{Type: "error", Collection: domrepo.CollectionSignals, Message: "PERMISSION_DENIED"}))
	assert.Error(t, c.Apply(Frame{Type: "snapshot", Collection: domrepo.CollectionTrades, Docs: json.RawMessage(`{"not":"a list"}`)}))
	assert.Equal(t, []string{domrepo.CollectionSignals, domrepo.CollectionTrades}, m.failures)

	assert.NoError(t, c.Apply(Frame{Type: "ack"}))
}

func TestRunListensAndMirrorsSnapshots(t *testing.T) {
	upgrader := websocket.Upgrader{}
	queries := make(chan Query, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			var q Query
			if err := conn.ReadJSON(&q); err != nil {
				return
			}
			queries <- q
		}
		_ = conn.WriteJSON(Frame{
			Type:       "snapshot",
			Collection: domrepo.CollectionSignals,
			Docs:       json.RawMessage(`[{"id":"s1","symbol":"BTC","strategy":"RSI","signal":"BUY","confidence":88}]`),
		})
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	m := newFakeMirror()
	c := New(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:          "secret",
		SignalsLimit:   100,
		TradesLimit:    20,
		ReconnectDelay: time.Hour,
	}, m, xlogger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case events := <-m.signals:
		require.Len(t, events, 1)
		assert.Equal(t, "s1", events[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot mirrored")
	}

	q := <-queries
	assert.Equal(t, Query{Type: "listen", Collection: domrepo.CollectionSignals, OrderBy: "created_at", Desc: true, Limit: 100}, q)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
