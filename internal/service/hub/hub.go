// Package hub fans engine output out to connected browser clients over
// websockets and collects their user gestures.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/service/audio"
	xlogger "SignalPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Envelope types pushed to clients.
const (
	TypeNotification = "notification"
	TypeVoice        = "voice"
	TypeStats        = "stats"
	TypePermission   = "permission"
)

// Client message types.
const (
	TypeGesture = "gesture"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// Envelope is one server push.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

type inbound struct {
	Type string `json:"type"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// HubOption configures Hub.
type HubOption func(*Hub)

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// Hub tracks connected clients. A client whose queue is full misses messages
// rather than slowing the engine down.
type Hub struct {
	logger     *xlogger.Logger
	upgrader   websocket.Upgrader
	sendBuffer int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	gmu      sync.Mutex
	gestures map[int]func()
	nextID   int
}

var (
	_ audio.Sink               = (*Hub)(nil)
	_ domrepo.StatsBroadcaster = (*Hub)(nil)
)

// New creates a Hub.
func New(logger *xlogger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		logger:     logger.With(xlogger.String("component", "hub")),
		sendBuffer: 32,
		clients:    make(map[string]*client),
		gestures:   make(map[int]func()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeWS upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", xlogger.String("client_id", c.id), xlogger.Int("clients", n))

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("client read failed", xlogger.String("client_id", c.id), xlogger.Error(err))
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(b, &msg); err != nil {
			continue
		}
		if msg.Type == TypeGesture {
			h.Gesture()
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", xlogger.String("client_id", c.id), xlogger.Int("clients", n))
}

// Broadcast queues an envelope for every client.
func (h *Hub) Broadcast(typ string, data interface{}) {
	b, err := json.Marshal(Envelope{Type: typ, Data: data, At: time.Now().UTC()})
	if err != nil {
		h.logger.Error("encode envelope failed", xlogger.String("type", typ), xlogger.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("client queue full, message dropped", xlogger.String("client_id", c.id), xlogger.String("type", typ))
		}
	}
}

// EmitVoice forwards a scheduled oscillator to the clients that play it.
func (h *Hub) EmitVoice(v audio.ScheduledVoice) { h.Broadcast(TypeVoice, v) }

// BroadcastStats pushes fresh aggregates.
func (h *Hub) BroadcastStats(s models.AggregateStats) { h.Broadcast(TypeStats, s) }

// OnGesture registers fn for user gestures. The returned func unregisters it.
func (h *Hub) OnGesture(fn func()) func() {
	h.gmu.Lock()
	h.nextID++
	id := h.nextID
	h.gestures[id] = fn
	h.gmu.Unlock()

	return func() {
		h.gmu.Lock()
		delete(h.gestures, id)
		h.gmu.Unlock()
	}
}

// Gesture runs the registered gesture handlers. Handlers may unregister themselves.
func (h *Hub) Gesture() {
	h.gmu.Lock()
	fns := make([]func(), 0, len(h.gestures))
	for _, fn := range h.gestures {
		fns = append(fns, fn)
	}
	h.gmu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
