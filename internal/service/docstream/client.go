// Package docstream mirrors hosted document-store queries over a websocket
// listen gateway into a repository.FeedMirror.
package docstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/repository"
	xlogger "SignalPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Mirror receives applied snapshots.
type Mirror interface {
	ReplaceSignals(events []models.SignalEvent)
	ReplaceTrades(trades []models.TradeRecord)
	PutPortfolio(docID string, p models.Portfolio)
	Fail(collection string, err error)
}

var _ Mirror = (*repository.FeedMirror)(nil)

// Query is one listen request sent after connecting.
type Query struct {
	Type       string `json:"type"` // always "listen"
	Collection string `json:"collection"`
	OrderBy    string `json:"order_by,omitempty"`
	Desc       bool   `json:"desc,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	DocID      string `json:"doc_id,omitempty"`
}

// Frame is one gateway message.
type Frame struct {
	Type       string          `json:"type"` // snapshot, error
	Collection string          `json:"collection"`
	DocID      string          `json:"doc_id,omitempty"`
	Docs       json.RawMessage `json:"docs,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Config holds client settings.
type Config struct {
	URL            string
	Token          string
	SignalsLimit   int
	TradesLimit    int
	PortfolioDoc   string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client keeps one gateway connection open and reconnects after failures.
type Client struct {
	cfg    Config
	mirror Mirror
	logger *xlogger.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a Client.
func New(cfg Config, mirror Mirror, logger *xlogger.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PortfolioDoc == "" {
		cfg.PortfolioDoc = "main"
	}
	return &Client{
		cfg:    cfg,
		mirror: mirror,
		logger: logger.With(xlogger.String("component", "docstream")),
		dialer: websocket.DefaultDialer,
	}
}

// Queries returns the listen requests for the three collections.
func (c *Client) Queries() []Query {
	return []Query{
		{Type: "listen", Collection: domrepo.CollectionSignals, OrderBy: "created_at", Desc: true, Limit: c.cfg.SignalsLimit},
		{Type: "listen", Collection: domrepo.CollectionPortfolio, DocID: c.cfg.PortfolioDoc},
		{Type: "listen", Collection: domrepo.CollectionTrades, OrderBy: "created_at", Desc: true, Limit: c.cfg.TradesLimit},
	}
}

// Run connects, listens and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("docstream session ended", xlogger.Error(err), xlogger.Duration("retry_in_ms", c.cfg.ReconnectDelay))
		for _, col := range []string{domrepo.CollectionSignals, domrepo.CollectionPortfolio, domrepo.CollectionTrades} {
			c.mirror.Fail(col, fmt.Errorf("docstream disconnected: %w", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	for _, q := range c.Queries() {
		if err := c.writeJSON(q); err != nil {
			return fmt.Errorf("listen %s: %w", q.Collection, err)
		}
	}

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.pingLoop(pingCtx)
	go func() {
		<-pingCtx.Done()
		_ = c.Close()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return errors.New("docstream conn closed")
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("docstream read: %w", err)
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			c.logger.Debug("ignoring non-json frame", xlogger.Int("bytes", len(b)))
			continue
		}
		if err := c.Apply(f); err != nil {
			c.logger.Warn("frame rejected", xlogger.String("collection", f.Collection), xlogger.Error(err))
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("docstream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("docstream connected", xlogger.String("url", c.cfg.URL))
	return nil
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("docstream not connected")
	}
	return c.conn.WriteJSON(v)
}

// Apply hands one frame to the mirror. Error frames and undecodable documents
// are reported to the collection watchers.
func (c *Client) Apply(f Frame) error {
	if f.Type == "error" {
		err := fmt.Errorf("gateway: %s", f.Message)
		c.mirror.Fail(f.Collection, err)
		return err
	}
	if f.Type != "snapshot" {
		return nil
	}

	var err error
	switch f.Collection {
	case domrepo.CollectionSignals:
		var events []models.SignalEvent
		if err = json.Unmarshal(f.Docs, &events); err == nil {
			c.mirror.ReplaceSignals(events)
		}
	case domrepo.CollectionTrades:
		var trades []models.TradeRecord
		if err = json.Unmarshal(f.Docs, &trades); err == nil {
			c.mirror.ReplaceTrades(trades)
		}
	case domrepo.CollectionPortfolio:
		var p models.Portfolio
		if err = json.Unmarshal(f.Docs, &p); err == nil {
			doc := f.DocID
			if doc == "" {
				doc = c.cfg.PortfolioDoc
			}
			c.mirror.PutPortfolio(doc, p)
		}
	default:
		return nil
	}
	if err != nil {
		err = fmt.Errorf("decode %s: %w", f.Collection, err)
		c.mirror.Fail(f.Collection, err)
	}
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected reports whether a gateway connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
