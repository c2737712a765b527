// Package queue is a Redis-backed job queue with delayed retries and a dead
// letter list.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job handles one message type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Enqueuer accepts work for a registered job type.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Message is the stored envelope of one job run.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Config holds queue settings.
type Config struct {
	Workers     int
	RetryLimit  int           // retries after the first attempt
	RetryDelay  time.Duration // first retry delay, doubled per attempt
	MaxDelay    time.Duration
	PollTimeout time.Duration
	KeyPrefix   string
}

// Option configures the queue.
type Option func(*Config)

func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithRetry sets the retry budget and the first retry delay.
func WithRetry(limit int, delay time.Duration) Option {
	return func(c *Config) {
		if limit >= 0 {
			c.RetryLimit = limit
		}
		if delay > 0 {
			c.RetryDelay = delay
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		if prefix != "" {
			c.KeyPrefix = prefix
		}
	}
}

func defaultConfig() Config {
	return Config{
		Workers:     1,
		RetryLimit:  3,
		RetryDelay:  5 * time.Second,
		MaxDelay:    5 * time.Minute,
		PollTimeout: time.Second,
		KeyPrefix:   "signalpulse:queue",
	}
}

// backoff returns the delay before retry number attempt (1-based).
func (c Config) backoff(attempt int) time.Duration {
	d := c.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}
