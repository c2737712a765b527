package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	xlogger "SignalPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownJob is returned when enqueuing a type nobody handles.
var ErrUnknownJob = errors.New("queue: no job registered for type")

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

// RedisQueue keeps pending messages in a list, scheduled retries in a sorted
// set scored by due time, and exhausted messages in a dead letter list.
type RedisQueue struct {
	client *redis.Client
	cfg    Config
	logger *xlogger.Logger
	now    func() time.Time

	mu   sync.RWMutex
	jobs map[string]Job
}

var _ Enqueuer = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on client.
func NewRedisQueue(client *redis.Client, logger *xlogger.Logger, opts ...Option) *RedisQueue {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisQueue{
		client: client,
		cfg:    cfg,
		logger: logger.With(xlogger.String("component", "queue")),
		now:    time.Now,
		jobs:   make(map[string]Job),
	}
}

// RegisterJob adds a handler. A second job for the same type is ignored.
func (q *RedisQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", xlogger.String("type", job.Type()))
		return
	}
	q.jobs[job.Type()] = job
}

func (q *RedisQueue) job(typ string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[typ]
	return j, ok
}

// Keys returns the pending, retry and dead letter keys.
func (q *RedisQueue) Keys() (pending, retry, dead string) {
	p := q.cfg.KeyPrefix
	return p + ":messages", p + ":retry", p + ":dlq"
}

// Enqueue stores payload for the job registered under msgType.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	if _, ok := q.job(msgType); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, msgType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	b, err := json.Marshal(Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: q.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pending, _, _ := q.Keys()
	if err := q.client.LPush(ctx, pending, b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Run processes messages until ctx is done.
func (q *RedisQueue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			q.worker(gctx, id)
			return nil
		})
	}
	g.Go(func() error {
		q.promoter(gctx)
		return nil
	})
	q.logger.Info("queue started", xlogger.Int("workers", q.cfg.Workers), xlogger.String("prefix", q.cfg.KeyPrefix))
	err := g.Wait()
	q.logger.Info("queue stopped")
	return err
}

func (q *RedisQueue) worker(ctx context.Context, id int) {
	pending, _, _ := q.Keys()
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, pending).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.logger.Error("brpop failed", xlogger.Int("worker", id), xlogger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.logger.Error("undecodable message dropped", xlogger.Error(err))
			continue
		}
		out, delay := q.attempt(ctx, &msg)
		q.settle(ctx, msg, out, delay)
	}
}

// attempt runs the job once and decides what happens to msg next.
func (q *RedisQueue) attempt(ctx context.Context, msg *Message) (outcome, time.Duration) {
	job, ok := q.job(msg.Type)
	if !ok {
		msg.LastError = ErrUnknownJob.Error()
		return outcomeDead, 0
	}
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		return outcomeDone, 0
	}

	msg.LastError = err.Error()
	if msg.Attempts >= q.cfg.RetryLimit {
		return outcomeDead, 0
	}
	msg.Attempts++
	return outcomeRetry, q.cfg.backoff(msg.Attempts)
}

func (q *RedisQueue) settle(ctx context.Context, msg Message, out outcome, delay time.Duration) {
	if out == outcomeDone {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		q.logger.Error("marshal message failed", xlogger.String("id", msg.ID), xlogger.Error(err))
		return
	}
	// failures seen during shutdown are still recorded
	ctx = context.WithoutCancel(ctx)
	_, retry, dead := q.Keys()

	if out == outcomeRetry {
		due := q.now().Add(delay)
		if err := q.client.ZAdd(ctx, retry, redis.Z{Score: float64(due.Unix()), Member: b}).Err(); err != nil {
			q.logger.Error("schedule retry failed", xlogger.String("id", msg.ID), xlogger.Error(err))
			return
		}
		q.logger.Warn("job failed, retry scheduled",
			xlogger.String("id", msg.ID),
			xlogger.String("type", msg.Type),
			xlogger.Int("attempt", msg.Attempts),
			xlogger.String("error", msg.LastError),
		)
		return
	}

	if err := q.client.LPush(ctx, dead, b).Err(); err != nil {
		q.logger.Error("dead letter failed", xlogger.String("id", msg.ID), xlogger.Error(err))
		return
	}
	q.logger.Error("job dead-lettered",
		xlogger.String("id", msg.ID),
		xlogger.String("type", msg.Type),
		xlogger.String("error", msg.LastError),
	)
}

// promoter moves due retries back to the pending list.
func (q *RedisQueue) promoter(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	pending, retry, _ := q.Keys()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		due, err := q.client.ZRangeByScore(ctx, retry, &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(q.now().Unix(), 10),
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				q.logger.Error("fetch due retries failed", xlogger.Error(err))
			}
			continue
		}
		for _, member := range due {
			// only the instance that removes the member requeues it
			removed, err := q.client.ZRem(ctx, retry, member).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := q.client.LPush(ctx, pending, member).Err(); err != nil {
				q.logger.Error("requeue retry failed", xlogger.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
