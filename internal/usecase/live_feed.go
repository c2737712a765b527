package usecase

import (
	"context"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	xlogger "SignalPulse/pkg/logger"
)

// VerdictDispatcher handles fresh head events.
type VerdictDispatcher interface {
	Dispatch(ctx context.Context, v models.Verdict) (models.AlertRecord, bool)
}

// FeedStatus summarises the live feed for API consumers.
type FeedStatus struct {
	Running      bool                 `json:"running"`
	State        models.DispatchState `json:"state"`
	Snapshots    int64                `json:"snapshots"`
	Alerts       int64                `json:"alerts"`
	LastSnapshot time.Time            `json:"last_snapshot"`
	Freshness    string               `json:"freshness_window"`
}

// LiveFeed wires subscriber, pipeline and dispatcher together and keeps the
// latest accepted state for readers.
type LiveFeed struct {
	subscriber  *FeedSubscriber
	differ      *Differ
	dispatcher  VerdictDispatcher
	broadcaster domrepo.StatsBroadcaster
	metrics     domrepo.Metrics
	logger      *xlogger.Logger
	now         func() time.Time

	lifecycle sync.Mutex // serialises Start/Stop/Restart
	sub       *Subscription
	runCtx    context.Context
	cancel    context.CancelFunc

	mu        sync.RWMutex
	state     models.DispatchState
	result    PipelineResult
	portfolio *models.Portfolio
	trades    []models.TradeRecord
	snapshots int64
	alerts    int64
	lastAt    time.Time
}

// LiveFeedOption configures LiveFeed.
type LiveFeedOption func(*LiveFeed)

// WithStatsBroadcaster pushes each fresh AggregateStats to b.
func WithStatsBroadcaster(b domrepo.StatsBroadcaster) LiveFeedOption {
	return func(l *LiveFeed) { l.broadcaster = b }
}

// WithLiveFeedClock overrides the time source.
func WithLiveFeedClock(now func() time.Time) LiveFeedOption {
	return func(l *LiveFeed) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLiveFeed creates a LiveFeed in the stopped state.
func NewLiveFeed(subscriber *FeedSubscriber, differ *Differ, dispatcher VerdictDispatcher, metrics domrepo.Metrics, logger *xlogger.Logger, opts ...LiveFeedOption) *LiveFeed {
	l := &LiveFeed{
		subscriber: subscriber,
		differ:     differ,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
	l.result = emptyResult()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func emptyResult() PipelineResult {
	return PipelineResult{
		Stats:          Aggregate(nil, time.Now()),
		Classification: Classify(nil),
	}
}

// Start subscribes with a Cold differencing state. Starting a running feed is a no-op.
func (l *LiveFeed) Start(ctx context.Context) error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.sub != nil {
		return nil
	}

	l.mu.Lock()
	l.state = models.DispatchState{}
	l.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	l.runCtx = runCtx
	sub, err := l.subscriber.Subscribe(runCtx, FeedHandlers{
		OnSignals:   l.onSignals,
		OnPortfolio: l.onPortfolio,
		OnTrades:    l.onTrades,
	})
	if err != nil {
		cancel()
		return err
	}
	l.sub = sub
	l.cancel = cancel
	l.logger.Info("live feed started", xlogger.Duration("freshness_ms", l.differ.FreshnessWindow()))
	return nil
}

// Stop tears the subscription down. No alert or stats update happens after it returns.
func (l *LiveFeed) Stop() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	l.stopLocked()
}

func (l *LiveFeed) stopLocked() {
	if l.sub == nil {
		return
	}
	l.sub.Teardown()
	l.cancel()
	l.sub = nil
	l.cancel = nil
	l.logger.Info("live feed stopped")
}

// Restart tears down and subscribes again from a Cold state.
func (l *LiveFeed) Restart(ctx context.Context) error {
	l.lifecycle.Lock()
	l.stopLocked()
	l.lifecycle.Unlock()
	return l.Start(ctx)
}

func (l *LiveFeed) onSignals(snap models.Snapshot) {
	start := time.Now()

	l.mu.Lock()
	res := ProcessSnapshot(l.differ, snap, l.state, l.now())
	l.state = res.State
	l.result = res
	l.snapshots++
	l.lastAt = snap.ReceivedAt
	l.mu.Unlock()

	if res.Candidate != nil {
		l.metrics.RecordVerdict(res.Candidate.Strategy, len(res.Verdicts) > 0)
		if len(res.Verdicts) == 0 {
			l.logger.Debug("stale head suppressed",
				xlogger.String("event_id", res.Candidate.ID),
				xlogger.String("symbol", res.Candidate.Symbol),
			)
		}
	}

	for _, v := range res.Verdicts {
		if _, ok := l.dispatcher.Dispatch(l.runCtx, v); ok {
			l.mu.Lock()
			l.alerts++
			l.mu.Unlock()
		}
	}

	l.metrics.RecordStats(res.Stats)
	if l.broadcaster != nil {
		l.broadcaster.BroadcastStats(res.Stats)
	}
	l.metrics.RecordLatency("process_snapshot", time.Since(start).Seconds())
}

func (l *LiveFeed) onPortfolio(p models.Portfolio) {
	l.mu.Lock()
	l.portfolio = &p
	l.mu.Unlock()
}

func (l *LiveFeed) onTrades(trades []models.TradeRecord) {
	cp := make([]models.TradeRecord, len(trades))
	copy(cp, trades)
	l.mu.Lock()
	l.trades = cp
	l.mu.Unlock()
}

// Stats returns the aggregates of the last accepted snapshot.
func (l *LiveFeed) Stats() models.AggregateStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result.Stats
}

// Classification returns the split of the last accepted snapshot.
func (l *LiveFeed) Classification() models.Classification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result.Classification
}

// Portfolio returns the mirrored portfolio, if one was delivered.
func (l *LiveFeed) Portfolio() (models.Portfolio, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.portfolio == nil {
		return models.Portfolio{}, false
	}
	return *l.portfolio, true
}

// Trades returns up to limit mirrored trade records, newest first.
func (l *LiveFeed) Trades(limit int) []models.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.trades) {
		limit = len(l.trades)
	}
	out := make([]models.TradeRecord, limit)
	copy(out, l.trades[:limit])
	return out
}

// Status reports lifecycle and differencing state.
func (l *LiveFeed) Status() FeedStatus {
	l.lifecycle.Lock()
	running := l.sub != nil
	l.lifecycle.Unlock()

	l.mu.RLock()
	defer l.mu.RUnlock()
	return FeedStatus{
		Running:      running,
		State:        l.state,
		Snapshots:    l.snapshots,
		Alerts:       l.alerts,
		LastSnapshot: l.lastAt,
		Freshness:    l.differ.FreshnessWindow().String(),
	}
}
