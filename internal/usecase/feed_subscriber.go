package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	xlogger "SignalPulse/pkg/logger"
)

// Default query windows.
const (
	DefaultSignalsWindow = 100
	DefaultTradesWindow  = 20
	DefaultPortfolioDoc  = "main"
)

// FeedHandlers receive accepted deliveries. Calls never overlap.
type FeedHandlers struct {
	OnSignals   func(models.Snapshot)
	OnPortfolio func(models.Portfolio)
	OnTrades    func([]models.TradeRecord)
}

// FeedSubscriberOption configures FeedSubscriber.
type FeedSubscriberOption func(*FeedSubscriber)

// WithSignalsWindow sets the signals backlog window.
func WithSignalsWindow(n int) FeedSubscriberOption {
	return func(s *FeedSubscriber) {
		if n > 0 {
			s.signalsLimit = n
		}
	}
}

// WithTradesWindow sets the trades window.
func WithTradesWindow(n int) FeedSubscriberOption {
	return func(s *FeedSubscriber) {
		if n > 0 {
			s.tradesLimit = n
		}
	}
}

// WithPortfolioDoc sets the portfolio document id.
func WithPortfolioDoc(id string) FeedSubscriberOption {
	return func(s *FeedSubscriber) {
		if id != "" {
			s.portfolioDoc = id
		}
	}
}

// WithFeedClock overrides the time source.
func WithFeedClock(now func() time.Time) FeedSubscriberOption {
	return func(s *FeedSubscriber) {
		if now != nil {
			s.now = now
		}
	}
}

// FeedSubscriber opens the three live queries the engine consumes.
type FeedSubscriber struct {
	source       domrepo.FeedSource
	metrics      domrepo.Metrics
	logger       *xlogger.Logger
	signalsLimit int
	tradesLimit  int
	portfolioDoc string
	now          func() time.Time
}

// NewFeedSubscriber creates a FeedSubscriber.
func NewFeedSubscriber(source domrepo.FeedSource, metrics domrepo.Metrics, logger *xlogger.Logger, opts ...FeedSubscriberOption) *FeedSubscriber {
	s := &FeedSubscriber{
		source:       source,
		metrics:      metrics,
		logger:       logger,
		signalsLimit: DefaultSignalsWindow,
		tradesLimit:  DefaultTradesWindow,
		portfolioDoc: DefaultPortfolioDoc,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscription is one set of live queries.
type Subscription struct {
	mu      sync.Mutex // held while a callback runs
	stopped bool
	unsubs  []domrepo.Unsubscribe
	once    sync.Once
}

// Teardown cancels all queries. After it returns no handler runs again.
// It is idempotent and must not be called from inside a handler.
func (s *Subscription) Teardown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()

		for _, u := range unsubs {
			if u != nil {
				u()
			}
		}
	})
}

// Active reports whether Teardown has not been called.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

func (s *Subscription) add(u domrepo.Unsubscribe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		u()
		return
	}
	s.unsubs = append(s.unsubs, u)
}

// deliver runs fn unless the subscription is stopped.
func (s *Subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	fn()
}

// Subscribe opens signals, portfolio and trades queries. When any of them fails
// the ones already opened are cancelled.
func (f *FeedSubscriber) Subscribe(ctx context.Context, h FeedHandlers) (*Subscription, error) {
	sub := &Subscription{}

	unsubSignals, err := f.source.WatchSignals(ctx, f.signalsLimit, func(events []models.SignalEvent, err error) {
		if f.rejected(domrepo.CollectionSignals, err) {
			return
		}
		snap := models.Snapshot{All: events, ReceivedAt: f.now()}
		f.metrics.RecordSnapshot(domrepo.CollectionSignals, len(events))
		sub.deliver(func() {
			if h.OnSignals != nil {
				h.OnSignals(snap)
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", domrepo.CollectionSignals, err)
	}
	sub.add(unsubSignals)

	unsubPortfolio, err := f.source.WatchPortfolio(ctx, f.portfolioDoc, func(p *models.Portfolio, err error) {
		if err == nil && p == nil {
			err = errors.New("portfolio document missing")
		}
		if f.rejected(domrepo.CollectionPortfolio, err) {
			return
		}
		f.metrics.RecordSnapshot(domrepo.CollectionPortfolio, 1)
		sub.deliver(func() {
			if h.OnPortfolio != nil {
				h.OnPortfolio(*p)
			}
		})
	})
	if err != nil {
		sub.Teardown()
		return nil, fmt.Errorf("watch %s: %w", domrepo.CollectionPortfolio, err)
	}
	sub.add(unsubPortfolio)

	unsubTrades, err := f.source.WatchTrades(ctx, f.tradesLimit, func(trades []models.TradeRecord, err error) {
		if f.rejected(domrepo.CollectionTrades, err) {
			return
		}
		f.metrics.RecordSnapshot(domrepo.CollectionTrades, len(trades))
		sub.deliver(func() {
			if h.OnTrades != nil {
				h.OnTrades(trades)
			}
		})
	})
	if err != nil {
		sub.Teardown()
		return nil, fmt.Errorf("watch %s: %w", domrepo.CollectionTrades, err)
	}
	sub.add(unsubTrades)

	f.logger.Info("feed subscribed",
		xlogger.Int("signals_window", f.signalsLimit),
		xlogger.Int("trades_window", f.tradesLimit),
		xlogger.String("portfolio_doc", f.portfolioDoc),
	)
	return sub, nil
}

// rejected logs a delivery error; the previous accepted state stays in place.
func (f *FeedSubscriber) rejected(collection string, err error) bool {
	if err == nil {
		return false
	}
	f.metrics.RecordError("feed_" + collection)
	f.logger.Error("feed delivery failed", xlogger.String("collection", collection), xlogger.Error(err))
	return true
}
