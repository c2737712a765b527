package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
)

// Window capacities kept by FeedMirror; watchers may ask for less.
const (
	DefaultSignalsCapacity = 500
	DefaultTradesCapacity  = 200
)

// orderedWindow keeps the newest items ordered by time descending. Items with a
// non-empty id replace the previous item with the same id.
type orderedWindow[T any] struct {
	capacity int
	id       func(T) string
	at       func(T) time.Time
	items    []T
}

func newOrderedWindow[T any](capacity int, id func(T) string, at func(T) time.Time) *orderedWindow[T] {
	return &orderedWindow[T]{capacity: capacity, id: id, at: at}
}

func (w *orderedWindow[T]) upsert(v T) {
	if id := w.id(v); id != "" {
		w.remove(id)
	}
	t := w.at(v)
	// ties go in front so the latest arrival is the head
	i := sort.Search(len(w.items), func(i int) bool { return !w.at(w.items[i]).After(t) })
	w.items = append(w.items, v)
	copy(w.items[i+1:], w.items[i:])
	w.items[i] = v
	if len(w.items) > w.capacity {
		w.items = w.items[:w.capacity]
	}
}

func (w *orderedWindow[T]) remove(id string) bool {
	for i, it := range w.items {
		if w.id(it) == id {
			w.items = append(w.items[:i], w.items[i+1:]...)
			return true
		}
	}
	return false
}

func (w *orderedWindow[T]) replace(items []T) {
	w.items = w.items[:0]
	for _, it := range items {
		w.upsert(it)
	}
}

func (w *orderedWindow[T]) head(limit int) []T {
	n := len(w.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	copy(out, w.items[:n])
	return out
}

func (w *orderedWindow[T]) len() int { return len(w.items) }

type signalsWatcher struct {
	limit int
	cb    domrepo.SignalsCallback
}

type portfolioWatcher struct {
	doc string
	cb  domrepo.PortfolioCallback
}

type tradesWatcher struct {
	limit int
	cb    domrepo.TradesCallback
}

// FeedMirror is an in-memory replica of the signals, portfolio and trades
// collections. Every change is pushed to the watchers of that collection as
// the full current result set, the same way the hosted store does. Transports
// (Kafka, websocket) feed it; the engine reads it through domrepo.FeedSource.
//
// Deliveries happen under the mirror lock, so callbacks for one mirror never
// overlap and must not call back into it.
type FeedMirror struct {
	mu         sync.Mutex
	signals    *orderedWindow[models.SignalEvent]
	trades     *orderedWindow[models.TradeRecord]
	portfolios map[string]models.Portfolio

	nextID            int
	signalsWatchers   map[int]signalsWatcher
	portfolioWatchers map[int]portfolioWatcher
	tradesWatchers    map[int]tradesWatcher
}

var _ domrepo.FeedSource = (*FeedMirror)(nil)

// NewFeedMirror creates an empty mirror. Non-positive capacities use the defaults.
func NewFeedMirror(signalsCap, tradesCap int) *FeedMirror {
	if signalsCap <= 0 {
		signalsCap = DefaultSignalsCapacity
	}
	if tradesCap <= 0 {
		tradesCap = DefaultTradesCapacity
	}
	return &FeedMirror{
		signals: newOrderedWindow(signalsCap,
			func(e models.SignalEvent) string { return e.ID },
			func(e models.SignalEvent) time.Time { return e.CreatedAt.Time },
		),
		trades: newOrderedWindow(tradesCap,
			func(models.TradeRecord) string { return "" },
			func(t models.TradeRecord) time.Time { return t.CreatedAt.Time },
		),
		portfolios:        make(map[string]models.Portfolio),
		signalsWatchers:   make(map[int]signalsWatcher),
		portfolioWatchers: make(map[int]portfolioWatcher),
		tradesWatchers:    make(map[int]tradesWatcher),
	}
}

// WatchSignals registers cb and delivers the current window, empty or not.
func (m *FeedMirror) WatchSignals(_ context.Context, limit int, cb domrepo.SignalsCallback) (domrepo.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.register()
	m.signalsWatchers[id] = signalsWatcher{limit: limit, cb: cb}
	cb(m.signals.head(limit), nil)
	return m.unsubscriber(func() { delete(m.signalsWatchers, id) }), nil
}

// WatchPortfolio registers cb for document docID.
func (m *FeedMirror) WatchPortfolio(_ context.Context, docID string, cb domrepo.PortfolioCallback) (domrepo.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.register()
	m.portfolioWatchers[id] = portfolioWatcher{doc: docID, cb: cb}
	if p, ok := m.portfolios[docID]; ok {
		cb(&p, nil)
	}
	return m.unsubscriber(func() { delete(m.portfolioWatchers, id) }), nil
}

// WatchTrades registers cb and delivers the current window, empty or not.
func (m *FeedMirror) WatchTrades(_ context.Context, limit int, cb domrepo.TradesCallback) (domrepo.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.register()
	m.tradesWatchers[id] = tradesWatcher{limit: limit, cb: cb}
	cb(m.trades.head(limit), nil)
	return m.unsubscriber(func() { delete(m.tradesWatchers, id) }), nil
}

func (m *FeedMirror) register() int {
	m.nextID++
	return m.nextID
}

func (m *FeedMirror) unsubscriber(remove func()) domrepo.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			remove()
			m.mu.Unlock()
		})
	}
}

// UpsertSignal inserts or replaces a signal and pushes the new window.
func (m *FeedMirror) UpsertSignal(e models.SignalEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals.upsert(e)
	m.pushSignalsLocked()
}

// RemoveSignal deletes a signal by id. It pushes only when something was removed.
func (m *FeedMirror) RemoveSignal(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.signals.remove(id) {
		return false
	}
	m.pushSignalsLocked()
	return true
}

// ReplaceSignals swaps the whole signals window.
func (m *FeedMirror) ReplaceSignals(events []models.SignalEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals.replace(events)
	m.pushSignalsLocked()
}

// AppendTrade adds a trade record and pushes the new window.
func (m *FeedMirror) AppendTrade(t models.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades.upsert(t)
	m.pushTradesLocked()
}

// ReplaceTrades swaps the whole trades window.
func (m *FeedMirror) ReplaceTrades(trades []models.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades.replace(trades)
	m.pushTradesLocked()
}

// PutPortfolio stores document docID and pushes it to its watchers.
func (m *FeedMirror) PutPortfolio(docID string, p models.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolios[docID] = p
	for _, w := range m.portfolioWatchers {
		if w.doc == docID {
			cp := p
			w.cb(&cp, nil)
		}
	}
}

// Fail reports err to every watcher of collection. Mirrored state is kept.
func (m *FeedMirror) Fail(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch collection {
	case domrepo.CollectionSignals:
		for _, w := range m.signalsWatchers {
			w.cb(nil, err)
		}
	case domrepo.CollectionPortfolio:
		for _, w := range m.portfolioWatchers {
			w.cb(nil, err)
		}
	case domrepo.CollectionTrades:
		for _, w := range m.tradesWatchers {
			w.cb(nil, err)
		}
	}
}

func (m *FeedMirror) pushSignalsLocked() {
	for _, w := range m.signalsWatchers {
		w.cb(m.signals.head(w.limit), nil)
	}
}

func (m *FeedMirror) pushTradesLocked() {
	for _, w := range m.tradesWatchers {
		w.cb(m.trades.head(w.limit), nil)
	}
}
