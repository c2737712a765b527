package usecase

import (
	"context"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/service/tone"
)

var baseTime = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func ev(id, symbol, strategy string, kind models.SignalKind, conf float64, created time.Time) models.SignalEvent {
	return models.SignalEvent{
		ID:         id,
		Symbol:     symbol,
		Strategy:   strategy,
		Signal:     kind,
		Confidence: conf,
		Price:      100,
		CreatedAt:  models.NewTimestamp(created),
	}
}

// snapshotOf builds a snapshot of n events whose head is head.
func snapshotOf(n int, head models.SignalEvent) models.Snapshot {
	all := make([]models.SignalEvent, 0, n)
	if n > 0 {
		all = append(all, head)
	}
	for i := 1; i < n; i++ {
		all = append(all, ev("old-"+string(rune('a'+i)), "BTC", "RSI", models.SignalNeutral, 50, baseTime.Add(-time.Hour)))
	}
	return models.Snapshot{All: all, ReceivedAt: baseTime}
}

type fakeMetrics struct {
	mu            sync.Mutex
	snapshots     map[string]int
	verdicts      []bool
	notifications []string
	tones         []string
	errors        []string
	stats         []models.AggregateStats
}

var _ domrepo.Metrics = (*fakeMetrics)(nil)

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{snapshots: make(map[string]int)}
}

func (m *fakeMetrics) RecordSnapshot(collection string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[collection]++
}

func (m *fakeMetrics) RecordVerdict(strategy string, fresh bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts, fresh)
}

func (m *fakeMetrics) RecordNotification(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, outcome)
}

func (m *fakeMetrics) RecordTone(name, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tones = append(m.tones, name+":"+outcome)
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) RecordStats(s models.AggregateStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, s)
}

type fakePlatform struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (p *fakePlatform) Permission(context.Context) models.Permission { return models.PermissionGranted }

func (p *fakePlatform) RequestPermission(context.Context) (models.Permission, error) {
	return models.PermissionGranted, nil
}

func (p *fakePlatform) Notify(_ context.Context, n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, n)
	return nil
}

func (p *fakePlatform) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type flag bool

func (f flag) Granted() bool      { return bool(f) }
func (f flag) SoundEnabled() bool { return bool(f) }

type fakePlayer struct {
	mu     sync.Mutex
	played []tone.Program
	fail   bool
}

func (p *fakePlayer) Play(prog tone.Program) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return false
	}
	p.played = append(p.played, prog)
	return true
}

func (p *fakePlayer) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.played))
	for _, prog := range p.played {
		out = append(out, prog.Name)
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	records []models.AlertRecord
}

func (s *recordingSink) Record(_ context.Context, r models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// fakeSource hands callbacks back to the test so it can push deliveries.
type fakeSource struct {
	mu           sync.Mutex
	signalsCB    domrepo.SignalsCallback
	portfolioCB  domrepo.PortfolioCallback
	tradesCB     domrepo.TradesCallback
	unsubscribed int
	failTrades   error
}

func (s *fakeSource) WatchSignals(_ context.Context, _ int, cb domrepo.SignalsCallback) (domrepo.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signalsCB = cb
	return s.unsub, nil
}

func (s *fakeSource) WatchPortfolio(_ context.Context, _ string, cb domrepo.PortfolioCallback) (domrepo.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolioCB = cb
	return s.unsub, nil
}

func (s *fakeSource) WatchTrades(_ context.Context, _ int, cb domrepo.TradesCallback) (domrepo.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTrades != nil {
		return nil, s.failTrades
	}
	s.tradesCB = cb
	return s.unsub, nil
}

func (s *fakeSource) unsub() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed++
}

func (s *fakeSource) pushSignals(events []models.SignalEvent, err error) {
	s.mu.Lock()
	cb := s.signalsCB
	s.mu.Unlock()
	cb(events, err)
}

func (s *fakeSource) pushPortfolio(p *models.Portfolio, err error) {
	s.mu.Lock()
	cb := s.portfolioCB
	s.mu.Unlock()
	cb(p, err)
}

func (s *fakeSource) pushTrades(t []models.TradeRecord, err error) {
	s.mu.Lock()
	cb := s.tradesCB
	s.mu.Unlock()
	cb(t, err)
}
