package usecase

import (
	"context"
	"testing"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/repository"
	"SignalPulse/internal/service/tone"
	xlogger "SignalPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statsCollector struct {
	got []models.AggregateStats
}

func (c *statsCollector) BroadcastStats(s models.AggregateStats) { c.got = append(c.got, s) }

type liveFixture struct {
	src      *fakeSource
	dispatch *dispatchFixture
	stats    *statsCollector
	feed     *LiveFeed
}

func newLiveFixture() *liveFixture {
	return newLiveFixtureOn(&fakeSource{}, true, true)
}

func newLiveFixtureOn(source domrepo.FeedSource, granted, sound bool) *liveFixture {
	f := &liveFixture{
		dispatch: newDispatchFixture(granted, sound),
		stats:    &statsCollector{},
	}
	if fs, ok := source.(*fakeSource); ok {
		f.src = fs
	}
	clock := func() time.Time { return baseTime }
	sub := NewFeedSubscriber(source, f.dispatch.metrics, xlogger.Nop(), WithFeedClock(clock))
	f.feed = NewLiveFeed(sub, NewDiffer(0), f.dispatch.d, f.dispatch.metrics, xlogger.Nop(),
		WithStatsBroadcaster(f.stats),
		WithLiveFeedClock(clock),
	)
	return f
}

func (f *liveFixture) push(n int, head models.SignalEvent) {
	f.src.pushSignals(snapshotOf(n, head).All, nil)
}

// Scenario: backlog, then a fresh BUY with high confidence.
func TestLiveFeedAlertsOnFreshGrowth(t *testing.T) {
	f := newLiveFixture()
	require.NoError(t, f.feed.Start(context.Background()))
	defer f.feed.Stop()

	f.push(50, ev("old", "ETH", "RSI", models.SignalSell, 60, baseTime.Add(-time.Hour)))
	assert.Zero(t, f.dispatch.platform.count(), "backlog never alerts")

	f.push(51, ev("new", "BTC", "RSI", models.SignalBuy, 85, baseTime.Add(-5*time.Second)))

	require.Equal(t, 1, f.dispatch.platform.count())
	assert.Equal(t, "BUY Signal: BTC", f.dispatch.platform.sent[0].Title)
	status := f.feed.Status()
	assert.True(t, status.Running)
	assert.Equal(t, int64(2), status.Snapshots)
	assert.Equal(t, int64(1), status.Alerts)
	assert.Equal(t, 51, status.State.LastObservedCount)
	assert.Len(t, f.stats.got, 2)
	assert.Equal(t, []bool{true}, f.dispatch.metrics.verdicts)
}

// Scenario: a stale insert is counted but does not alert.
func TestLiveFeedSuppressesStaleGrowth(t *testing.T) {
	f := newLiveFixture()
	require.NoError(t, f.feed.Start(context.Background()))
	defer f.feed.Stop()

	f.push(10, ev("a", "BTC", "RSI", models.SignalBuy, 85, baseTime.Add(-time.Hour)))
	f.push(11, ev("b", "BTC", "RSI", models.SignalBuy, 85, baseTime.Add(-2*time.Minute)))

	assert.Zero(t, f.dispatch.platform.count())
	assert.Equal(t, []bool{false}, f.dispatch.metrics.verdicts)
	assert.Equal(t, 11, f.feed.Status().State.LastObservedCount)
}

func TestLiveFeedStopPreventsFurtherAlerts(t *testing.T) {
	f := newLiveFixture()
	require.NoError(t, f.feed.Start(context.Background()))

	f.push(5, ev("a", "BTC", "RSI", models.SignalBuy, 85, baseTime))
	f.feed.Stop()
	f.push(6, ev("b", "BTC", "RSI", models.SignalBuy, 85, baseTime))

	assert.Zero(t, f.dispatch.platform.count())
	assert.False(t, f.feed.Status().Running)
}

func TestLiveFeedRestartStartsCold(t *testing.T) {
	f := newLiveFixture()
	ctx := context.Background()
	require.NoError(t, f.feed.Start(ctx))

	f.push(5, ev("a", "BTC", "RSI", models.SignalBuy, 85, baseTime))
	require.NoError(t, f.feed.Restart(ctx))
	defer f.feed.Stop()

	assert.False(t, f.feed.Status().State.Warm)
	f.push(9, ev("b", "BTC", "RSI", models.SignalBuy, 85, baseTime))
	assert.Zero(t, f.dispatch.platform.count(), "first snapshot after restart is a new backlog")
}

func TestLiveFeedMirrorsPortfolioAndTrades(t *testing.T) {
	f := newLiveFixture()
	require.NoError(t, f.feed.Start(context.Background()))
	defer f.feed.Stop()

	_, ok := f.feed.Portfolio()
	assert.False(t, ok)

	f.src.pushPortfolio(&models.Portfolio{Balance: 900, InitialBalance: 1000}, nil)
	f.src.pushTrades([]models.TradeRecord{{Symbol: "BTC"}, {Symbol: "ETH"}, {Symbol: "SOL"}}, nil)

	p, ok := f.feed.Portfolio()
	require.True(t, ok)
	assert.Equal(t, 900.0, p.Balance)
	trades := f.feed.Trades(2)
	require.Len(t, trades, 2)
	assert.Equal(t, "BTC", trades[0].Symbol)
	assert.Len(t, f.feed.Trades(0), 3)
}

func TestLiveFeedHeartbeatThenFreshBuy(t *testing.T) {
	f := newLiveFixture()
	require.NoError(t, f.feed.Start(context.Background()))
	defer f.feed.Stop()

	hb := ev("hb", "", models.StrategyHeartbeat, "", 0, baseTime.Add(-10*time.Second))
	f.src.pushSignals([]models.SignalEvent{hb}, nil)
	assert.Zero(t, f.dispatch.platform.count())

	buy := ev("buy", "BTC/USDT", "sma_crossover", models.SignalBuy, 85, baseTime.Add(-2*time.Second))
	f.src.pushSignals([]models.SignalEvent{buy, hb}, nil)

	require.Equal(t, 1, f.dispatch.platform.count())
	assert.Equal(t, "BUY Signal: BTC/USDT", f.dispatch.platform.sent[0].Title)
	assert.Equal(t, []string{tone.NameBuyFlourish}, f.dispatch.player.names())
	assert.Equal(t, int64(1), f.feed.Status().Alerts)
	assert.Equal(t, 1, f.feed.Stats().Buys)
}

func TestLiveFeedPermissionDeniedStillUpdatesStatsAndSounds(t *testing.T) {
	f := newLiveFixtureOn(&fakeSource{}, false, true)
	require.NoError(t, f.feed.Start(context.Background()))
	defer f.feed.Stop()

	f.push(3, ev("a", "ETH", "RSI", models.SignalSell, 60, baseTime.Add(-time.Hour)))
	f.push(4, ev("b", "BTC", "RSI", models.SignalSell, 90, baseTime.Add(-time.Second)))

	assert.Zero(t, f.dispatch.platform.count())
	assert.Equal(t, []string{tone.NameSellSweep}, f.dispatch.player.names())
	require.Len(t, f.stats.got, 2)
	assert.Equal(t, 4, f.stats.got[1].Total)
	assert.Equal(t, 1, f.stats.got[1].Sells)
	assert.Equal(t, 4, f.feed.Stats().Total)
}

func TestLiveFeedHeartbeatHeadIsNotAnAlert(t *testing.T) {
	f := newLiveFixture()
	require.NoError(t, f.feed.Start(context.Background()))
	defer f.feed.Stop()

	f.push(2, ev("a", "BTC", "RSI", models.SignalBuy, 60, baseTime.Add(-time.Hour)))
	f.push(3, ev("hb", "", models.StrategyHeartbeat, "", 0, baseTime))

	assert.Zero(t, f.feed.Status().Alerts)
	assert.Empty(t, f.dispatch.sink.records)
}

func TestLiveFeedOnEmptyMirrorAlertsFirstEvent(t *testing.T) {
	mirror := repository.NewFeedMirror(0, 0)
	f := newLiveFixtureOn(mirror, true, true)
	require.NoError(t, f.feed.Start(context.Background()))
	defer f.feed.Stop()

	assert.True(t, f.feed.Status().State.Warm, "an empty collection is still an initial result set")

	mirror.UpsertSignal(ev("fresh-1", "BTC", "RSI", models.SignalBuy, 70, baseTime.Add(-2*time.Second)))
	mirror.UpsertSignal(ev("fresh-2", "ETH", "RSI", models.SignalSell, 70, baseTime.Add(-time.Second)))

	require.Equal(t, 2, f.dispatch.platform.count())
	assert.Equal(t, "BUY Signal: BTC", f.dispatch.platform.sent[0].Title)
	assert.Equal(t, "SELL Signal: ETH", f.dispatch.platform.sent[1].Title)
	assert.Equal(t, int64(2), f.feed.Status().Alerts)
}
