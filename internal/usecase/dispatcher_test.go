package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/service/tone"
	xlogger "SignalPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	platform *fakePlatform
	player   *fakePlayer
	metrics  *fakeMetrics
	sink     *recordingSink
	d        *Dispatcher
}

func newDispatchFixture(granted, sound bool, opts ...DispatcherOption) *dispatchFixture {
	f := &dispatchFixture{
		platform: &fakePlatform{},
		player:   &fakePlayer{},
		metrics:  newFakeMetrics(),
		sink:     &recordingSink{},
	}
	opts = append([]DispatcherOption{
		WithAlertSinks(f.sink),
		WithDispatchClock(func() time.Time { return baseTime }),
	}, opts...)
	f.d = NewDispatcher(flag(granted), f.platform, flag(sound), f.player, f.metrics, xlogger.Nop(), opts...)
	return f
}

func verdict(e models.SignalEvent) models.Verdict {
	return models.Verdict{Event: e, ObservedAt: baseTime}
}

func TestDispatchHighConfidenceBuy(t *testing.T) {
	f := newDispatchFixture(true, true)
	e := ev("e1", "BTC", "RSI", models.SignalBuy, 85, baseTime.Add(-5*time.Second))
	e.Price = 64250.5

	rec, ok := f.d.Dispatch(context.Background(), verdict(e))

	require.True(t, ok)
	require.Len(t, f.platform.sent, 1)
	n := f.platform.sent[0]
	assert.Equal(t, "BUY Signal: BTC", n.Title)
	assert.Equal(t, "Strategy: RSI | Confidence: 85.0% | Price: 64250.5", n.Body)
	assert.Equal(t, "e1", n.EventID)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, []string{tone.NameBuyFlourish}, f.player.names())
	assert.Equal(t, models.OutcomeDelivered, rec.Notification)
	assert.Equal(t, models.OutcomeDelivered, rec.Tone)
	require.Len(t, f.sink.records, 1)
	assert.Equal(t, "e1", f.sink.records[0].EventID)
}

func TestDispatchSoundOffStillNotifies(t *testing.T) {
	f := newDispatchFixture(true, false)
	e := ev("e2", "ETH", "MACD", models.SignalSell, 60, baseTime)

	rec, ok := f.d.Dispatch(context.Background(), verdict(e))

	require.True(t, ok)
	assert.Equal(t, 1, f.platform.count())
	assert.Empty(t, f.player.names())
	assert.Equal(t, models.OutcomeSkipped, rec.Tone)
	assert.Equal(t, tone.NameSell, rec.ToneName)
}

func TestDispatchPermissionDeniedStillPlaysTone(t *testing.T) {
	f := newDispatchFixture(false, true)
	e := ev("e3", "SOL", "RSI", models.SignalNeutral, 40, baseTime)

	rec, ok := f.d.Dispatch(context.Background(), verdict(e))

	require.True(t, ok)
	assert.Zero(t, f.platform.count())
	assert.Equal(t, []string{tone.NameNeutral}, f.player.names())
	assert.Equal(t, models.OutcomeSkipped, rec.Notification)
}

func TestDispatchDeduplicatesByEventID(t *testing.T) {
	f := newDispatchFixture(true, true)
	e := ev("dup", "BTC", "RSI", models.SignalBuy, 50, baseTime)

	_, first := f.d.Dispatch(context.Background(), verdict(e))
	_, second := f.d.Dispatch(context.Background(), verdict(e))

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, f.platform.count())
	assert.Len(t, f.player.names(), 1)
}

func TestDispatchDedupWindowIsBounded(t *testing.T) {
	f := newDispatchFixture(true, false, WithDedupCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, ok := f.d.Dispatch(ctx, verdict(ev(id, "BTC", "RSI", models.SignalBuy, 50, baseTime)))
		require.True(t, ok)
	}
	_, ok := f.d.Dispatch(ctx, verdict(ev("a", "BTC", "RSI", models.SignalBuy, 50, baseTime)))
	assert.True(t, ok, "evicted ids may be handled again")
	_, ok = f.d.Dispatch(ctx, verdict(ev("c", "BTC", "RSI", models.SignalBuy, 50, baseTime)))
	assert.False(t, ok)
}

func TestDispatchHourlyReport(t *testing.T) {
	f := newDispatchFixture(true, true)
	e := ev("r1", "", models.StrategyHourlyReport, "", 0, baseTime)
	e.Description = "Balance 10,250 USDT"

	rec, ok := f.d.Dispatch(context.Background(), verdict(e))

	require.True(t, ok)
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, HourlyReportTitle, f.platform.sent[0].Title)
	assert.Equal(t, "Balance 10,250 USDT", f.platform.sent[0].Body)
	assert.Equal(t, []string{tone.NameReportChord}, f.player.names())
	assert.Equal(t, tone.NameReportChord, rec.ToneName)
}

func TestDispatchHeartbeatIsSilent(t *testing.T) {
	f := newDispatchFixture(true, true)
	e := ev("hb", "", models.StrategyHeartbeat, "", 0, baseTime)

	rec, ok := f.d.Dispatch(context.Background(), verdict(e))

	assert.False(t, ok, "heartbeats are not counted as alerts")
	assert.Zero(t, f.platform.count())
	assert.Empty(t, f.player.names())
	assert.Equal(t, models.OutcomeSilent, rec.Notification)
	assert.Equal(t, models.OutcomeSilent, rec.Tone)
	assert.Empty(t, f.sink.records, "heartbeats leave no audit record")
}

func TestDispatchFailuresAreAbsorbed(t *testing.T) {
	f := newDispatchFixture(true, true)
	f.platform.err = errors.New("platform unavailable")
	f.player.fail = true

	rec, ok := f.d.Dispatch(context.Background(), verdict(ev("f1", "BTC", "RSI", models.SignalSell, 90, baseTime)))

	require.True(t, ok)
	assert.Equal(t, models.OutcomeFailed, rec.Notification)
	assert.Equal(t, models.OutcomeFailed, rec.Tone)
	assert.Equal(t, []string{tone.NameSellSweep + ":" + models.OutcomeFailed}, f.metrics.tones)
}

func TestComposeFormatsConfidenceAndPrice(t *testing.T) {
	e := ev("c", "ETH", "BB", models.SignalSell, 72.25, baseTime)
	e.Price = 3100

	title, body := Compose(e)
	assert.Equal(t, "SELL Signal: ETH", title)
	assert.Equal(t, "Strategy: BB | Confidence: 72.3% | Price: 3100", body)
}
