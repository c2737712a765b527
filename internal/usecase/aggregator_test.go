package usecase

import (
	"testing"
	"time"

	"SignalPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, baseTime)

	assert.Zero(t, s.Total)
	assert.Zero(t, s.Rate)
	assert.Zero(t, s.AvgConfidence)
	assert.Equal(t, models.NoSymbol, s.BestSymbol)
	assert.Equal(t, models.NoSymbol, s.WorstSymbol)
	assert.Empty(t, s.BySymbol)
}

func TestAggregateCountsAndRanks(t *testing.T) {
	signals := []models.SignalEvent{
		ev("1", "BTC", "RSI", models.SignalBuy, 90, baseTime),
		ev("2", "ETH", "RSI", models.SignalSell, 70, baseTime),
		ev("3", "BTC", "RSI", models.SignalBuy, 80, baseTime.Add(-48*time.Hour)),
		ev("4", "ETH", "RSI", models.SignalSell, 60, baseTime),
		ev("5", "SOL", "RSI", models.SignalNeutral, 50, baseTime),
	}

	s := Aggregate(signals, baseTime)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Buys)
	assert.Equal(t, 2, s.Sells)
	assert.InDelta(t, 0.4, s.Rate, 1e-9)
	assert.InDelta(t, 70.0, s.AvgConfidence, 1e-9)
	assert.Equal(t, 4, s.Today)
	assert.Equal(t, "BTC", s.BestSymbol)
	assert.Equal(t, "ETH", s.WorstSymbol)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, s.Symbols)
	assert.Equal(t, models.SymbolTally{Neutral: 1}, s.BySymbol["SOL"])
}

func TestAggregateTieKeepsFirstSeen(t *testing.T) {
	signals := []models.SignalEvent{
		ev("1", "ETH", "RSI", models.SignalBuy, 50, baseTime),
		ev("2", "BTC", "RSI", models.SignalBuy, 50, baseTime),
	}

	s := Aggregate(signals, baseTime)
	assert.Equal(t, "ETH", s.BestSymbol)
	assert.Equal(t, models.NoSymbol, s.WorstSymbol, "no sells means no worst symbol")
}

func TestAggregateMissingFieldsCountAsZero(t *testing.T) {
	signals := []models.SignalEvent{
		{ID: "1", Symbol: "BTC", Signal: models.SignalBuy},
		{ID: "2", Symbol: "BTC", Signal: models.SignalBuy, Confidence: 60},
	}

	s := Aggregate(signals, baseTime)
	require.Equal(t, 2, s.Total)
	assert.InDelta(t, 30.0, s.AvgConfidence, 1e-9)
	assert.Zero(t, s.Today, "events without created_at are not counted for today")
}
