package models

import (
	"github.com/shopspring/decimal"
)

// Position is one open holding of the paper portfolio.
type Position struct {
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  Timestamp `json:"entry_time"`
	Confidence float64   `json:"confidence"`
}

// Portfolio mirrors the single portfolio document. It is never mutated here.
type Portfolio struct {
	Balance        float64             `json:"balance"`
	InitialBalance float64             `json:"initial_balance"`
	Positions      map[string]Position `json:"positions"`
	TotalTrades    int                 `json:"total_trades"`
	WinningTrades  int                 `json:"winning_trades"`
	LosingTrades   int                 `json:"losing_trades"`
	TotalProfit    float64             `json:"total_profit"`
	UpdatedAt      Timestamp           `json:"updated_at"`
}

// PortfolioView is the portfolio with derived figures for API consumers.
type PortfolioView struct {
	Portfolio
	WinRate       string `json:"win_rate"`
	PnL           string `json:"pnl"`
	PnLPct        string `json:"pnl_pct"`
	OpenPositions int    `json:"open_positions"`
}

// View computes win rate (winning/total*100) and realized PnL against the initial balance.
func (p Portfolio) View() PortfolioView {
	v := PortfolioView{Portfolio: p, OpenPositions: len(p.Positions)}

	winRate := decimal.Zero
	if p.TotalTrades > 0 {
		winRate = decimal.NewFromInt(int64(p.WinningTrades)).
			Div(decimal.NewFromInt(int64(p.TotalTrades))).
			Mul(decimal.NewFromInt(100))
	}
	v.WinRate = winRate.StringFixed(1)

	balance := decimal.NewFromFloat(p.Balance)
	initial := decimal.NewFromFloat(p.InitialBalance)
	pnl := balance.Sub(initial)
	v.PnL = pnl.StringFixed(2)
	if initial.IsZero() {
		v.PnLPct = decimal.Zero.StringFixed(2)
	} else {
		v.PnLPct = pnl.Div(initial).Mul(decimal.NewFromInt(100)).StringFixed(2)
	}
	return v
}

// TradeRecord is one entry of the append-only trade history.
type TradeRecord struct {
	Type         string    `json:"type"`
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Amount       float64   `json:"amount"`
	Value        float64   `json:"value"`
	EntryPrice   *float64  `json:"entry_price,omitempty"`
	Profit       *float64  `json:"profit,omitempty"`
	ProfitPct    *float64  `json:"profit_pct,omitempty"`
	Confidence   float64   `json:"confidence"`
	BalanceAfter float64   `json:"balance_after"`
	CreatedAt    Timestamp `json:"created_at"`
}
