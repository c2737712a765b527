package models

// NoSymbol is reported as best/worst symbol when no symbol qualifies.
const NoSymbol = "none"

// SymbolTally counts signal kinds for one symbol.
type SymbolTally struct {
	Buys    int `json:"buys"`
	Sells   int `json:"sells"`
	Neutral int `json:"neutral"`
}

// AggregateStats is recomputed from the trade signals of every snapshot.
type AggregateStats struct {
	Total         int                    `json:"total"`
	Buys          int                    `json:"buys"`
	Sells         int                    `json:"sells"`
	Rate          float64                `json:"rate"` // buys/total
	AvgConfidence float64                `json:"avg_confidence"`
	BySymbol      map[string]SymbolTally `json:"by_symbol"`
	Symbols       []string               `json:"symbols"` // first-seen order
	BestSymbol    string                 `json:"best_symbol"`
	WorstSymbol   string                 `json:"worst_symbol"`
	Today         int                    `json:"today"`
}
