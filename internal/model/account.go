package model

import "time"

// AccountState is a point-in-time view of the simulated account.
type AccountState struct {
	InitialBalance float64   `json:"initial_balance"`
	Balance        float64   `json:"balance"`
	Equity         float64   `json:"equity"`
	PeakEquity     float64   `json:"peak_equity"`
	OpenPositions  int       `json:"open_positions"`
	ClosedTrades   int       `json:"closed_trades"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RunStats summarises a finished run.
type RunStats struct {
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64 // 0.0 ~ 1.0
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
	NetProfit    float64
	MaxDrawdown  float64 // fraction of peak equity
	ReturnPct    float64
	ZonesFound   int
	Signals      int
	Rejections   int
}
