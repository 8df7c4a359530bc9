package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExitReason names how a position was closed.
type ExitReason string

const (
	ExitStopLoss    ExitReason = "StopLoss"
	ExitTakeProfit  ExitReason = "TakeProfit"
	ExitForcedClose ExitReason = "ForcedClose"
)

// Position is an open simulated trade.
type Position struct {
	Ticket     int
	Symbol     string
	ZoneID     string
	Timeframe  Timeframe
	Tier       Tier
	Direction  Direction
	EntryPrice float64
	StopPrice  float64
	InitialSL  float64
	Target     float64
	Size       float64
	OpenTime   time.Time
	Reason     string

	BreakEven bool
	Trailing  bool
	Extreme   float64 // best price seen since entry
}

// Profit returns the price-point excursion at price, positive when favourable.
func (p *Position) Profit(price float64) float64 {
	if p.Direction == Bullish {
		return price - p.EntryPrice
	}
	return p.EntryPrice - price
}

// PnL is the money value of closing the whole position at price.
func (p *Position) PnL(price float64) decimal.Decimal {
	return decimal.NewFromFloat(p.Profit(price)).Mul(decimal.NewFromFloat(p.Size))
}

// ClosedTrade is an immutable ledger entry.
type ClosedTrade struct {
	Ticket     int
	Symbol     string
	ZoneID     string
	Timeframe  Timeframe
	Tier       Tier
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	StopPrice  float64
	Size       float64
	OpenTime   time.Time
	CloseTime  time.Time
	ExitReason ExitReason
	PnL        decimal.Decimal
	Reason     string
}

// EquityPoint is one per-bar account snapshot.
type EquityPoint struct {
	Time          time.Time
	Equity        float64
	Balance       float64
	OpenPositions int
}
