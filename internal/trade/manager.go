// Package trade owns the simulated account: open positions, the closed
// trade ledger and the equity curve.
package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ZoneSentinel/internal/model"
	"ZoneSentinel/internal/risk"
)

var (
	ErrZeroSize    = errors.New("position size is zero")
	ErrExposureCap = errors.New("exposure cap reached")
)

// Manager simulates order handling for one run. It is not safe for
// concurrent use.
type Manager struct {
	sizer    *risk.Sizer
	exposure risk.ExposureGovernor

	initial decimal.Decimal
	balance decimal.Decimal

	positions  []*model.Position
	ledger     []model.ClosedTrade
	equity     []model.EquityPoint
	nextTicket int
	peak       float64

	logger *zap.Logger
}

// NewManager creates a manager holding initialBalance.
func NewManager(initialBalance float64, sizer *risk.Sizer, exposure risk.ExposureGovernor, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := decimal.NewFromFloat(initialBalance)
	return &Manager{
		sizer:      sizer,
		exposure:   exposure,
		initial:    b,
		balance:    b,
		nextTicket: 1,
		peak:       initialBalance,
		logger:     logger,
	}
}

// Execute opens a position for sig. It refuses when the exposure cap is
// reached, the zone already has an open position, or sizing yields zero.
func (m *Manager) Execute(sig model.TradeSignal) (*model.Position, error) {
	if !m.exposure.Allow(len(m.positions)) {
		return nil, fmt.Errorf("zone %s: %w (%d open)", sig.ZoneID, ErrExposureCap, len(m.positions))
	}
	if m.IsOpen(sig.ZoneID) {
		return nil, fmt.Errorf("zone %s: %w", sig.ZoneID, model.ErrDuplicatePosition)
	}
	stop, size := m.sizer.Plan(sig, m.Balance())
	if size <= 0 {
		return nil, fmt.Errorf("zone %s entry %.8f stop %.8f: %w", sig.ZoneID, sig.EntryPrice, stop, ErrZeroSize)
	}

	pos := &model.Position{
		Ticket:     m.nextTicket,
		Symbol:     sig.Symbol,
		ZoneID:     sig.ZoneID,
		Timeframe:  sig.Timeframe,
		Tier:       sig.Tier,
		Direction:  sig.Direction,
		EntryPrice: sig.EntryPrice,
		StopPrice:  stop,
		InitialSL:  stop,
		Target:     sig.TargetPrice,
		Size:       size,
		OpenTime:   sig.Time,
		Reason:     sig.Reason,
		Extreme:    sig.EntryPrice,
	}
	m.nextTicket++
	m.positions = append(m.positions, pos)

	m.logger.Debug("position opened",
		zap.Int("ticket", pos.Ticket),
		zap.String("zone", pos.ZoneID),
		zap.String("dir", string(pos.Direction)),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop", pos.StopPrice),
		zap.Float64("target", pos.Target),
		zap.Float64("size", pos.Size))
	return pos, nil
}

// Manage applies one bar to every open position: break-even, trailing, then
// stop before target against the bar's low and high. It returns the trades
// closed on this bar.
func (m *Manager) Manage(bar model.OHLCV) []model.ClosedTrade {
	var closed []model.ClosedTrade
	still := m.positions[:0]
	for _, pos := range m.positions {
		m.adjustStop(pos, bar.Close)

		exit, reason, hit := exitFor(pos, bar)
		if !hit {
			still = append(still, pos)
			continue
		}
		closed = append(closed, m.close(pos, exit, bar.Time, reason))
	}
	m.positions = still
	return closed
}

// adjustStop moves the stop to break-even plus the lock-in once profit at
// price exceeds the activation, and trails it behind the best price once
// profit exceeds the trailing activation. Stops only move favourably.
func (m *Manager) adjustStop(pos *model.Position, price float64) {
	p := m.sizer.Params(pos.Symbol)
	if pos.Direction == model.Bullish && price > pos.Extreme {
		pos.Extreme = price
	}
	if pos.Direction == model.Bearish && price < pos.Extreme {
		pos.Extreme = price
	}
	profit := pos.Profit(price)

	if p.BEActivation > 0 && !pos.BreakEven && profit > p.BEActivation {
		lock := pos.EntryPrice + p.BELockIn
		if pos.Direction == model.Bearish {
			lock = pos.EntryPrice - p.BELockIn
		}
		if tighter(pos.Direction, lock, pos.StopPrice) {
			pos.StopPrice = lock
		}
		pos.BreakEven = true
	}

	if p.TrailActivation > 0 && profit > p.TrailActivation {
		trail := pos.Extreme - p.TrailDistance
		if pos.Direction == model.Bearish {
			trail = pos.Extreme + p.TrailDistance
		}
		if tighter(pos.Direction, trail, pos.StopPrice) {
			pos.StopPrice = trail
		}
		pos.Trailing = true
	}
}

// tighter reports whether candidate is a more protective stop than current.
func tighter(dir model.Direction, candidate, current float64) bool {
	if dir == model.Bullish {
		return candidate > current
	}
	return candidate < current
}

func exitFor(pos *model.Position, bar model.OHLCV) (float64, model.ExitReason, bool) {
	if pos.Direction == model.Bullish {
		if bar.Low <= pos.StopPrice {
			return pos.StopPrice, model.ExitStopLoss, true
		}
		if pos.Target > 0 && bar.High >= pos.Target {
			return pos.Target, model.ExitTakeProfit, true
		}
		return 0, "", false
	}
	if bar.High >= pos.StopPrice {
		return pos.StopPrice, model.ExitStopLoss, true
	}
	if pos.Target > 0 && bar.Low <= pos.Target {
		return pos.Target, model.ExitTakeProfit, true
	}
	return 0, "", false
}

func (m *Manager) close(pos *model.Position, exit float64, at time.Time, reason model.ExitReason) model.ClosedTrade {
	pnl := pos.PnL(exit)
	m.balance = m.balance.Add(pnl)
	ct := model.ClosedTrade{
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		ZoneID:     pos.ZoneID,
		Timeframe:  pos.Timeframe,
		Tier:       pos.Tier,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit,
		StopPrice:  pos.StopPrice,
		Size:       pos.Size,
		OpenTime:   pos.OpenTime,
		CloseTime:  at,
		ExitReason: reason,
		PnL:        pnl,
		Reason:     pos.Reason,
	}
	m.ledger = append(m.ledger, ct)
	m.logger.Debug("position closed",
		zap.Int("ticket", ct.Ticket),
		zap.String("reason", string(reason)),
		zap.Float64("exit", exit),
		zap.String("pnl", pnl.StringFixed(2)))
	return ct
}

// ForceCloseAll liquidates every open position at price.
func (m *Manager) ForceCloseAll(price float64, at time.Time) []model.ClosedTrade {
	var closed []model.ClosedTrade
	for _, pos := range m.positions {
		closed = append(closed, m.close(pos, price, at, model.ExitForcedClose))
	}
	m.positions = nil
	return closed
}

// Snapshot marks open positions to price and appends one equity point.
func (m *Manager) Snapshot(at time.Time, price float64) model.EquityPoint {
	eq := m.balance
	for _, pos := range m.positions {
		eq = eq.Add(pos.PnL(price))
	}
	equity := eq.InexactFloat64()
	if equity > m.peak {
		m.peak = equity
	}
	pt := model.EquityPoint{
		Time:          at,
		Equity:        equity,
		Balance:       m.Balance(),
		OpenPositions: len(m.positions),
	}
	m.equity = append(m.equity, pt)
	return pt
}

// IsOpen reports whether zoneID has an open position.
func (m *Manager) IsOpen(zoneID string) bool {
	for _, p := range m.positions {
		if p.ZoneID == zoneID {
			return true
		}
	}
	return false
}

// OpenCount returns the number of open positions.
func (m *Manager) OpenCount() int { return len(m.positions) }

// Positions returns copies of the open positions.
func (m *Manager) Positions() []model.Position {
	out := make([]model.Position, len(m.positions))
	for i, p := range m.positions {
		out[i] = *p
	}
	return out
}

// Balance returns the realized balance.
func (m *Manager) Balance() float64 { return m.balance.InexactFloat64() }

// BalanceDecimal returns the realized balance at full precision.
func (m *Manager) BalanceDecimal() decimal.Decimal { return m.balance }

// Ledger returns the closed trades in close order.
func (m *Manager) Ledger() []model.ClosedTrade {
	return append([]model.ClosedTrade(nil), m.ledger...)
}

// Equity returns the equity curve.
func (m *Manager) Equity() []model.EquityPoint {
	return append([]model.EquityPoint(nil), m.equity...)
}

// Account summarises the account after the latest snapshot.
func (m *Manager) Account() model.AccountState {
	st := model.AccountState{
		InitialBalance: m.initial.InexactFloat64(),
		Balance:        m.Balance(),
		Equity:         m.Balance(),
		PeakEquity:     m.peak,
		OpenPositions:  len(m.positions),
		ClosedTrades:   len(m.ledger),
	}
	if n := len(m.equity); n > 0 {
		st.Equity = m.equity[n-1].Equity
		st.UpdatedAt = m.equity[n-1].Time
	}
	return st
}
