package engine

import (
	"github.com/shopspring/decimal"

	"ZoneSentinel/internal/calculator"
	"ZoneSentinel/internal/model"
)

// Summarize computes trade and equity statistics. ProfitFactor stays 0 when
// there is no gross loss to divide by.
func Summarize(ledger []model.ClosedTrade, equity []model.EquityPoint, initial float64) model.RunStats {
	var st model.RunStats
	gross, loss := decimal.Zero, decimal.Zero
	for _, ct := range ledger {
		st.Trades++
		switch {
		case ct.PnL.IsPositive():
			st.Wins++
			gross = gross.Add(ct.PnL)
		case ct.PnL.IsNegative():
			st.Losses++
			loss = loss.Add(ct.PnL.Abs())
		}
	}
	st.GrossProfit = gross.InexactFloat64()
	st.GrossLoss = loss.InexactFloat64()
	st.NetProfit = gross.Sub(loss).InexactFloat64()
	if st.Trades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Trades)
	}
	if st.GrossLoss > 0 {
		st.ProfitFactor = st.GrossProfit / st.GrossLoss
	}

	curve := make([]float64, 0, len(equity)+1)
	curve = append(curve, initial)
	for _, pt := range equity {
		curve = append(curve, pt.Equity)
	}
	st.MaxDrawdown = calculator.MaxDrawdown(curve)
	if initial > 0 {
		st.ReturnPct = st.NetProfit * 100 / initial
	}
	return st
}
