// Package risk converts signals into buffered stops and position sizes, and
// caps concurrent exposure.
package risk

import (
	"math"

	"ZoneSentinel/internal/model"
)

// SymbolParams holds the per-symbol stop buffer and trade management
// thresholds, all in price points.
type SymbolParams struct {
	SLBuffer        float64 `yaml:"sl_buffer"`
	BEActivation    float64 `yaml:"be_activation"`
	BELockIn        float64 `yaml:"be_lockin"`
	TrailActivation float64 `yaml:"trail_activation"`
	TrailDistance   float64 `yaml:"trail_distance"`
}

// DefaultSymbols are the built-in parameter sets.
var DefaultSymbols = map[string]SymbolParams{
	"BTCUSDT": {SLBuffer: 200, BEActivation: 1500, BELockIn: 150, TrailActivation: 2500, TrailDistance: 1200},
	"XAUUSD":  {SLBuffer: 4},
}

const (
	DefaultRiskFraction = 0.01
	DefaultMaxOpen      = 10
)

// Sizer computes buffered stops and sizes.
type Sizer struct {
	RiskFraction float64
	Symbols      map[string]SymbolParams
}

// NewSizer returns a sizer seeded with DefaultSymbols; overrides replace
// entries with the same symbol.
func NewSizer(riskFraction float64, overrides map[string]SymbolParams) *Sizer {
	symbols := make(map[string]SymbolParams, len(DefaultSymbols)+len(overrides))
	for k, v := range DefaultSymbols {
		symbols[k] = v
	}
	for k, v := range overrides {
		symbols[k] = v
	}
	return &Sizer{RiskFraction: riskFraction, Symbols: symbols}
}

// Params returns the symbol's parameters, zero-valued when unknown.
func (s *Sizer) Params(symbol string) SymbolParams {
	return s.Symbols[symbol]
}

// BufferedStop offsets the structural stop by the symbol buffer away from
// entry. If that lands on the wrong side of entry it is clamped to one
// buffer beyond entry.
func BufferedStop(dir model.Direction, entry, structureStop, buffer float64) float64 {
	if dir == model.Bullish {
		sl := structureStop - buffer
		if sl >= entry {
			sl = entry - buffer
		}
		return sl
	}
	sl := structureStop + buffer
	if sl <= entry {
		sl = entry + buffer
	}
	return sl
}

// Size returns balance * riskFraction / |entry - stop|, or 0 when the stop
// equals entry.
func Size(balance, riskFraction, entry, stop float64) float64 {
	diff := math.Abs(entry - stop)
	if diff == 0 {
		return 0
	}
	return balance * riskFraction / diff
}

// Plan returns the buffered stop and size for a signal.
func (s *Sizer) Plan(sig model.TradeSignal, balance float64) (stop, size float64) {
	p := s.Params(sig.Symbol)
	stop = BufferedStop(sig.Direction, sig.EntryPrice, sig.StructureStop, p.SLBuffer)
	return stop, Size(balance, s.RiskFraction, sig.EntryPrice, stop)
}

// ExposureGovernor rejects new trades once the open count reaches MaxOpen.
type ExposureGovernor struct {
	MaxOpen int
}

// Allow reports whether another position may open.
func (g ExposureGovernor) Allow(open int) bool {
	return open < g.MaxOpen
}
