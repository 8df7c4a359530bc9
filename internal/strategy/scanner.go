package strategy

import (
	"go.uber.org/zap"

	"ZoneSentinel/internal/model"
)

// DefaultProximity widens each zone by this fraction of the bar close when
// testing whether the bar interacts with it.
const DefaultProximity = 0.002

// Rejection is a candidate the gatekeeper turned down.
type Rejection struct {
	ZoneID    string
	Timeframe model.Timeframe
	Tier      model.Tier
	Reason    string
}

// ScanResult is what one bar produced.
type ScanResult struct {
	Signals    []model.TradeSignal
	Rejections []Rejection
}

// Scanner turns fresh tier touches into authorized trade signals.
type Scanner struct {
	Symbol    string
	Gate      *Gatekeeper
	Proximity float64
	logger    *zap.Logger
}

// NewScanner creates a scanner with the default proximity.
func NewScanner(symbol string, gate *Gatekeeper, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{Symbol: symbol, Gate: gate, Proximity: DefaultProximity, logger: logger}
}

// Scan evaluates every valid zone the bar reaches. For each tier touched on
// exactly this bar and not yet traded it asks the gatekeeper; authorized
// tiers are marked traded so each fires at most once. Zones with an open
// position are skipped, and a zone yields at most one signal per bar.
func (s *Scanner) Scan(zones []*model.Zone, bar model.OHLCV, book model.FlowBook, isOpen func(zoneID string) bool) ScanResult {
	var res ScanResult
	buf := bar.Close * s.Proximity

	for _, z := range zones {
		if !z.Valid {
			continue
		}
		lo, hi := z.Bounds()
		if bar.High < lo-buf || bar.Low > hi+buf {
			continue
		}
		if isOpen != nil && isOpen(z.ID) {
			continue
		}

		probe := bar.Low
		if z.Direction == model.Bearish {
			probe = bar.High
		}

		for _, tier := range model.Tiers {
			if !z.Touched(tier) || z.Traded[tier] || !z.TouchTime(tier).Equal(bar.Time) {
				continue
			}
			req := Request{
				Zone:      z,
				Timeframe: z.Timeframe,
				Direction: z.Direction,
				EvalPrice: probe,
				Time:      bar.Time,
				Tier:      tier,
			}
			d := s.Gate.Authorize(req, book)
			if !d.Allowed {
				res.Rejections = append(res.Rejections, Rejection{ZoneID: z.ID, Timeframe: z.Timeframe, Tier: tier, Reason: d.Reason})
				continue
			}

			z.MarkTraded(tier)
			res.Signals = append(res.Signals, model.TradeSignal{
				ZoneID:        z.ID,
				Timeframe:     z.Timeframe,
				Symbol:        s.Symbol,
				Direction:     z.Direction,
				Tier:          tier,
				EntryPrice:    z.Level(tier),
				StructureStop: z.L2,
				TargetPrice:   d.TargetPrice,
				TargetID:      d.TargetID,
				Reason:        d.Reason,
				Time:          bar.Time,
			})
			s.logger.Debug("signal authorized",
				zap.String("zone", z.ID),
				zap.String("tf", string(z.Timeframe)),
				zap.String("tier", tier.String()),
				zap.String("reason", d.Reason))
			break
		}
	}
	return res
}
