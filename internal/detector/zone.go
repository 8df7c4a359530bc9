package detector

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"ZoneSentinel/internal/calculator"
	"ZoneSentinel/internal/model"
)

// DefaultATRPeriod is the ATR length recorded on each zone.
const DefaultATRPeriod = 14

// Detector finds reaction zones on one timeframe.
type Detector struct {
	Timeframe   model.Timeframe
	SwingWindow int
	ATRPeriod   int
	logger      *zap.Logger
}

// Result holds everything one detection pass produced.
type Result struct {
	Swings    []SwingPoint
	Breakouts []Breakout
	Zones     []*model.Zone
}

// NewDetector creates a detector. A nil logger disables logging.
func NewDetector(tf model.Timeframe, swingWindow int, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		Timeframe:   tf,
		SwingWindow: swingWindow,
		ATRPeriod:   DefaultATRPeriod,
		logger:      logger.With(zap.String("tf", string(tf))),
	}
}

// ZoneID derives the stable identifier of a zone.
func ZoneID(l1, l2 float64, tf model.Timeframe, dir model.Direction, l2Time time.Time) string {
	raw := fmt.Sprintf("%.8f_%.8f_%s_%s_%s", l1, l2, tf, dir, l2Time.UTC().Format(time.RFC3339Nano))
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:12]
}

// Detect runs the full pass over bars: swings, breakouts, then zones.
func (d *Detector) Detect(bars []model.OHLCV) *Result {
	swings := FindSwings(bars, d.SwingWindow)
	res := &Result{Swings: swings}
	res.Zones = d.FindZones(bars, swings)
	marked := append([]SwingPoint(nil), swings...)
	res.Breakouts = MarkBreakouts(bars, marked, 0)
	res.Swings = marked

	d.logger.Debug("detection pass finished",
		zap.Int("bars", len(bars)),
		zap.Int("swings", len(swings)),
		zap.Int("breakouts", len(res.Breakouts)),
		zap.Int("zones", len(res.Zones)))
	return res
}

// candidate is an accepted five-point pattern.
type candidate struct {
	dir            model.Direction
	p1, p2, p3, p5 SwingPoint
	p4             int
}

// FindZones searches the five-point pattern in both directions and returns
// the zones sorted by creation time. Bearish candidates precede bullish ones
// created on the same bar.
func (d *Detector) FindZones(bars []model.OHLCV, swings []SwingPoint) []*model.Zone {
	var cands []candidate
	cands = append(cands, d.scan(bars, swings, model.Bearish)...)
	cands = append(cands, d.scan(bars, swings, model.Bullish)...)

	var atr []float64
	if d.ATRPeriod > 0 {
		atr = calculator.ATRSeries(bars, d.ATRPeriod)
	}

	seen := make(map[string]bool)
	zones := make([]*model.Zone, 0, len(cands))
	for _, c := range cands {
		z := d.build(bars, c)
		if err := z.CheckGeometry(); err != nil {
			d.logger.Debug("discarding degenerate zone", zap.Error(err))
			continue
		}
		if seen[z.ID] {
			continue
		}
		seen[z.ID] = true
		if c.p4 < len(atr) {
			z.ATRAtCreation = atr[c.p4]
		}
		zones = append(zones, z)
	}

	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].CreatedTime.Before(zones[j].CreatedTime)
	})
	return zones
}

// scan finds the candidates of one direction. For BEARISH the anchor pivot
// is a HIGH, for BULLISH a LOW.
func (d *Detector) scan(bars []model.OHLCV, swings []SwingPoint, dir model.Direction) []candidate {
	anchor, opposite := SwingHigh, SwingLow
	if dir == model.Bullish {
		anchor, opposite = SwingLow, SwingHigh
	}
	// beyond reports whether a is past b in the pattern's direction.
	beyond := func(a, b float64) bool {
		if dir == model.Bearish {
			return a < b
		}
		return a > b
	}

	var out []candidate
	for i := 0; i+2 < len(swings); i++ {
		p1 := swings[i]
		if p1.Kind != anchor {
			continue
		}
		j2 := nextOfKind(swings, i+1, opposite)
		if j2 < 0 {
			continue
		}
		p2 := swings[j2]
		j3 := nextOfKind(swings, j2+1, anchor)
		if j3 < 0 {
			continue
		}
		p3 := swings[j3]

		j5 := -1
		for k := i - 1; k >= 0; k-- {
			if swings[k].Kind == opposite && beyond(swings[k].Price, p2.Price) {
				j5 = k
				break
			}
		}
		if j5 < 0 {
			continue
		}
		p5 := swings[j5]

		p4 := -1
		for b := p3.BarIndex + 1; b < len(bars); b++ {
			if beyond(bars[b].Close, p5.Price) {
				p4 = b
				break
			}
		}
		if p4 < 0 {
			continue
		}

		if interrupted(swings[i+1:], p3.Time, bars[p4].Time) {
			continue
		}

		l2 := tighterL2(dir, p1.Price, p3.Price)
		faded := false
		for b := p3.BarIndex + 1; b <= p4; b++ {
			if beyond(l2, bars[b].Close) {
				faded = true
				break
			}
		}
		if faded {
			continue
		}

		out = append(out, candidate{dir: dir, p1: p1, p2: p2, p3: p3, p5: p5, p4: p4})
	}
	return out
}

func (d *Detector) build(bars []model.OHLCV, c candidate) *model.Zone {
	l2 := tighterL2(c.dir, c.p1.Price, c.p3.Price)
	l2Time := c.p3.Time
	if l2 == c.p1.Price {
		l2Time = c.p1.Time
	}

	z := model.NewZone(d.Timeframe, c.dir, c.p2.Price, l2)
	z.ID = ZoneID(z.L1, z.L2, d.Timeframe, c.dir, l2Time)
	z.FirstBarrier = model.Anchor{Price: c.p2.Price, Time: c.p2.Time}
	z.SecondBarrier = model.Anchor{Price: c.p5.Price, Time: c.p5.Time}
	z.L2Source = model.Anchor{Price: l2, Time: l2Time}
	z.CreatedTime = bars[c.p4].Time
	z.CreatedBarIndex = c.p4
	// P3 is only a confirmed swing once window bars have closed after it.
	known := c.p4
	if w := c.p3.BarIndex + max(d.SwingWindow, 1); w > known && w < len(bars) {
		known = w
	}
	z.AvailableAt = d.Timeframe.CloseTime(bars[known].Time)
	return z
}

// tighterL2 picks the far barrier: the higher of P1/P3 for BEARISH and the
// lower for BULLISH. P1 wins ties.
func tighterL2(dir model.Direction, p1, p3 float64) float64 {
	if dir == model.Bearish {
		if p1 >= p3 {
			return p1
		}
		return p3
	}
	if p1 <= p3 {
		return p1
	}
	return p3
}

func nextOfKind(swings []SwingPoint, from int, kind SwingKind) int {
	for j := from; j < len(swings); j++ {
		if swings[j].Kind == kind {
			return j
		}
	}
	return -1
}

// interrupted reports whether any swing lies strictly between from and to.
func interrupted(swings []SwingPoint, from, to time.Time) bool {
	for _, s := range swings {
		if s.Time.After(from) && s.Time.Before(to) {
			return true
		}
	}
	return false
}
