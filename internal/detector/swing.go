package detector

import (
	"time"

	"ZoneSentinel/internal/model"
)

// SwingKind distinguishes swing highs from swing lows.
type SwingKind int

const (
	SwingHigh SwingKind = iota
	SwingLow
)

func (k SwingKind) String() string {
	if k == SwingHigh {
		return "HIGH"
	}
	return "LOW"
}

// SwingPoint is a local extremum in closing price.
type SwingPoint struct {
	Price    float64
	Time     time.Time
	BarIndex int
	Kind     SwingKind
	Broken   bool
}

// Breakout records the first close beyond a swing.
type Breakout struct {
	Direction  model.Direction
	BarIndex   int
	Time       time.Time
	Close      float64
	SwingPrice float64
	SwingTime  time.Time
	SwingKind  SwingKind
}

// FindSwings returns the close-price pivots of bars in chronological order.
// A bar is a HIGH when its close is strictly greater than every close within
// window bars on either side, and a LOW when strictly lower. Ties produce
// nothing. A window below 1 is treated as 1.
func FindSwings(bars []model.OHLCV, window int) []SwingPoint {
	if window < 1 {
		window = 1
	}
	var swings []SwingPoint
	for i := window; i < len(bars)-window; i++ {
		c := bars[i].Close
		isHigh, isLow := true, true
		for k := 1; k <= window && (isHigh || isLow); k++ {
			left, right := bars[i-k].Close, bars[i+k].Close
			if !(c > left && c > right) {
				isHigh = false
			}
			if !(c < left && c < right) {
				isLow = false
			}
		}
		switch {
		case isHigh:
			swings = append(swings, SwingPoint{Price: c, Time: bars[i].Time, BarIndex: i, Kind: SwingHigh})
		case isLow:
			swings = append(swings, SwingPoint{Price: c, Time: bars[i].Time, BarIndex: i, Kind: SwingLow})
		}
	}
	return swings
}

// MarkBreakouts scans bars left to right and flags each swing broken on the
// first later close beyond it: above a HIGH or below a LOW. Swings older than
// maxAge bars are skipped when maxAge > 0.
func MarkBreakouts(bars []model.OHLCV, swings []SwingPoint, maxAge int) []Breakout {
	var out []Breakout
	for i, bar := range bars {
		for s := range swings {
			sw := &swings[s]
			if sw.Broken || sw.BarIndex >= i {
				continue
			}
			if maxAge > 0 && i-sw.BarIndex > maxAge {
				continue
			}
			var dir model.Direction
			switch {
			case sw.Kind == SwingHigh && bar.Close > sw.Price:
				dir = model.Bullish
			case sw.Kind == SwingLow && bar.Close < sw.Price:
				dir = model.Bearish
			default:
				continue
			}
			sw.Broken = true
			out = append(out, Breakout{
				Direction:  dir,
				BarIndex:   i,
				Time:       bar.Time,
				Close:      bar.Close,
				SwingPrice: sw.Price,
				SwingTime:  sw.Time,
				SwingKind:  sw.Kind,
			})
		}
	}
	return out
}
