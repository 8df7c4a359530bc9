package model

import (
	"fmt"
	"math"
	"time"
)

// Direction is the side a zone or trade favours.
type Direction string

const (
	DirNone Direction = ""
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// Opposite returns the other side. DirNone stays DirNone.
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	}
	return DirNone
}

// Tier is one of the three ordered touch depths of a zone.
type Tier int

const (
	T1 Tier = iota // L1
	T2             // fifty
	T3             // L2
)

// Tiers lists the tiers in touch order.
var Tiers = []Tier{T1, T2, T3}

func (t Tier) String() string {
	return fmt.Sprintf("T%d", int(t)+1)
}

// ParseTier accepts "T1", "T2" or "T3".
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Anchor is a structural price/time reference.
type Anchor struct {
	Price float64
	Time  time.Time
}

// Touch records whether and when a tier level was reached.
type Touch struct {
	Touched bool
	Time    time.Time
}

// Zone is a detected reaction area bounded by L1 (near) and L2 (far).
// BEARISH zones have L2 above L1, BULLISH zones have L2 below L1.
type Zone struct {
	ID        string
	Timeframe Timeframe
	Direction Direction

	L1    float64
	L2    float64
	Fifty float64

	FirstBarrier  Anchor // P2
	SecondBarrier Anchor // P5
	L2Source      Anchor

	CreatedTime     time.Time
	CreatedBarIndex int
	// AvailableAt is the close of the confirmation bar: the earliest
	// simulated instant at which the zone may be known.
	AvailableAt time.Time

	Touches [3]Touch
	Traded  [3]bool

	Valid            bool
	Invalidated      bool
	InvalidationTime time.Time
	AgeBars          int

	ParentID        string
	ParentTimeframe Timeframe
	ParentCount     int
	Nested          bool
	Rank            int

	ATRAtCreation float64
}

// NewZone builds a valid zone with its midpoint and rank filled in.
func NewZone(tf Timeframe, dir Direction, l1, l2 float64) *Zone {
	return &Zone{
		Timeframe: tf,
		Direction: dir,
		L1:        l1,
		L2:        l2,
		Fifty:     (l1 + l2) / 2,
		Valid:     true,
		Rank:      tf.Rank(),
	}
}

// CheckGeometry verifies the barrier ordering and midpoint invariants.
func (z *Zone) CheckGeometry() error {
	if z.L1 == z.L2 {
		return fmt.Errorf("zone %s: %w", z.ID, ErrZeroDepth)
	}
	if (z.Direction == Bearish && z.L2 < z.L1) || (z.Direction == Bullish && z.L2 > z.L1) {
		return fmt.Errorf("zone %s %s L1=%.8f L2=%.8f: %w", z.ID, z.Direction, z.L1, z.L2, ErrInvertedGeometry)
	}
	if z.Direction != Bearish && z.Direction != Bullish {
		return fmt.Errorf("zone %s direction %q: %w", z.ID, z.Direction, ErrInvertedGeometry)
	}
	if z.Fifty != (z.L1+z.L2)/2 {
		return fmt.Errorf("zone %s: %w", z.ID, ErrBrokenMidpoint)
	}
	return nil
}

// Clone returns an independent copy.
func (z *Zone) Clone() *Zone {
	c := *z
	return &c
}

// Depth is |L1 - L2|.
func (z *Zone) Depth() float64 { return math.Abs(z.L1 - z.L2) }

// Bounds returns the zone interval as (low, high).
func (z *Zone) Bounds() (float64, float64) {
	return math.Min(z.L1, z.L2), math.Max(z.L1, z.L2)
}

// Contains reports whether price lies inside the zone interval, edges included.
func (z *Zone) Contains(price float64) bool {
	lo, hi := z.Bounds()
	return lo <= price && price <= hi
}

// Encloses reports whether other's interval lies entirely within z's.
func (z *Zone) Encloses(other *Zone) bool {
	lo, hi := z.Bounds()
	olo, ohi := other.Bounds()
	return lo <= olo && ohi <= hi
}

// BrokenBy reports whether a price sits beyond L2 on the losing side.
func (z *Zone) BrokenBy(price float64) bool {
	if z.Direction == Bearish {
		return price > z.L2
	}
	return price < z.L2
}

// PassedL1 reports whether price has already moved past L1 in the zone's
// favoured direction.
func (z *Zone) PassedL1(price float64) bool {
	if z.Direction == Bearish {
		return price < z.L1
	}
	return price > z.L1
}

// Level returns the price of a tier.
func (z *Zone) Level(t Tier) float64 {
	switch t {
	case T1:
		return z.L1
	case T2:
		return z.Fifty
	default:
		return z.L2
	}
}

// Touched reports whether the tier level has been reached.
func (z *Zone) Touched(t Tier) bool { return z.Touches[t].Touched }

// TouchTime returns the tier touch time, zero when untouched.
func (z *Zone) TouchTime(t Tier) time.Time { return z.Touches[t].Time }

// MarkTraded flags the tier as used. It reports false when it already was.
func (z *Zone) MarkTraded(t Tier) bool {
	if z.Traded[t] {
		return false
	}
	z.Traded[t] = true
	return true
}
