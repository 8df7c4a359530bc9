// Package lifecycle advances zone touch and invalidation state one bar at a
// time, using only the bar being processed.
package lifecycle

import (
	"time"

	"ZoneSentinel/internal/model"
)

// Transition describes what a single bar changed on a zone.
type Transition struct {
	Invalidated bool
	Touched     []model.Tier
}

// Changed reports whether the bar altered the zone's touch or validity.
func (t Transition) Changed() bool {
	return t.Invalidated || len(t.Touched) > 0
}

// Advance applies bar to z. Invalidated zones and bars that opened before
// the zone became observable (see Observable) are ignored. The order is fixed: a close beyond L2
// invalidates and ends processing; otherwise tiers are touched in order,
// possibly several on one bar; finally the age grows by one.
func Advance(z *model.Zone, bar model.OHLCV) Transition {
	var tr Transition
	if z.Invalidated || bar.Time.Before(Observable(z)) {
		return tr
	}

	if z.BrokenBy(bar.Close) {
		invalidate(z, bar.Time)
		tr.Invalidated = true
		return tr
	}

	probe := extreme(z, bar)
	for _, t := range model.Tiers {
		if z.Touches[t].Touched {
			continue
		}
		if t > model.T1 && !z.Touches[t-1].Touched {
			break
		}
		if !reaches(z, probe, z.Level(t)) {
			break
		}
		z.Touches[t] = model.Touch{Touched: true, Time: bar.Time}
		tr.Touched = append(tr.Touched, t)
	}

	z.AgeBars++
	return tr
}

// Observable is the first bar open time that can touch z: AvailableAt when
// set, otherwise CreatedTime. Bars before it shaped the zone.
func Observable(z *model.Zone) time.Time {
	if z.AvailableAt.After(z.CreatedTime) {
		return z.AvailableAt
	}
	return z.CreatedTime
}

// Recompute rebuilds the lifecycle of z from scratch over bars in one pass
// of first-occurrence scans. Both Recompute and Advance start at
// Observable(z), so feeding Advance every bar of the same window yields
// identical touch times, invalidation time and age.
func Recompute(z *model.Zone, bars []model.OHLCV) {
	z.Touches = [3]model.Touch{}
	z.Valid = true
	z.Invalidated = false
	z.InvalidationTime = time.Time{}
	z.AgeBars = 0

	start := 0
	begin := Observable(z)
	for start < len(bars) && bars[start].Time.Before(begin) {
		start++
	}
	window := bars[start:]

	end := len(window)
	for i, b := range window {
		if z.BrokenBy(b.Close) {
			end = i
			break
		}
	}

	from := 0
	for _, t := range model.Tiers {
		hit := -1
		for i := from; i < end; i++ {
			if reaches(z, extreme(z, window[i]), z.Level(t)) {
				hit = i
				break
			}
		}
		if hit < 0 {
			break
		}
		z.Touches[t] = model.Touch{Touched: true, Time: window[hit].Time}
		from = hit
	}

	z.AgeBars = end
	if end < len(window) {
		invalidate(z, window[end].Time)
	}
}

func invalidate(z *model.Zone, at time.Time) {
	z.Invalidated = true
	z.Valid = false
	z.InvalidationTime = at
}

// extreme is the wick that probes the zone: the high for BEARISH zones
// and the low for BULLISH ones.
func extreme(z *model.Zone, bar model.OHLCV) float64 {
	if z.Direction == model.Bearish {
		return bar.High
	}
	return bar.Low
}

func reaches(z *model.Zone, probe, level float64) bool {
	if z.Direction == model.Bearish {
		return probe >= level
	}
	return probe <= level
}
