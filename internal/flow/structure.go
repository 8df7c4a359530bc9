package flow

import (
	"time"

	"ZoneSentinel/internal/model"
)

func findZone(id string, zones []*model.Zone) *model.Zone {
	if id == "" {
		return nil
	}
	for _, z := range zones {
		if z.ID == id {
			return z
		}
	}
	return nil
}

// LatestOutpost returns the most recently created valid zone of dir created
// strictly after after. It returns nil when that zone is already broken by
// price; older outposts are not considered in that case.
func LatestOutpost(dir model.Direction, price float64, after time.Time, zones []*model.Zone) *model.Zone {
	var best *model.Zone
	bestTime := after
	for _, z := range zones {
		if z.Direction != dir || !z.Valid {
			continue
		}
		if z.CreatedTime.After(bestTime) {
			bestTime = z.CreatedTime
			best = z
		}
	}
	if best == nil || best.BrokenBy(price) {
		return nil
	}
	return best
}

// NearestMagnet returns the valid zone opposing origin whose L1 lies ahead
// of price in the origin's direction, closest first.
func NearestMagnet(origin model.Direction, price float64, zones []*model.Zone) *model.Zone {
	target := origin.Opposite()
	var best *model.Zone
	bestDist := 0.0
	for _, z := range zones {
		if z.Direction != target || !z.Valid {
			continue
		}
		var dist float64
		switch {
		case origin == model.Bullish && z.L1 > price:
			dist = z.L1 - price
		case origin == model.Bearish && z.L1 < price:
			dist = price - z.L1
		default:
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = z, dist
		}
	}
	return best
}

// isExtreme reports whether no other valid zone of the magnet's direction
// sits beyond it.
func isExtreme(magnet *model.Zone, zones []*model.Zone) bool {
	for _, z := range zones {
		if z.Direction != magnet.Direction || !z.Valid {
			continue
		}
		if magnet.Direction == model.Bearish && z.L1 > magnet.L1 {
			return false
		}
		if magnet.Direction == model.Bullish && z.L1 < magnet.L1 {
			return false
		}
	}
	return true
}

// FindRoadblock returns the id of an opposing zone on a strictly senior
// timeframe that contains price and whose L2 is still untouched. The zone
// currently under siege is exempt. An empty string means the path is clear.
func FindRoadblock(tf model.Timeframe, dir model.Direction, price float64, all []*model.Zone, siegeMagnetID string) string {
	if dir == model.DirNone {
		return ""
	}
	opp := dir.Opposite()
	for _, z := range all {
		if !z.Valid || z.Direction != opp || !z.Timeframe.SeniorTo(tf) {
			continue
		}
		if z.Touched(model.T3) || !z.Contains(price) {
			continue
		}
		if siegeMagnetID != "" && z.ID == siegeMagnetID {
			continue
		}
		return z.ID
	}
	return ""
}
