// Package flow maintains the per-timeframe narrative: the authoritative
// origin zone, the magnet it travels toward, the freshest outpost, siege
// and roadblock conditions, and the storyline latch.
package flow

import (
	"time"

	"go.uber.org/zap"

	"ZoneSentinel/internal/model"
)

// OriginChange reports a timeframe that adopted a new origin this bar.
type OriginChange struct {
	Timeframe model.Timeframe
	OriginID  string
	Direction model.Direction
	Promoted  bool // successor promotion rather than a fresh search
}

// Machine owns one FlowState per timeframe of the hierarchy.
type Machine struct {
	states map[model.Timeframe]*model.FlowState
	logger *zap.Logger
}

// NewMachine creates empty states for every timeframe.
func NewMachine(logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		states: make(map[model.Timeframe]*model.FlowState, len(model.Hierarchy)),
		logger: logger,
	}
	for _, tf := range model.Hierarchy {
		m.states[tf] = model.NewFlowState(tf)
	}
	return m
}

// State returns the live state of tf. Unknown timeframes get an empty,
// invalid state so callers never see nil.
func (m *Machine) State(tf model.Timeframe) *model.FlowState {
	if s, ok := m.states[tf]; ok {
		return s
	}
	return model.NewFlowState(tf)
}

// Update advances every timeframe, senior first, then refreshes the
// roadblocks against the full active set. byTF holds each timeframe's
// active zones.
func (m *Machine) Update(byTF map[model.Timeframe][]*model.Zone, price float64, now time.Time) []OriginChange {
	var all []*model.Zone
	for _, tf := range model.Hierarchy {
		all = append(all, byTF[tf]...)
	}

	var changes []OriginChange
	for _, tf := range model.Hierarchy {
		st := m.states[tf]
		before := st.OriginID
		promoted := UpdateTimeframe(st, byTF[tf], price)
		st.UpdatedAt = now

		if st.OriginID != before && st.OriginID != "" {
			changes = append(changes, OriginChange{
				Timeframe: tf,
				OriginID:  st.OriginID,
				Direction: st.OriginDir,
				Promoted:  promoted,
			})
			m.logger.Debug("origin changed",
				zap.String("tf", string(tf)),
				zap.String("origin", st.OriginID),
				zap.String("dir", string(st.OriginDir)),
				zap.Bool("promoted", promoted),
				zap.Time("at", now))
		}

		siegeMagnet := ""
		if st.SiegeActive {
			siegeMagnet = st.MagnetID
		}
		st.RoadblockID = FindRoadblock(tf, st.OriginDir, price, all, siegeMagnet)
	}
	return changes
}

// UpdateTimeframe advances one timeframe's state with its active zones and
// the current price. It reports whether a successor was promoted.
func UpdateTimeframe(st *model.FlowState, zones []*model.Zone, price float64) bool {
	if st.Valid && st.OriginID != "" {
		curr := findZone(st.OriginID, zones)
		if curr != nil && curr.Valid && !curr.BrokenBy(price) {
			refreshAnchor(st, curr, zones, price)
			refreshMagnet(st, zones, price)
			refreshSiege(st, zones)

			if st.MagnetL2Touched {
				return promoteSuccessor(st, curr, zones, price)
			}
			return false
		}
	}

	findOrigin(st, zones, price)
	return false
}

// refreshAnchor recomputes the outpost that succeeds origin. The anchor is
// the outpost when one exists, else the origin itself.
func refreshAnchor(st *model.FlowState, origin *model.Zone, zones []*model.Zone, price float64) {
	outpost := LatestOutpost(st.OriginDir, price, origin.CreatedTime, zones)
	anchor := origin
	if outpost != nil {
		anchor = outpost
		st.OutpostID = outpost.ID
		st.OutpostL1 = outpost.L1
		st.OutpostTouchTime = outpost.TouchTime(model.T1)
	} else {
		st.OutpostID = ""
		st.OutpostL1 = 0
		st.OutpostTouchTime = time.Time{}
	}
	st.AnchorTraded = anchor.Touched(model.T1)
}

func refreshMagnet(st *model.FlowState, zones []*model.Zone, price float64) {
	magnet := NearestMagnet(st.OriginDir, price, zones)
	if magnet == nil {
		st.ClearMagnet()
		return
	}
	st.MagnetID = magnet.ID
	st.MagnetDir = magnet.Direction
	st.MagnetL1 = magnet.L1
	st.MagnetL2 = magnet.L2
	st.MagnetTouchTime = magnet.TouchTime(model.T1)
	st.MagnetFiftyTouched = magnet.Touched(model.T2)
	st.MagnetL2Touched = magnet.Touched(model.T3)
	st.MagnetExtreme = isExtreme(magnet, zones)
}

// refreshSiege activates a siege when the magnet's L1 has been tagged and
// the outpost was touched after it.
func refreshSiege(st *model.FlowState, zones []*model.Zone) {
	st.SiegeActive = false
	magnet := findZone(st.MagnetID, zones)
	if magnet == nil || !magnet.Touched(model.T1) {
		return
	}
	if !st.OutpostTouchTime.IsZero() && st.OutpostTouchTime.After(magnet.TouchTime(model.T1)) {
		st.SiegeActive = true
	}
}

// promoteSuccessor runs once the magnet's L2 has been touched. The freshest
// outpost becomes the origin; without one the state resets.
func promoteSuccessor(st *model.FlowState, curr *model.Zone, zones []*model.Zone, price float64) bool {
	succ := LatestOutpost(st.OriginDir, price, curr.CreatedTime, zones)
	if succ == nil {
		st.Reset()
		return false
	}
	setOrigin(st, succ)
	st.OutpostID = ""
	st.OutpostL1 = 0
	st.OutpostTouchTime = time.Time{}
	st.AnchorTraded = succ.Touched(model.T1)
	st.ClearMagnet()
	return true
}

// findOrigin adopts the most recently created valid, unbroken zone that has
// been touched at L1 or whose L1 price has already passed.
func findOrigin(st *model.FlowState, zones []*model.Zone, price float64) {
	var best *model.Zone
	for _, z := range zones {
		if !z.Valid || z.BrokenBy(price) {
			continue
		}
		if !z.Touched(model.T1) && !z.PassedL1(price) {
			continue
		}
		if best == nil || z.CreatedTime.After(best.CreatedTime) {
			best = z
		}
	}
	if best == nil {
		st.Reset()
		return
	}

	setOrigin(st, best)
	st.Valid = true
	st.LatchDir = best.Direction
	st.SiegeActive = false
	refreshAnchor(st, best, zones, price)
	refreshMagnet(st, zones, price)
}

func setOrigin(st *model.FlowState, z *model.Zone) {
	st.OriginID = z.ID
	st.OriginDir = z.Direction
	st.OriginL1 = z.L1
	st.OriginL2 = z.L2
	st.OriginCreated = z.CreatedTime
	st.OriginTouchTime = z.TouchTime(model.T1)
	if st.OriginTouchTime.IsZero() {
		st.OriginTouchTime = z.CreatedTime
	}
}
