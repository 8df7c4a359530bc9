package strategy

import (
	"fmt"
	"time"

	"ZoneSentinel/internal/model"
)

// Request is a candidate entry submitted to the gatekeeper.
type Request struct {
	Zone      *model.Zone
	Timeframe model.Timeframe
	Direction model.Direction
	EvalPrice float64 // bar low for BULLISH, bar high for BEARISH
	Time      time.Time
	Tier      model.Tier
}

// Gatekeeper decides whether a candidate is authorized by the multi-timeframe
// narrative. Authorize reads the flow book but never mutates it.
type Gatekeeper struct {
	Symbol   string
	Governor *Governor
	// Targets enables take-profit levels on authorized trades.
	Targets bool
}

// NewGatekeeper creates a gatekeeper with targets enabled.
func NewGatekeeper(symbol string, gov *Governor) *Gatekeeper {
	if gov == nil {
		gov = NewGovernor()
	}
	return &Gatekeeper{Symbol: symbol, Governor: gov, Targets: true}
}

// Tradable reports whether tf may initiate trades. The two most senior
// timeframes only provide context.
func Tradable(tf model.Timeframe) bool {
	return tf.Rank() >= model.D1.Rank()
}

func reject(format string, args ...any) model.Decision {
	return model.Decision{Reason: fmt.Sprintf(format, args...)}
}

// Authorize runs the decision chain: scope, tier gating, temporal mute,
// spatial gasket, then the fade, inertial flow and discovery paths.
func (g *Gatekeeper) Authorize(req Request, book model.FlowBook) model.Decision {
	tf, dir := req.Timeframe, req.Direction

	if !Tradable(tf) {
		return reject("Context Only: %s Does Not Trade", tf)
	}
	if !g.Governor.TierAllowed(tf, req.Tier) {
		return reject("Tier Gating Block: %s %s Restricted", tf, req.Tier)
	}
	if !g.Governor.TemporallyClean(g.Symbol, tf, dir) {
		return reject("Temporal Mute: %s %s Cooldown Active", tf, dir)
	}
	if ok, reason := g.Governor.SpatiallyEfficient(req.EvalPrice, req.Zone); !ok {
		return model.Decision{Reason: reason}
	}

	w1, d1 := book.State(model.W1), book.State(model.D1)
	w1Confluent := confluent(w1, dir)
	d1Confluent := confluent(d1, dir)

	// Against the D1 storyline only a senior magnet fade can authorize.
	if !d1Confluent {
		for _, ref := range []model.Timeframe{model.MN1, model.W1, model.D1} {
			st := book.State(ref)
			if !st.Valid || st.MagnetID == "" || !(st.MagnetFiftyTouched || st.MagnetL2Touched) {
				continue
			}
			if !inCoreBand(st, req.EvalPrice) || dir == st.OriginDir {
				continue
			}
			if g.validateTrap(req.Zone, st, tf, book, true, false) {
				d := model.Decision{Allowed: true, Reason: fmt.Sprintf("%s Magnet Fade (Storyline Reversal)", ref)}
				g.target(&d, req, st.OriginID, st.OriginL1)
				return d
			}
		}
		return reject("Blocked: Fighting the Storyline without a Fortress")
	}

	target := model.W1
	if d1.Valid && d1.OriginDir == dir {
		target = model.D1
	}
	narrative := book.State(target)
	if narrative.Valid && narrative.OriginDir == dir {
		if narrative.SiegeActive && !bulldozing(req.Zone, narrative) {
			return reject("Siege Active on %s", target)
		}
		if g.validateTrap(req.Zone, narrative, tf, book, false, true) {
			d := model.Decision{Allowed: true, Reason: fmt.Sprintf("%s Inertial Flow (Liberated)", target)}
			g.target(&d, req, narrative.MagnetID, narrative.MagnetL1)
			return d
		}
	}

	// Discovery bridge: the senior origin is gone but its latch still agrees.
	if !d1.Valid && (w1Confluent || d1Confluent) {
		local := book.State(tf)
		if g.validateTrap(req.Zone, local, tf, book, false, true) {
			d := model.Decision{Allowed: true, Reason: fmt.Sprintf("Discovery Flow (%s Command)", tf)}
			g.target(&d, req, local.MagnetID, local.MagnetL1)
			return d
		}
	}

	return reject("No Strategy Alignment")
}

// validateTrap checks a candidate zone against one narrative. Faders must
// oppose the narrative origin, everything else must match it. Liberated
// validation skips the strict origin/outpost nesting.
func (g *Gatekeeper) validateTrap(z *model.Zone, st *model.FlowState, tf model.Timeframe, book model.FlowBook, fader, liberated bool) bool {
	if fader == (z.Direction == st.OriginDir) {
		return false
	}

	// Freshness: the trap must form after the structure it reacts to.
	var baseline time.Time
	if fader {
		baseline = st.MagnetTouchTime
	} else {
		baseline = st.OriginTouchTime
		if st.HasOutpost() {
			if st.OutpostTouchTime.IsZero() {
				return false
			}
			baseline = st.OutpostTouchTime
		}
	}
	if !z.CreatedTime.After(baseline) {
		return false
	}

	if st.RoadblockID != "" && (!liberated || !bulldozing(z, st)) {
		return false
	}

	// Intraday timeframes follow the D1 latch, and the W1 latch too unless liberated.
	if tf.Rank() >= model.H4.Rank() {
		if l := book.State(model.D1).LatchDir; l != model.DirNone && z.Direction != l {
			return false
		}
		if !liberated {
			if l := book.State(model.W1).LatchDir; l != model.DirNone && z.Direction != l {
				return false
			}
		}
	}

	if liberated {
		if (st.MagnetFiftyTouched || st.MagnetL2Touched) && !st.SiegeActive && !bulldozing(z, st) {
			return false
		}
		return true
	}

	if nestedBehind(z, st.OriginL1) {
		return true
	}
	return st.HasOutpost() && st.AnchorTraded && nestedBehind(z, st.OutpostL1)
}

// target attaches a take-profit when the level lies in the profit direction
// from the entry tier.
func (g *Gatekeeper) target(d *model.Decision, req Request, id string, price float64) {
	if !g.Targets || id == "" || price <= 0 {
		return
	}
	entry := req.Zone.Level(req.Tier)
	if (req.Direction == model.Bullish && price > entry) || (req.Direction == model.Bearish && price < entry) {
		d.TargetID = id
		d.TargetPrice = price
	}
}

func confluent(st *model.FlowState, dir model.Direction) bool {
	return st.LatchDir == model.DirNone || st.LatchDir == dir
}

// inCoreBand reports whether price sits between the magnet's L2 and its midpoint.
func inCoreBand(st *model.FlowState, price float64) bool {
	lo, hi := st.MagnetL2, st.MagnetFifty()
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo <= price && price <= hi
}

// bulldozing reports whether the magnet's L2 has been touched and the
// candidate sits beyond it in the narrative direction.
func bulldozing(z *model.Zone, st *model.FlowState) bool {
	if !st.MagnetL2Touched {
		return false
	}
	switch st.OriginDir {
	case model.Bearish:
		return z.L2 < st.MagnetL2
	case model.Bullish:
		return z.L2 > st.MagnetL2
	}
	return false
}

// nestedBehind reports whether the zone's L1 sits at or behind ref in its
// own direction: below ref for BULLISH, above ref for BEARISH.
func nestedBehind(z *model.Zone, ref float64) bool {
	if z.Direction == model.Bullish {
		return z.L1 <= ref
	}
	return z.L1 >= ref
}
