package strategy

import (
	"fmt"

	"ZoneSentinel/internal/model"
)

// TierPolicy maps a timeframe to the touch tiers it may trade. Timeframes
// missing from the policy allow every tier.
type TierPolicy map[model.Timeframe][]model.Tier

// DefaultTierPolicy requires deeper touches as the timeframe gets more junior.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		model.H4:  {model.T1, model.T2, model.T3},
		model.H1:  {model.T2, model.T3},
		model.M30: {model.T3},
	}
}

// DefaultGasketMultiple caps entry distance from L1 at this many zone depths.
const DefaultGasketMultiple = 3.0

type cooldownKey struct {
	symbol string
	tf     model.Timeframe
	dir    model.Direction
}

// CooldownRegistry mutes a symbol/timeframe/direction after a losing trade
// until a new origin forms on that timeframe. One registry belongs to one
// run and is not safe for concurrent use.
type CooldownRegistry struct {
	blocks map[cooldownKey]bool
}

// NewCooldownRegistry returns an empty registry.
func NewCooldownRegistry() *CooldownRegistry {
	return &CooldownRegistry{blocks: make(map[cooldownKey]bool)}
}

// ReportFailure blocks the key.
func (r *CooldownRegistry) ReportFailure(symbol string, tf model.Timeframe, dir model.Direction) {
	r.blocks[cooldownKey{symbol, tf, dir}] = true
}

// Reset lifts the block on the key.
func (r *CooldownRegistry) Reset(symbol string, tf model.Timeframe, dir model.Direction) {
	delete(r.blocks, cooldownKey{symbol, tf, dir})
}

// Blocked reports whether the key is muted.
func (r *CooldownRegistry) Blocked(symbol string, tf model.Timeframe, dir model.Direction) bool {
	return r.blocks[cooldownKey{symbol, tf, dir}]
}

// Len returns the number of active blocks.
func (r *CooldownRegistry) Len() int { return len(r.blocks) }

// Governor applies the efficiency filters that run before any narrative
// check: tier gating, the optional temporal mute, and the spatial gasket.
type Governor struct {
	Policy         TierPolicy
	GasketMultiple float64
	TemporalMute   bool
	Cooldowns      *CooldownRegistry
}

// NewGovernor returns a governor with the default policy and a fresh
// cooldown registry. The temporal mute starts disabled.
func NewGovernor() *Governor {
	return &Governor{
		Policy:         DefaultTierPolicy(),
		GasketMultiple: DefaultGasketMultiple,
		Cooldowns:      NewCooldownRegistry(),
	}
}

// TierAllowed reports whether tf may trade a touch of tier.
func (g *Governor) TierAllowed(tf model.Timeframe, tier model.Tier) bool {
	allowed, ok := g.Policy[tf]
	if !ok {
		return true
	}
	for _, t := range allowed {
		if t == tier {
			return true
		}
	}
	return false
}

// TemporallyClean reports whether the cooldown registry leaves the key open.
// It always passes while the mute is disabled.
func (g *Governor) TemporallyClean(symbol string, tf model.Timeframe, dir model.Direction) bool {
	if !g.TemporalMute || g.Cooldowns == nil {
		return true
	}
	return !g.Cooldowns.Blocked(symbol, tf, dir)
}

// SpatiallyEfficient rejects entries farther than GasketMultiple depths
// from L1. Zero-depth zones always pass.
func (g *Governor) SpatiallyEfficient(price float64, z *model.Zone) (bool, string) {
	depth := z.Depth()
	if depth <= 0 {
		return true, ""
	}
	dist := price - z.L1
	if dist < 0 {
		dist = -dist
	}
	if dist > g.GasketMultiple*depth {
		return false, fmt.Sprintf("Structural Gasket: Elasticity Exhausted (%.1fx Depth)", dist/depth)
	}
	return true, ""
}
