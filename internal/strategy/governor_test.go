package strategy

import (
	"testing"

	"ZoneSentinel/internal/model"
)

func TestGovernor_TierPolicyOverride(t *testing.T) {
	gov := NewGovernor()
	gov.Policy[model.D1] = []model.Tier{model.T3}
	if gov.TierAllowed(model.D1, model.T1) {
		t.Error("override should restrict D1 to T3")
	}
	if !gov.TierAllowed(model.D1, model.T3) {
		t.Error("D1 T3 should pass")
	}
	if !gov.TierAllowed(model.W1, model.T1) {
		t.Error("timeframes missing from the policy allow every tier")
	}
}

func TestCooldownRegistry_ScopedByKey(t *testing.T) {
	r := NewCooldownRegistry()
	r.ReportFailure("BTCUSDT", model.H1, model.Bullish)
	if !r.Blocked("BTCUSDT", model.H1, model.Bullish) {
		t.Fatal("expected block")
	}
	if r.Blocked("BTCUSDT", model.H1, model.Bearish) || r.Blocked("ETHUSDT", model.H1, model.Bullish) {
		t.Error("block leaked to another key")
	}
	other := NewCooldownRegistry()
	if other.Blocked("BTCUSDT", model.H1, model.Bullish) {
		t.Error("registries must not share state")
	}
	r.Reset("BTCUSDT", model.H1, model.Bullish)
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestGovernor_GasketBoundary(t *testing.T) {
	gov := NewGovernor()
	z := model.NewZone(model.H4, model.Bearish, 100, 110)
	if ok, _ := gov.SpatiallyEfficient(130, z); !ok {
		t.Error("exactly 3x depth is still efficient")
	}
	if ok, _ := gov.SpatiallyEfficient(69.9, z); ok {
		t.Error("beyond 3x depth must be rejected")
	}
	flat := model.NewZone(model.H4, model.Bearish, 100, 100)
	if ok, _ := gov.SpatiallyEfficient(1e6, flat); !ok {
		t.Error("zero-depth zones pass the gasket")
	}
}
