package strategy

import (
	"testing"

	"ZoneSentinel/internal/model"
)

func touchedAt(z *model.Zone, tier model.Tier, h int) {
	for _, t := range model.Tiers {
		if t > tier {
			break
		}
		z.Touches[t] = model.Touch{Touched: true, Time: at(h)}
	}
}

func barAt(h int, low, high, close float64) model.OHLCV {
	return model.OHLCV{Time: at(h), Open: close, High: high, Low: low, Close: close}
}

func TestScan_EmitsSignalOncePerTier(t *testing.T) {
	s := NewScanner("BTCUSDT", NewGatekeeper("BTCUSDT", nil), nil)
	b := book{model.D1: bearishD1Narrative()}
	z := zoneAt(model.H4, model.Bearish, 100, 110, 5)
	touchedAt(z, model.T1, 6)
	bar := barAt(6, 97, 101, 99)

	res := s.Scan([]*model.Zone{z}, bar, b, nil)
	if len(res.Signals) != 1 {
		t.Fatalf("expected 1 signal, got %d (rejections %+v)", len(res.Signals), res.Rejections)
	}
	sig := res.Signals[0]
	if sig.EntryPrice != 100 || sig.StructureStop != 110 || sig.Tier != model.T1 {
		t.Errorf("unexpected signal %+v", sig)
	}
	if sig.Symbol != "BTCUSDT" || sig.Reason != "D1 Inertial Flow (Liberated)" || !sig.Time.Equal(bar.Time) {
		t.Errorf("unexpected signal metadata %+v", sig)
	}
	if !z.Traded[model.T1] {
		t.Error("authorized tier must be marked traded")
	}

	if res := s.Scan([]*model.Zone{z}, bar, b, nil); len(res.Signals) != 0 {
		t.Error("a traded tier must not fire twice")
	}
}

func TestScan_OnlyFreshTouches(t *testing.T) {
	s := NewScanner("BTCUSDT", NewGatekeeper("BTCUSDT", nil), nil)
	b := book{model.D1: bearishD1Narrative()}
	z := zoneAt(model.H4, model.Bearish, 100, 110, 5)
	touchedAt(z, model.T1, 6)

	res := s.Scan([]*model.Zone{z}, barAt(7, 97, 101, 99), b, nil)
	if len(res.Signals) != 0 || len(res.Rejections) != 0 {
		t.Errorf("touch on an earlier bar must be ignored, got %+v", res)
	}
}

func TestScan_SkipsOpenAndDistantZones(t *testing.T) {
	s := NewScanner("BTCUSDT", NewGatekeeper("BTCUSDT", nil), nil)
	b := book{model.D1: bearishD1Narrative()}
	z := zoneAt(model.H4, model.Bearish, 100, 110, 5)
	touchedAt(z, model.T1, 6)

	open := func(id string) bool { return id == z.ID }
	if res := s.Scan([]*model.Zone{z}, barAt(6, 97, 101, 99), b, open); len(res.Signals) != 0 {
		t.Error("zone with an open position must be skipped")
	}
	if res := s.Scan([]*model.Zone{z}, barAt(6, 80, 90, 85), b, nil); len(res.Signals) != 0 {
		t.Error("bar far from the zone must be skipped")
	}
}

func TestScan_RejectionLeavesTierAvailable(t *testing.T) {
	s := NewScanner("BTCUSDT", NewGatekeeper("BTCUSDT", nil), nil)
	z := zoneAt(model.H1, model.Bearish, 100, 110, 5)
	touchedAt(z, model.T1, 6)

	res := s.Scan([]*model.Zone{z}, barAt(6, 97, 101, 99), book{}, nil)
	if len(res.Rejections) != 1 || res.Rejections[0].Reason != "Tier Gating Block: H1 T1 Restricted" {
		t.Fatalf("expected tier gating rejection, got %+v", res.Rejections)
	}
	if z.Traded[model.T1] {
		t.Error("rejected tier must stay untraded")
	}
}

func TestScan_OneSignalPerZonePerBar(t *testing.T) {
	s := NewScanner("BTCUSDT", NewGatekeeper("BTCUSDT", nil), nil)
	b := book{model.D1: bearishD1Narrative()}
	z := zoneAt(model.H4, model.Bearish, 100, 110, 5)
	touchedAt(z, model.T2, 6)

	res := s.Scan([]*model.Zone{z}, barAt(6, 99, 106, 104), b, nil)
	if len(res.Signals) != 1 || res.Signals[0].Tier != model.T1 {
		t.Fatalf("expected a single T1 signal, got %+v", res.Signals)
	}
	if z.Traded[model.T2] {
		t.Error("T2 stays available for a later bar")
	}
}
