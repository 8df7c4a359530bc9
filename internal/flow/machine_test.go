package flow

import (
	"testing"
	"time"

	"ZoneSentinel/internal/model"
)

var t0 = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

func mk(tf model.Timeframe, dir model.Direction, l1, l2 float64, id string, created int) *model.Zone {
	z := model.NewZone(tf, dir, l1, l2)
	z.ID = id
	z.CreatedTime = at(created)
	return z
}

func touch(z *model.Zone, tier model.Tier, h int) {
	for _, t := range model.Tiers {
		if t > tier {
			break
		}
		if !z.Touches[t].Touched {
			z.Touches[t] = model.Touch{Touched: true, Time: at(h)}
		}
	}
}

func TestOriginSearch_TouchedZone(t *testing.T) {
	o := mk(model.H4, model.Bearish, 100, 110, "o", 0)
	touch(o, model.T1, 1)
	untouched := mk(model.H4, model.Bearish, 90, 95, "later-untouched", 3)

	st := model.NewFlowState(model.H4)
	UpdateTimeframe(st, []*model.Zone{o, untouched}, 98)

	if !st.Valid || st.OriginID != "o" {
		t.Fatalf("expected origin o, got valid=%v id=%q", st.Valid, st.OriginID)
	}
	if st.LatchDir != model.Bearish || st.OriginDir != model.Bearish {
		t.Errorf("expected bearish latch and origin, got %s/%s", st.LatchDir, st.OriginDir)
	}
	if !st.OriginTouchTime.Equal(at(1)) {
		t.Errorf("expected origin touch time at hour 1, got %s", st.OriginTouchTime)
	}
}

func TestOriginSearch_InMediaRes(t *testing.T) {
	z := mk(model.D1, model.Bullish, 100, 90, "bull", 0)
	st := model.NewFlowState(model.D1)
	UpdateTimeframe(st, []*model.Zone{z}, 105)
	if st.OriginID != "bull" {
		t.Fatalf("expected in-media-res origin, got %q", st.OriginID)
	}
	if !st.OriginTouchTime.Equal(z.CreatedTime) {
		t.Error("untouched origin falls back to its creation time")
	}
}

func TestOriginSearch_NothingQualifies(t *testing.T) {
	z := mk(model.D1, model.Bullish, 100, 90, "bull", 0)
	st := model.NewFlowState(model.D1)
	st.LatchDir = model.Bearish
	UpdateTimeframe(st, []*model.Zone{z}, 99.5)
	if st.Valid || st.OriginID != "" {
		t.Fatalf("expected no origin, got %q", st.OriginID)
	}
	if st.LatchDir != model.Bearish {
		t.Error("latch must survive a failed search")
	}
}

func TestStickyOriginAndOutpost(t *testing.T) {
	o := mk(model.H4, model.Bearish, 100, 110, "o", 0)
	touch(o, model.T1, 1)
	st := model.NewFlowState(model.H4)
	UpdateTimeframe(st, []*model.Zone{o}, 98)

	n := mk(model.H4, model.Bearish, 97, 99, "n", 5)
	touch(n, model.T1, 6)
	zones := []*model.Zone{o, n}
	UpdateTimeframe(st, zones, 96)

	if st.OriginID != "o" {
		t.Fatalf("sticky origin replaced by %q", st.OriginID)
	}
	if st.OutpostID != "n" || st.OutpostL1 != 97 || !st.OutpostTouchTime.Equal(at(6)) {
		t.Errorf("expected outpost n touched at hour 6, got %q %f %s", st.OutpostID, st.OutpostL1, st.OutpostTouchTime)
	}
	if !st.AnchorTraded {
		t.Error("touched outpost should mark the anchor traded")
	}

	// Price beyond the origin's L2 breaks it.
	UpdateTimeframe(st, zones, 111)
	if st.OriginID == "o" {
		t.Error("broken origin must not be retained")
	}
}

func TestMagnetSelection(t *testing.T) {
	o := mk(model.H4, model.Bearish, 100, 110, "o", 0)
	touch(o, model.T1, 1)
	far := mk(model.H4, model.Bullish, 80, 70, "far", 0)
	near := mk(model.H4, model.Bullish, 90, 85, "near", 0)
	behind := mk(model.H4, model.Bullish, 99, 95, "behind", 0)

	st := model.NewFlowState(model.H4)
	UpdateTimeframe(st, []*model.Zone{o, far, near, behind}, 97)

	if st.MagnetID != "near" {
		t.Fatalf("expected nearest magnet ahead of price, got %q", st.MagnetID)
	}
	if st.MagnetExtreme {
		t.Error("a deeper bullish zone exists, magnet is not extreme")
	}
	if st.MagnetFifty() != 87.5 {
		t.Errorf("expected magnet fifty 87.5, got %f", st.MagnetFifty())
	}
}

func TestSiege(t *testing.T) {
	tests := []struct {
		name        string
		magnetTouch int
		outpostTime int
		want        bool
	}{
		{"outpost retested after magnet", 3, 4, true},
		{"outpost touched before magnet", 4, 3, false},
	}
	for _, tt := range tests {
		o := mk(model.H1, model.Bearish, 100, 110, "o", 0)
		touch(o, model.T1, 1)
		n := mk(model.H1, model.Bearish, 97, 99, "n", 2)
		touch(n, model.T1, tt.outpostTime)
		m := mk(model.H1, model.Bullish, 90, 85, "m", 0)
		touch(m, model.T1, tt.magnetTouch)

		st := model.NewFlowState(model.H1)
		UpdateTimeframe(st, []*model.Zone{o, m}, 96)
		UpdateTimeframe(st, []*model.Zone{o, n, m}, 96)
		if st.OriginID != "o" || st.OutpostID != "n" {
			t.Fatalf("%s: setup expected origin o outpost n, got %q %q", tt.name, st.OriginID, st.OutpostID)
		}
		if st.SiegeActive != tt.want {
			t.Errorf("%s: expected siege=%v, got %v", tt.name, tt.want, st.SiegeActive)
		}
	}
}

func TestSuccessorPromotion(t *testing.T) {
	o := mk(model.H4, model.Bearish, 100, 110, "o", 0)
	touch(o, model.T1, 1)
	n := mk(model.H4, model.Bearish, 97, 99, "n", 5)
	m := mk(model.H4, model.Bullish, 90, 85, "m", 0)
	zones := []*model.Zone{o, n, m}

	st := model.NewFlowState(model.H4)
	UpdateTimeframe(st, []*model.Zone{o, m}, 96)
	if st.OriginID != "o" || st.MagnetID != "m" {
		t.Fatalf("setup: expected origin o magnet m, got %q %q", st.OriginID, st.MagnetID)
	}

	touch(m, model.T3, 7)
	if !UpdateTimeframe(st, zones, 96) {
		t.Fatal("expected successor promotion")
	}
	if st.OriginID != "n" || st.OriginL1 != 97 {
		t.Errorf("expected successor n, got %q", st.OriginID)
	}
	if st.MagnetID != "" || st.SiegeActive {
		t.Error("magnet and siege must clear on promotion")
	}
}

func TestSuccessorMissingResetsKeepingLatch(t *testing.T) {
	o := mk(model.H4, model.Bullish, 100, 90, "o", 0)
	touch(o, model.T1, 1)
	m := mk(model.H4, model.Bearish, 120, 130, "m", 0)
	zones := []*model.Zone{o, m}

	st := model.NewFlowState(model.H4)
	UpdateTimeframe(st, zones, 105)
	touch(m, model.T3, 4)
	UpdateTimeframe(st, zones, 105)

	if st.Valid || st.OriginID != "" {
		t.Fatalf("expected reset, got origin %q", st.OriginID)
	}
	if st.LatchDir != model.Bullish {
		t.Errorf("latch must survive reset, got %q", st.LatchDir)
	}
}

func TestMachine_RoadblockFromSeniorOnly(t *testing.T) {
	o := mk(model.H4, model.Bearish, 100, 110, "o", 0)
	touch(o, model.T1, 1)
	senior := mk(model.W1, model.Bullish, 120, 90, "w1", 0)
	junior := mk(model.H1, model.Bullish, 99, 95, "h1", 0)

	m := NewMachine(nil)
	byTF := map[model.Timeframe][]*model.Zone{
		model.W1: {senior},
		model.H4: {o},
		model.H1: {junior},
	}
	changes := m.Update(byTF, 97, at(2))

	if got := m.State(model.H4).RoadblockID; got != "w1" {
		t.Fatalf("expected W1 roadblock on H4, got %q", got)
	}
	if len(changes) == 0 || changes[0].Timeframe != model.H4 || changes[0].OriginID != "o" {
		t.Errorf("expected H4 origin change, got %+v", changes)
	}
	if got := m.State(model.W1).RoadblockID; got != "" {
		t.Errorf("W1 has no narrative, expected no roadblock, got %q", got)
	}

	touch(senior, model.T3, 3)
	m.Update(byTF, 97, at(3))
	if got := m.State(model.H4).RoadblockID; got != "" {
		t.Errorf("pierced senior zone must not block, got %q", got)
	}
}

func TestFindRoadblock_SiegeExemption(t *testing.T) {
	senior := mk(model.D1, model.Bullish, 120, 90, "d1", 0)
	all := []*model.Zone{senior}
	if got := FindRoadblock(model.H1, model.Bearish, 100, all, ""); got != "d1" {
		t.Fatalf("expected d1 roadblock, got %q", got)
	}
	if got := FindRoadblock(model.H1, model.Bearish, 100, all, "d1"); got != "" {
		t.Errorf("zone under siege is exempt, got %q", got)
	}
	if got := FindRoadblock(model.MN1, model.Bearish, 100, all, ""); got != "" {
		t.Errorf("junior zones never block a senior timeframe, got %q", got)
	}
}
