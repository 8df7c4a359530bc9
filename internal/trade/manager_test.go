package trade

import (
	"errors"
	"testing"
	"time"

	"ZoneSentinel/internal/model"
	"ZoneSentinel/internal/risk"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testManager(maxOpen int) *Manager {
	sizer := risk.NewSizer(0.01, map[string]risk.SymbolParams{
		"TEST": {BEActivation: 5, BELockIn: 1, TrailActivation: 10, TrailDistance: 3},
	})
	return NewManager(10000, sizer, risk.ExposureGovernor{MaxOpen: maxOpen}, nil)
}

func longSignal(zone string, target float64) model.TradeSignal {
	return model.TradeSignal{
		ZoneID:        zone,
		Timeframe:     model.H4,
		Symbol:        "TEST",
		Direction:     model.Bullish,
		Tier:          model.T1,
		EntryPrice:    100,
		StructureStop: 90,
		TargetPrice:   target,
		Time:          t0,
	}
}

func bar(h int, o, hi, lo, c float64) model.OHLCV {
	return model.OHLCV{Time: t0.Add(time.Duration(h) * time.Hour), Open: o, High: hi, Low: lo, Close: c}
}

func TestExecuteSizesFromRisk(t *testing.T) {
	m := testManager(10)
	pos, err := m.Execute(longSignal("z1", 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pos.StopPrice != 90 || pos.Size != 10 {
		t.Fatalf("stop=%v size=%v, want 90 and 10", pos.StopPrice, pos.Size)
	}
	if pos.Ticket != 1 || !m.IsOpen("z1") {
		t.Fatalf("ticket=%d open=%v", pos.Ticket, m.IsOpen("z1"))
	}
}

func TestExecuteRejections(t *testing.T) {
	m := testManager(1)
	if _, err := m.Execute(longSignal("z1", 0)); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := m.Execute(longSignal("z2", 0)); !errors.Is(err, ErrExposureCap) {
		t.Fatalf("err = %v, want ErrExposureCap", err)
	}

	m = testManager(5)
	if _, err := m.Execute(longSignal("z1", 0)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := m.Execute(longSignal("z1", 0)); !errors.Is(err, model.ErrDuplicatePosition) {
		t.Fatalf("err = %v, want ErrDuplicatePosition", err)
	}

	flat := longSignal("z3", 0)
	flat.StructureStop = 100
	if _, err := m.Execute(flat); !errors.Is(err, ErrZeroSize) {
		t.Fatalf("err = %v, want ErrZeroSize", err)
	}
	if m.OpenCount() != 1 {
		t.Fatalf("OpenCount = %d, want 1", m.OpenCount())
	}
}

func TestManageStopCheckedBeforeTarget(t *testing.T) {
	m := testManager(10)
	if _, err := m.Execute(longSignal("z1", 104)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Bar spans both stop and target.
	closed := m.Manage(bar(1, 100, 150, 89, 100))
	if len(closed) != 1 {
		t.Fatalf("closed %d trades, want 1", len(closed))
	}
	ct := closed[0]
	if ct.ExitReason != model.ExitStopLoss || ct.ExitPrice != 90 {
		t.Fatalf("exit = %s @ %v, want StopLoss @ 90", ct.ExitReason, ct.ExitPrice)
	}
	if got := m.Balance(); got != 9900 {
		t.Fatalf("balance = %v, want 9900", got)
	}
}

func TestManageTakeProfit(t *testing.T) {
	m := testManager(10)
	if _, err := m.Execute(longSignal("z1", 104)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	closed := m.Manage(bar(1, 100, 104.5, 99, 103))
	if len(closed) != 1 || closed[0].ExitReason != model.ExitTakeProfit {
		t.Fatalf("closed = %+v, want one TakeProfit", closed)
	}
	if m.Balance() != 10040 {
		t.Fatalf("balance = %v, want 10040", m.Balance())
	}
}

func TestBreakEvenMovesStop(t *testing.T) {
	m := testManager(10)
	if _, err := m.Execute(longSignal("z1", 0)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if closed := m.Manage(bar(1, 100, 107, 102, 106)); len(closed) != 0 {
		t.Fatalf("closed early: %+v", closed)
	}
	pos := m.Positions()[0]
	if !pos.BreakEven || pos.StopPrice != 101 {
		t.Fatalf("breakEven=%v stop=%v, want true and 101", pos.BreakEven, pos.StopPrice)
	}
	closed := m.Manage(bar(2, 104, 105, 100.5, 101))
	if len(closed) != 1 || closed[0].ExitPrice != 101 {
		t.Fatalf("closed = %+v, want stop at 101", closed)
	}
	if got := m.Balance(); got != 10010 {
		t.Fatalf("balance = %v, want 10010", got)
	}
}

func TestTrailingStopOnlyTightens(t *testing.T) {
	m := testManager(10)
	if _, err := m.Execute(longSignal("z1", 0)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	m.Manage(bar(1, 100, 116, 113, 115))
	if pos := m.Positions()[0]; !pos.Trailing || pos.StopPrice != 112 {
		t.Fatalf("trailing=%v stop=%v, want true and 112", pos.Trailing, pos.StopPrice)
	}
	m.Manage(bar(2, 115, 121, 118, 120))
	if pos := m.Positions()[0]; pos.StopPrice != 117 {
		t.Fatalf("stop = %v, want 117", pos.StopPrice)
	}
	// A pullback close must not loosen the stop.
	m.Manage(bar(3, 120, 120, 117.5, 118))
	if pos := m.Positions()[0]; pos.StopPrice != 117 {
		t.Fatalf("stop = %v after pullback, want 117", pos.StopPrice)
	}
	closed := m.Manage(bar(4, 118, 118, 116.5, 117))
	if len(closed) != 1 || closed[0].ExitPrice != 117 {
		t.Fatalf("closed = %+v, want trailing exit at 117", closed)
	}
	if got := m.Balance(); got != 10170 {
		t.Fatalf("balance = %v, want 10170", got)
	}
}

func TestForceCloseAllAndEquity(t *testing.T) {
	m := testManager(10)
	if _, err := m.Execute(longSignal("z1", 0)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	short := longSignal("z2", 0)
	short.Direction = model.Bearish
	short.StructureStop = 110
	if _, err := m.Execute(short); err != nil {
		t.Fatalf("Execute short: %v", err)
	}

	b := bar(1, 100, 103, 98, 102)
	m.Manage(b)
	pt := m.Snapshot(b.Time, b.Close)
	// long +20, short -20
	if pt.Equity != 10000 || pt.OpenPositions != 2 {
		t.Fatalf("equity point = %+v", pt)
	}

	last := bar(2, 102, 104, 101, 103)
	m.Manage(last)
	closed := m.ForceCloseAll(last.Close, last.Time)
	m.Snapshot(last.Time, last.Close)
	if len(closed) != 2 || m.OpenCount() != 0 {
		t.Fatalf("forced %d, open %d", len(closed), m.OpenCount())
	}
	for _, ct := range closed {
		if ct.ExitReason != model.ExitForcedClose || ct.ExitPrice != 103 {
			t.Fatalf("closed = %+v", ct)
		}
	}
	if len(m.Equity()) != 2 {
		t.Fatalf("equity points = %d, want one per bar", len(m.Equity()))
	}
	acct := m.Account()
	if acct.ClosedTrades != 2 || acct.Equity != acct.Balance {
		t.Fatalf("account = %+v", acct)
	}
}
