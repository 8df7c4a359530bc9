package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ZoneSentinel/internal/collector"
	"ZoneSentinel/internal/model"
)

var start = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func walkSeries(n int, seed int64) map[model.Timeframe][]model.OHLCV {
	h1 := collector.GenerateWalk(model.H1, start, 100, n, seed)
	return map[model.Timeframe][]model.OHLCV{
		model.W1: collector.Resample(h1, model.W1),
		model.D1: collector.Resample(h1, model.D1),
		model.H4: collector.Resample(h1, model.H4),
		model.H1: h1,
	}
}

// prefix keeps the driver bars before cut and the senior bars that closed
// no later than the last kept driver bar.
func prefix(series map[model.Timeframe][]model.OHLCV, driver model.Timeframe, cut int) map[model.Timeframe][]model.OHLCV {
	out := make(map[model.Timeframe][]model.OHLCV, len(series))
	out[driver] = series[driver][:cut]
	limit := driver.CloseTime(series[driver][cut-1].Time)
	for tf, bars := range series {
		if tf == driver {
			continue
		}
		var kept []model.OHLCV
		for _, b := range bars {
			if tf.CloseTime(b.Time).After(limit) {
				break
			}
			kept = append(kept, b)
		}
		out[tf] = kept
	}
	return out
}

func TestRunMissingDriver(t *testing.T) {
	e := New(DefaultConfig("TEST"), nil, nil)
	if _, err := e.Run(context.Background(), nil); !errors.Is(err, model.ErrNoData) {
		t.Fatalf("empty input err = %v, want ErrNoData", err)
	}

	cfg := DefaultConfig("TEST")
	cfg.Driver = model.H1
	series := walkSeries(100, 1)
	delete(series, model.H1)
	if _, err := New(cfg, nil, nil).Run(context.Background(), series); !errors.Is(err, model.ErrNoData) {
		t.Fatalf("missing driver err = %v, want ErrNoData", err)
	}
}

func TestRunMissingSeniorTimeframeIsNotFatal(t *testing.T) {
	series := walkSeries(300, 2)
	delete(series, model.W1)
	series[model.D1] = nil
	res, err := New(DefaultConfig("TEST"), nil, nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, z := range res.Zones {
		if z.Timeframe == model.W1 || z.Timeframe == model.D1 {
			t.Fatalf("zone from missing timeframe %s", z.Timeframe)
		}
	}
}

func TestRunAccounting(t *testing.T) {
	series := walkSeries(3000, 42)
	res, err := New(DefaultConfig("TEST"), nil, nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	bars := series[model.H1]

	if res.Driver != model.H1 || res.RunID == "" {
		t.Fatalf("driver=%s run=%q", res.Driver, res.RunID)
	}
	if len(res.Equity) != len(bars) {
		t.Fatalf("equity points = %d, want one per bar (%d)", len(res.Equity), len(bars))
	}
	for i, pt := range res.Equity {
		if !pt.Time.Equal(bars[i].Time) {
			t.Fatalf("equity point %d at %v, want %v", i, pt.Time, bars[i].Time)
		}
	}
	if res.Stats.Signals+res.Stats.Rejections == 0 {
		t.Fatal("no candidate reached the gatekeeper")
	}

	sum := decimal.NewFromFloat(DefaultInitialBalance)
	for _, ct := range res.Ledger {
		sum = sum.Add(ct.PnL)
	}
	if !sum.Equal(res.FinalBalance) {
		t.Fatalf("final balance %s, ledger sums to %s", res.FinalBalance, sum)
	}
	last := res.Equity[len(res.Equity)-1]
	if last.OpenPositions != 0 || last.Equity != res.FinalBalance.InexactFloat64() {
		t.Fatalf("last equity point %+v, balance %s", last, res.FinalBalance)
	}
	if res.Stats.Trades != len(res.Ledger) || res.Stats.ZonesFound != len(res.Zones) {
		t.Fatalf("stats = %+v", res.Stats)
	}
}

func TestRunNeverTradesBeforeZoneIsKnown(t *testing.T) {
	series := walkSeries(3000, 42)
	res, err := New(DefaultConfig("TEST"), nil, nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	byID := make(map[string]*model.Zone, len(res.Zones))
	for _, z := range res.Zones {
		byID[z.ID] = z
	}
	for _, ct := range res.Ledger {
		z := byID[ct.ZoneID]
		if z == nil {
			t.Fatalf("trade %d on unknown zone %s", ct.Ticket, ct.ZoneID)
		}
		if ct.OpenTime.Before(z.AvailableAt) {
			t.Fatalf("trade %d opened %v before zone available %v", ct.Ticket, ct.OpenTime, z.AvailableAt)
		}
		if ct.Direction != z.Direction {
			t.Fatalf("trade %d direction %s on %s zone", ct.Ticket, ct.Direction, z.Direction)
		}
	}
}

// Truncating the future must not change anything that happened before it.
func TestRunIsCausal(t *testing.T) {
	series := walkSeries(2400, 9)
	full, err := New(DefaultConfig("TEST"), nil, nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("full Run: %v", err)
	}

	for _, cut := range []int{800, 1500} {
		part, err := New(DefaultConfig("TEST"), nil, nil).Run(context.Background(), prefix(series, model.H1, cut))
		if err != nil {
			t.Fatalf("prefix %d Run: %v", cut, err)
		}
		if len(part.Equity) != cut {
			t.Fatalf("prefix %d: %d equity points", cut, len(part.Equity))
		}
		// The final prefix bar force-closes, so compare up to the one before.
		for i := 0; i < cut-1; i++ {
			if full.Equity[i] != part.Equity[i] {
				t.Fatalf("prefix %d diverges at bar %d: full %+v, prefix %+v", cut, i, full.Equity[i], part.Equity[i])
			}
		}
		lastClose := series[model.H1][cut-1].Time
		n := 0
		for _, ct := range full.Ledger {
			if ct.CloseTime.Before(lastClose) {
				n++
			}
		}
		for i := 0; i < n; i++ {
			if full.Ledger[i].ZoneID != part.Ledger[i].ZoneID || !full.Ledger[i].PnL.Equal(part.Ledger[i].PnL) {
				t.Fatalf("prefix %d: trade %d differs", cut, i)
			}
		}
	}
}

func TestRunTradingWindow(t *testing.T) {
	series := walkSeries(1200, 5)
	bars := series[model.H1]
	cfg := DefaultConfig("TEST")
	cfg.Start = bars[400].Time
	cfg.End = bars[999].Time

	res, err := New(cfg, nil, nil).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Equity) != 600 {
		t.Fatalf("equity points = %d, want 600", len(res.Equity))
	}
	if !res.Equity[0].Time.Equal(cfg.Start) {
		t.Fatalf("first point at %v", res.Equity[0].Time)
	}
	for _, ct := range res.Ledger {
		if ct.OpenTime.Before(cfg.Start) || ct.CloseTime.After(model.H1.CloseTime(cfg.End)) {
			t.Fatalf("trade outside window: %+v", ct)
		}
	}

	cfg.End = bars[0].Time.Add(-time.Hour)
	if _, err := New(cfg, nil, nil).Run(context.Background(), series); !errors.Is(err, model.ErrNoData) {
		t.Fatalf("window before data err = %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(DefaultConfig("TEST"), nil, nil).Run(ctx, walkSeries(50, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSummarize(t *testing.T) {
	ledger := []model.ClosedTrade{
		{PnL: decimal.NewFromInt(300)},
		{PnL: decimal.NewFromInt(-100)},
		{PnL: decimal.NewFromInt(-50)},
		{PnL: decimal.Zero},
	}
	equity := []model.EquityPoint{{Equity: 10300}, {Equity: 10150}, {Equity: 10150}}
	st := Summarize(ledger, equity, 10000)

	if st.Trades != 4 || st.Wins != 1 || st.Losses != 2 {
		t.Fatalf("counts = %+v", st)
	}
	if st.WinRate != 0.25 || st.GrossProfit != 300 || st.GrossLoss != 150 || st.ProfitFactor != 2 {
		t.Fatalf("ratios = %+v", st)
	}
	if st.NetProfit != 150 || st.ReturnPct != 1.5 {
		t.Fatalf("net = %v return = %v", st.NetProfit, st.ReturnPct)
	}
	want := 150.0 / 10300
	if st.MaxDrawdown != want {
		t.Fatalf("max drawdown = %v, want %v", st.MaxDrawdown, want)
	}

	if empty := Summarize(nil, nil, 10000); empty.ProfitFactor != 0 || empty.WinRate != 0 {
		t.Fatalf("empty = %+v", empty)
	}
}
