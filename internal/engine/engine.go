// Package engine drives a single forward pass over historical bars: zones are
// detected offline per timeframe, admitted once their confirmation bar has
// closed, and every component then sees the driver bars strictly in order.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ZoneSentinel/internal/calculator"
	"ZoneSentinel/internal/detector"
	"ZoneSentinel/internal/flow"
	"ZoneSentinel/internal/lifecycle"
	"ZoneSentinel/internal/metrics"
	"ZoneSentinel/internal/model"
	"ZoneSentinel/internal/risk"
	"ZoneSentinel/internal/strategy"
	"ZoneSentinel/internal/trade"
)

const (
	DefaultInitialBalance = 10000.0
	DefaultMaxZoneAge     = 5000
)

// Config parameterizes one run.
type Config struct {
	Symbol string
	// Driver is the timeframe whose bars advance the simulation. Empty
	// selects the most junior timeframe present in the data.
	Driver model.Timeframe
	// Start and End bound the traded window. Driver bars before Start warm
	// up zones and flow state without trading.
	Start time.Time
	End   time.Time

	InitialBalance float64
	SwingWindow    int
	MaxZoneAge     int
	Proximity      float64
	RiskFraction   float64
	MaxOpen        int
	Symbols        map[string]risk.SymbolParams
	TierPolicy     strategy.TierPolicy
	TemporalMute   bool
	DisableTargets bool
	// HeartbeatBars logs the flow narrative every n driver bars; 0 disables.
	HeartbeatBars int
}

// DefaultConfig returns the baseline run parameters for symbol.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:         symbol,
		InitialBalance: DefaultInitialBalance,
		SwingWindow:    1,
		MaxZoneAge:     DefaultMaxZoneAge,
		Proximity:      strategy.DefaultProximity,
		RiskFraction:   risk.DefaultRiskFraction,
		MaxOpen:        risk.DefaultMaxOpen,
	}
}

// Result is everything a finished run produced.
type Result struct {
	RunID        string
	Symbol       string
	Driver       model.Timeframe
	StartedAt    time.Time
	Duration     time.Duration
	Ledger       []model.ClosedTrade
	Equity       []model.EquityPoint
	Zones        []*model.Zone
	FinalBalance decimal.Decimal
	Stats        model.RunStats
}

// Engine runs backtests. Each Run builds fresh state, so one Engine may
// serve concurrent runs.
type Engine struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = DefaultInitialBalance
	}
	if cfg.SwingWindow < 1 {
		cfg.SwingWindow = 1
	}
	if cfg.MaxZoneAge <= 0 {
		cfg.MaxZoneAge = DefaultMaxZoneAge
	}
	if cfg.Proximity <= 0 {
		cfg.Proximity = strategy.DefaultProximity
	}
	if cfg.RiskFraction <= 0 {
		cfg.RiskFraction = risk.DefaultRiskFraction
	}
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = risk.DefaultMaxOpen
	}
	return &Engine{cfg: cfg, logger: logger, metrics: m}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// run is the mutable state of one pass.
type run struct {
	cfg    Config
	id     string
	logger *zap.Logger
	m      *metrics.Metrics

	pending map[model.Timeframe][]*model.Zone
	cursor  map[model.Timeframe]int
	active  []*model.Zone
	dirty   bool

	machine  *flow.Machine
	governor *strategy.Governor
	scanner  *strategy.Scanner
	trades   *trade.Manager

	signals    int
	rejections int
}

// Run simulates series, keyed by timeframe. A missing or empty senior
// series only removes that timeframe from the narrative; a missing driver
// series fails the run.
func (e *Engine) Run(ctx context.Context, series map[model.Timeframe][]model.OHLCV) (*Result, error) {
	started := time.Now()
	res, err := e.run(ctx, series, started)
	e.metrics.ObserveRun(time.Since(started).Seconds(), err)
	return res, err
}

func (e *Engine) run(ctx context.Context, series map[model.Timeframe][]model.OHLCV, started time.Time) (*Result, error) {
	cfg := e.cfg
	driver := cfg.Driver
	if driver == "" {
		driver = juniorPresent(series)
		if driver == "" {
			return nil, fmt.Errorf("%s: %w", cfg.Symbol, model.ErrNoData)
		}
	}
	if driver.Rank() < 0 {
		return nil, fmt.Errorf("driver %q: %w", driver, model.ErrUnknownTimeframe)
	}
	bars := series[driver]
	if len(bars) == 0 {
		return nil, fmt.Errorf("driver %s %s: %w", cfg.Symbol, driver, model.ErrNoData)
	}

	r := &run{
		cfg:     cfg,
		id:      uuid.NewString(),
		logger:  e.logger,
		m:       e.metrics,
		pending: make(map[model.Timeframe][]*model.Zone),
		cursor:  make(map[model.Timeframe]int),
		machine: flow.NewMachine(e.logger),
	}
	r.logger = e.logger.With(zap.String("run", r.id), zap.String("symbol", cfg.Symbol))

	r.governor = strategy.NewGovernor()
	if cfg.TierPolicy != nil {
		r.governor.Policy = cfg.TierPolicy
	}
	r.governor.TemporalMute = cfg.TemporalMute
	gate := strategy.NewGatekeeper(cfg.Symbol, r.governor)
	gate.Targets = !cfg.DisableTargets
	r.scanner = strategy.NewScanner(cfg.Symbol, gate, r.logger)
	r.scanner.Proximity = cfg.Proximity
	r.trades = trade.NewManager(cfg.InitialBalance,
		risk.NewSizer(cfg.RiskFraction, cfg.Symbols),
		risk.ExposureGovernor{MaxOpen: cfg.MaxOpen},
		r.logger)

	zones := r.detect(series)

	r.logger.Info("backtest started",
		zap.String("driver", string(driver)),
		zap.Int("bars", len(bars)),
		zap.Int("zones", len(zones)),
		zap.Float64("balance", cfg.InitialBalance))

	last := lastTradedIndex(bars, cfg.End)
	if last < 0 {
		return nil, fmt.Errorf("driver %s %s ends before %s: %w", cfg.Symbol, driver, cfg.End.Format(time.RFC3339), model.ErrNoData)
	}
	for i := 0; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s cancelled at bar %d: %w", r.id, i, err)
		}
		if err := r.step(bars[i], driver, i == last); err != nil {
			return nil, fmt.Errorf("run %s bar %s: %w", r.id, bars[i].Time.Format(time.RFC3339), err)
		}
		if cfg.HeartbeatBars > 0 && (i+1)%cfg.HeartbeatBars == 0 {
			r.heartbeat(bars[:i+1])
		}
	}

	res := &Result{
		RunID:        r.id,
		Symbol:       cfg.Symbol,
		Driver:       driver,
		StartedAt:    started,
		Duration:     time.Since(started),
		Ledger:       r.trades.Ledger(),
		Equity:       r.trades.Equity(),
		Zones:        zones,
		FinalBalance: r.trades.BalanceDecimal(),
	}
	res.Stats = Summarize(res.Ledger, res.Equity, cfg.InitialBalance)
	res.Stats.ZonesFound = len(zones)
	res.Stats.Signals = r.signals
	res.Stats.Rejections = r.rejections

	r.logger.Info("backtest finished",
		zap.Int("trades", res.Stats.Trades),
		zap.Float64("win_rate", res.Stats.WinRate),
		zap.String("balance", res.FinalBalance.StringFixed(2)),
		zap.Float64("max_dd", res.Stats.MaxDrawdown),
		zap.Duration("took", res.Duration))
	return res, nil
}

// detect runs the offline pass per timeframe and queues zones by the
// instant they become known.
func (r *run) detect(series map[model.Timeframe][]model.OHLCV) []*model.Zone {
	var all []*model.Zone
	for _, tf := range model.Hierarchy {
		bars, ok := series[tf]
		if !ok || len(bars) == 0 {
			r.logger.Warn("timeframe has no data, narrative skipped", zap.String("tf", string(tf)))
			continue
		}
		found := detector.NewDetector(tf, r.cfg.SwingWindow, r.logger).Detect(bars).Zones
		sort.SliceStable(found, func(i, j int) bool {
			return found[i].AvailableAt.Before(found[j].AvailableAt)
		})
		r.pending[tf] = found
		r.m.ObserveDetected(tf, len(found))
		all = append(all, found...)
		r.logger.Debug("zones detected", zap.String("tf", string(tf)), zap.Int("bars", len(bars)), zap.Int("zones", len(found)))
	}
	return all
}

// step processes one driver bar in the fixed causal order.
func (r *run) step(bar model.OHLCV, driver model.Timeframe, final bool) error {
	closeAt := driver.CloseTime(bar.Time)
	trading := r.cfg.Start.IsZero() || !bar.Time.Before(r.cfg.Start)

	if err := r.activate(closeAt); err != nil {
		return err
	}

	for _, z := range r.active {
		if tr := lifecycle.Advance(z, bar); tr.Invalidated {
			r.dirty = true
			r.logger.Debug("zone invalidated",
				zap.String("zone", z.ID),
				zap.String("tf", string(z.Timeframe)),
				zap.Time("at", bar.Time))
		}
	}

	r.prune()
	if r.dirty {
		detector.ResolveConfluence(r.active)
		r.dirty = false
	}

	for _, ch := range r.machine.Update(r.byTimeframe(), bar.Close, bar.Time) {
		r.governor.Cooldowns.Reset(r.cfg.Symbol, ch.Timeframe, ch.Direction)
		r.governor.Cooldowns.Reset(r.cfg.Symbol, ch.Timeframe, ch.Direction.Opposite())
	}

	if trading {
		r.scanAndExecute(bar)
	}

	for _, ct := range r.trades.Manage(bar) {
		r.closed(ct)
	}
	if final {
		for _, ct := range r.trades.ForceCloseAll(bar.Close, closeAt) {
			r.closed(ct)
		}
	}
	if trading {
		r.m.ObserveBar(r.trades.Snapshot(bar.Time, bar.Close))
	}
	return nil
}

// activate admits every zone whose confirmation bar closed at or before
// now. Geometry is rechecked here; a violation is a detector fault.
func (r *run) activate(now time.Time) error {
	for _, tf := range model.Hierarchy {
		queue := r.pending[tf]
		i := r.cursor[tf]
		for ; i < len(queue) && !queue[i].AvailableAt.After(now); i++ {
			z := queue[i]
			if err := z.CheckGeometry(); err != nil {
				return fmt.Errorf("activate zone %s: %w", z.ID, err)
			}
			r.active = append(r.active, z)
			r.dirty = true
			r.m.ObserveActivated(tf)
		}
		r.cursor[tf] = i
	}
	return nil
}

// prune drops invalidated and expired zones from the working set. The
// zones themselves stay in the result.
func (r *run) prune() {
	kept := r.active[:0]
	for _, z := range r.active {
		if !z.Valid || z.AgeBars > r.cfg.MaxZoneAge {
			r.dirty = true
			continue
		}
		kept = append(kept, z)
	}
	for i := len(kept); i < len(r.active); i++ {
		r.active[i] = nil
	}
	r.active = kept
}

func (r *run) byTimeframe() map[model.Timeframe][]*model.Zone {
	out := make(map[model.Timeframe][]*model.Zone, len(model.Hierarchy))
	for _, z := range r.active {
		out[z.Timeframe] = append(out[z.Timeframe], z)
	}
	return out
}

func (r *run) scanAndExecute(bar model.OHLCV) {
	res := r.scanner.Scan(r.active, bar, r.machine, r.trades.IsOpen)
	for _, rej := range res.Rejections {
		r.rejections++
		r.m.ObserveRejection(rej.Timeframe)
	}
	for _, sig := range res.Signals {
		r.signals++
		r.m.ObserveSignal(sig.Timeframe, sig.Tier)
		pos, err := r.trades.Execute(sig)
		if err != nil {
			r.logger.Debug("signal not executed", zap.String("zone", sig.ZoneID), zap.Error(err))
			continue
		}
		r.logger.Info("trade opened",
			zap.Int("ticket", pos.Ticket),
			zap.String("tf", string(pos.Timeframe)),
			zap.String("tier", pos.Tier.String()),
			zap.String("dir", string(pos.Direction)),
			zap.Float64("entry", pos.EntryPrice),
			zap.Float64("stop", pos.StopPrice),
			zap.Float64("target", pos.Target),
			zap.String("reason", pos.Reason))
	}
}

// closed books a closed trade. A losing stop-out mutes its timeframe and
// direction until that timeframe adopts a new origin.
func (r *run) closed(ct model.ClosedTrade) {
	r.m.ObserveClosed(ct.ExitReason)
	if ct.ExitReason == model.ExitStopLoss && ct.PnL.IsNegative() {
		r.governor.Cooldowns.ReportFailure(r.cfg.Symbol, ct.Timeframe, ct.Direction)
	}
	r.logger.Info("trade closed",
		zap.Int("ticket", ct.Ticket),
		zap.String("reason", string(ct.ExitReason)),
		zap.Float64("exit", ct.ExitPrice),
		zap.String("pnl", ct.PnL.StringFixed(2)))
}

func (r *run) heartbeat(seen []model.OHLCV) {
	bar := seen[len(seen)-1]
	fields := []zap.Field{
		zap.Time("at", bar.Time),
		zap.Float64("close", bar.Close),
		zap.Int("active", len(r.active)),
		zap.Int("open", r.trades.OpenCount()),
		zap.Float64("balance", r.trades.Balance()),
	}
	if atr, err := calculator.CalculateATR(seen, detector.DefaultATRPeriod); err == nil {
		fields = append(fields, zap.Float64("atr", atr))
	}
	if hi, lo, err := calculator.PriceRange(seen, r.cfg.HeartbeatBars); err == nil {
		fields = append(fields, zap.Float64("range_high", hi), zap.Float64("range_low", lo))
	}
	for _, tf := range model.Hierarchy {
		st := r.machine.State(tf)
		fields = append(fields, zap.String(string(tf),
			fmt.Sprintf("latch=%s origin=%s magnet=%s", dirOrDash(st.LatchDir), idOrDash(st.OriginID), idOrDash(st.MagnetID))))
	}
	r.logger.Info("heartbeat", fields...)
}

func dirOrDash(d model.Direction) string {
	if d == model.DirNone {
		return "-"
	}
	return string(d)
}

func idOrDash(id string) string {
	if id == "" {
		return "-"
	}
	return id
}

// juniorPresent returns the most junior timeframe with bars.
func juniorPresent(series map[model.Timeframe][]model.OHLCV) model.Timeframe {
	for i := len(model.Hierarchy) - 1; i >= 0; i-- {
		if len(series[model.Hierarchy[i]]) > 0 {
			return model.Hierarchy[i]
		}
	}
	return ""
}

// lastTradedIndex returns the index of the last bar at or before end.
func lastTradedIndex(bars []model.OHLCV, end time.Time) int {
	if end.IsZero() {
		return len(bars) - 1
	}
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(end) })
	return i - 1
}
