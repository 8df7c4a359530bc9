// Package metrics exposes Prometheus instruments for backtest runs.
//
//   - zonesentinel_zones_detected_total{tf}       zones found by the offline pass
//   - zonesentinel_zones_activated_total{tf}      zones admitted to the active set
//   - zonesentinel_signals_total{tf,tier}         authorized signals
//   - zonesentinel_rejections_total{tf}           gatekeeper rejections
//   - zonesentinel_trades_closed_total{reason}    closed trades by exit reason
//   - zonesentinel_equity                         latest equity snapshot
//   - zonesentinel_open_positions                 open position count
//   - zonesentinel_bars_processed_total           driver bars simulated
//   - zonesentinel_runs_total{status}             finished runs (ok|error)
//   - zonesentinel_run_duration_seconds           wall time per run
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"ZoneSentinel/internal/model"
)

const namespace = "zonesentinel"

type Metrics struct {
	ZonesDetected  *prometheus.CounterVec
	ZonesActivated *prometheus.CounterVec
	Signals        *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	TradesClosed   *prometheus.CounterVec
	Equity         prometheus.Gauge
	OpenPositions  prometheus.Gauge
	BarsProcessed  prometheus.Counter
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
}

// New creates the instruments and registers them on reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ZonesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zones_detected_total",
			Help:      "Zones found by the offline detection pass.",
		}, []string{"tf"}),
		ZonesActivated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zones_activated_total",
			Help:      "Zones admitted into the active working set.",
		}, []string{"tf"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Authorized trade signals.",
		}, []string{"tf", "tier"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Candidates rejected by the gatekeeper.",
		}, []string{"tf"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_closed_total",
			Help:      "Closed trades split by exit reason.",
		}, []string{"reason"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "equity",
			Help:      "Latest marked-to-market equity.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Currently open simulated positions.",
		}),
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_processed_total",
			Help:      "Driver bars simulated.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished backtest runs by status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a backtest run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ZonesDetected, m.ZonesActivated, m.Signals, m.Rejections,
			m.TradesClosed, m.Equity, m.OpenPositions, m.BarsProcessed,
			m.Runs, m.RunDuration,
		)
	}
	return m
}

func (m *Metrics) ObserveDetected(tf model.Timeframe, n int) {
	if m == nil {
		return
	}
	m.ZonesDetected.WithLabelValues(string(tf)).Add(float64(n))
}

func (m *Metrics) ObserveActivated(tf model.Timeframe) {
	if m == nil {
		return
	}
	m.ZonesActivated.WithLabelValues(string(tf)).Inc()
}

func (m *Metrics) ObserveSignal(tf model.Timeframe, tier model.Tier) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(string(tf), tier.String()).Inc()
}

func (m *Metrics) ObserveRejection(tf model.Timeframe) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(string(tf)).Inc()
}

func (m *Metrics) ObserveClosed(reason model.ExitReason) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(string(reason)).Inc()
}

// ObserveBar records one simulated driver bar and its equity snapshot.
func (m *Metrics) ObserveBar(pt model.EquityPoint) {
	if m == nil {
		return
	}
	m.BarsProcessed.Inc()
	m.Equity.Set(pt.Equity)
	m.OpenPositions.Set(float64(pt.OpenPositions))
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
}
