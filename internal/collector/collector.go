package collector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"ZoneSentinel/internal/model"
)

// MockProvider returns fixed data when set, otherwise a seeded random walk
// on Base that is resampled for senior timeframes.
type MockProvider struct {
	Base  model.Timeframe
	Count int
	Price float64
	Seed  int64
	Start time.Time
	Data  map[model.Timeframe][]model.OHLCV
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Bars(_ context.Context, _ string, tf model.Timeframe) ([]model.OHLCV, error) {
	if bars, ok := m.Data[tf]; ok {
		if len(bars) == 0 {
			return nil, fmt.Errorf("mock %s: %w", tf, model.ErrNoData)
		}
		return append([]model.OHLCV(nil), bars...), nil
	}
	if m.Count <= 0 || m.Base == "" {
		return nil, fmt.Errorf("mock %s: %w", tf, model.ErrNoData)
	}
	base := GenerateWalk(m.Base, m.start(), m.Price, m.Count, m.Seed)
	switch {
	case tf == m.Base:
		return base, nil
	case tf.SeniorTo(m.Base):
		return Resample(base, tf), nil
	}
	return nil, fmt.Errorf("mock %s finer than %s: %w", tf, m.Base, model.ErrNoData)
}

func (m *MockProvider) start() time.Time {
	if m.Start.IsZero() {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return m.Start
}

// GenerateWalk produces count bars of a multiplicative random walk. The same
// seed always yields the same series.
func GenerateWalk(tf model.Timeframe, start time.Time, price float64, count int, seed int64) []model.OHLCV {
	if price <= 0 {
		price = 100
	}
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.OHLCV, count)
	t := tf.BucketStart(start)
	last := price
	for i := 0; i < count; i++ {
		open := last
		cl := open * (1 + rng.NormFloat64()*0.004)
		hi := max(open, cl) * (1 + rng.Float64()*0.002)
		lo := min(open, cl) * (1 - rng.Float64()*0.002)
		bars[i] = model.OHLCV{
			Time:   t,
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  cl,
			Volume: 1000 + rng.Float64()*1000,
			Index:  i,
		}
		last = cl
		t = tf.CloseTime(t)
	}
	return bars
}

// Collector loads every requested timeframe for one symbol. Senior
// timeframes the provider lacks are derived from the driver series when
// Derive is set.
type Collector struct {
	Provider Provider
	Symbol   string
	Derive   bool
	logger   *zap.Logger
}

// NewCollector creates a collector with derivation enabled.
func NewCollector(p Provider, symbol string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{Provider: p, Symbol: symbol, Derive: true, logger: logger}
}

// Collect returns the series keyed by timeframe. Only a missing driver is
// an error; other gaps are logged and left out.
func (c *Collector) Collect(ctx context.Context, driver model.Timeframe, tfs []model.Timeframe) (map[model.Timeframe][]model.OHLCV, error) {
	base, err := c.Provider.Bars(ctx, c.Symbol, driver)
	if err != nil {
		return nil, fmt.Errorf("fetch driver %s %s: %w", c.Symbol, driver, err)
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("fetch driver %s %s: %w", c.Symbol, driver, model.ErrNoData)
	}

	out := map[model.Timeframe][]model.OHLCV{driver: base}
	for _, tf := range tfs {
		if tf == driver {
			continue
		}
		bars, err := c.Provider.Bars(ctx, c.Symbol, tf)
		if err != nil && !errors.Is(err, model.ErrNoData) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("fetch failed", zap.String("provider", c.Provider.Name()), zap.String("tf", string(tf)), zap.Error(err))
		}
		if len(bars) == 0 && c.Derive && tf.SeniorTo(driver) {
			bars = Resample(base, tf)
			c.logger.Info("derived timeframe from driver",
				zap.String("tf", string(tf)),
				zap.String("driver", string(driver)),
				zap.Int("bars", len(bars)))
		}
		if len(bars) == 0 {
			c.logger.Warn("timeframe unavailable", zap.String("symbol", c.Symbol), zap.String("tf", string(tf)))
			continue
		}
		out[tf] = bars
	}
	return out, nil
}
