package collector

import (
	"context"

	"ZoneSentinel/internal/model"
)

// Provider supplies historical bars per symbol and timeframe, oldest first.
type Provider interface {
	Bars(ctx context.Context, symbol string, tf model.Timeframe) ([]model.OHLCV, error)
	Name() string
}
