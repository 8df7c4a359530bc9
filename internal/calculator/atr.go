package calculator

import (
	"errors"
	"math"

	"ZoneSentinel/internal/model"
)

// TrueRange returns the true range of bar given the previous close.
func TrueRange(bar model.OHLCV, prevClose float64) float64 {
	tr := bar.High - bar.Low
	tr = math.Max(tr, math.Abs(bar.High-prevClose))
	return math.Max(tr, math.Abs(bar.Low-prevClose))
}

// ATRSeries computes the Wilder-smoothed ATR for every bar. Entries before
// the first full period are 0. The value at index i only uses bars[0..i].
func ATRSeries(bars []model.OHLCV, period int) []float64 {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) < period+1 {
		return out
	}

	// Initial average over the first `period` true ranges
	var atr float64
	for i := 1; i <= period; i++ {
		atr += TrueRange(bars[i], bars[i-1].Close)
	}
	atr /= float64(period)
	out[period] = atr

	// Wilder smoothing for remaining bars
	for i := period + 1; i < len(bars); i++ {
		tr := TrueRange(bars[i], bars[i-1].Close)
		atr = (atr*float64(period-1) + tr) / float64(period)
		out[i] = atr
	}
	return out
}

// CalculateATR returns the ATR at the final bar.
func CalculateATR(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period+1 {
		return 0, errors.New("not enough data for ATR calculation")
	}
	series := ATRSeries(bars, period)
	return series[len(series)-1], nil
}
