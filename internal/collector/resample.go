package collector

import "ZoneSentinel/internal/model"

// Resample aggregates bars into tf buckets. Each output bar is stamped with
// its bucket start; the last bucket may be incomplete.
func Resample(bars []model.OHLCV, tf model.Timeframe) []model.OHLCV {
	if len(bars) == 0 {
		return nil
	}
	var out []model.OHLCV
	var cur model.OHLCV
	started := false

	for _, b := range bars {
		key := tf.BucketStart(b.Time)
		if !started || !key.Equal(cur.Time) {
			if started {
				out = append(out, cur)
			}
			cur = model.OHLCV{Time: key, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
			started = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	out = append(out, cur)
	for i := range out {
		out[i].Index = i
	}
	return out
}
