package model

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe names one level of the bar hierarchy.
type Timeframe string

const (
	MN1 Timeframe = "MN1"
	W1  Timeframe = "W1"
	D1  Timeframe = "D1"
	H4  Timeframe = "H4"
	H1  Timeframe = "H1"
	M30 Timeframe = "M30"
)

// Hierarchy lists the timeframes from most senior to most junior.
// A timeframe's rank is its position in this slice.
var Hierarchy = []Timeframe{MN1, W1, D1, H4, H1, M30}

var durations = map[Timeframe]time.Duration{
	MN1: 30 * 24 * time.Hour,
	W1:  7 * 24 * time.Hour,
	D1:  24 * time.Hour,
	H4:  4 * time.Hour,
	H1:  time.Hour,
	M30: 30 * time.Minute,
}

// ParseTimeframe accepts the canonical names case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if tf.Rank() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// Rank returns 0 for MN1 through 5 for M30, or -1 for an unknown timeframe.
func (tf Timeframe) Rank() int {
	for i, h := range Hierarchy {
		if h == tf {
			return i
		}
	}
	return -1
}

// SeniorTo reports whether tf is a strictly higher (slower) timeframe than other.
func (tf Timeframe) SeniorTo(other Timeframe) bool {
	r, o := tf.Rank(), other.Rank()
	return r >= 0 && o >= 0 && r < o
}

// Duration is the nominal bar length. MN1 is approximated as 30 days;
// use CloseTime for calendar-exact bar ends.
func (tf Timeframe) Duration() time.Duration {
	return durations[tf]
}

// CloseTime returns the instant a bar opened at open is complete.
func (tf Timeframe) CloseTime(open time.Time) time.Time {
	if tf == MN1 {
		return open.AddDate(0, 1, 0)
	}
	return open.Add(tf.Duration())
}

// BucketStart truncates ts to the opening instant of the bar containing it.
// Weeks start on Monday and months on the first day, both in UTC.
func (tf Timeframe) BucketStart(ts time.Time) time.Time {
	ts = ts.UTC()
	switch tf {
	case MN1:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	case W1:
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case D1:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return ts.Truncate(tf.Duration())
	}
}
