package recorder

import (
	"time"

	"ZoneSentinel/internal/engine"
)

// RunSummary is one persisted run as listed by Recent.
type RunSummary struct {
	RunID        string
	Symbol       string
	Driver       string
	StartedAt    time.Time
	Trades       int
	WinRate      float64
	NetProfit    float64
	MaxDrawdown  float64
	FinalBalance string
}

// Recorder persists finished runs for later analysis.
type Recorder interface {
	RecordRun(res *engine.Result) error
	Recent(limit int) ([]RunSummary, error)
	Close() error
}
