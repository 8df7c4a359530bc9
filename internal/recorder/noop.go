package recorder

import "ZoneSentinel/internal/engine"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *engine.Result) error { return nil }
func (n *NoopRecorder) Recent(_ int) ([]RunSummary, error) { return nil, nil }
func (n *NoopRecorder) Close() error { return nil }
