package model

import "time"

// FlowState is the persistent narrative of one timeframe.
type FlowState struct {
	Timeframe Timeframe
	Valid     bool

	OriginID        string
	OriginDir       Direction
	OriginL1        float64
	OriginL2        float64
	OriginCreated   time.Time
	OriginTouchTime time.Time

	OutpostID        string
	OutpostL1        float64
	OutpostTouchTime time.Time // zero while the outpost is untouched
	AnchorTraded     bool

	MagnetID           string
	MagnetDir          Direction
	MagnetL1           float64
	MagnetL2           float64
	MagnetTouchTime    time.Time
	MagnetFiftyTouched bool
	MagnetL2Touched    bool
	MagnetExtreme      bool

	SiegeActive bool
	RoadblockID string

	// LatchDir is the last established storyline direction. Reset keeps it.
	LatchDir Direction

	UpdatedAt time.Time
}

// NewFlowState returns an empty state for tf.
func NewFlowState(tf Timeframe) *FlowState {
	return &FlowState{Timeframe: tf}
}

// Reset clears the narrative. The timeframe and LatchDir survive.
func (s *FlowState) Reset() {
	tf, latch := s.Timeframe, s.LatchDir
	*s = FlowState{Timeframe: tf, LatchDir: latch}
}

// ClearMagnet drops the magnet and any siege on it.
func (s *FlowState) ClearMagnet() {
	s.MagnetID = ""
	s.MagnetDir = DirNone
	s.MagnetL1 = 0
	s.MagnetL2 = 0
	s.MagnetTouchTime = time.Time{}
	s.MagnetFiftyTouched = false
	s.MagnetL2Touched = false
	s.MagnetExtreme = false
	s.SiegeActive = false
}

// MagnetFifty is the magnet's midpoint.
func (s *FlowState) MagnetFifty() float64 {
	return (s.MagnetL1 + s.MagnetL2) / 2
}

// HasOutpost reports whether an outpost is being tracked.
func (s *FlowState) HasOutpost() bool { return s.OutpostID != "" }

// FlowBook is a read-only view of every timeframe's flow state.
type FlowBook interface {
	State(tf Timeframe) *FlowState
}
