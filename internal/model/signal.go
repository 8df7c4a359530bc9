package model

import "time"

// TradeSignal is an authorized entry emitted by the scanner.
type TradeSignal struct {
	ZoneID        string
	Timeframe     Timeframe
	Symbol        string
	Direction     Direction
	Tier          Tier
	EntryPrice    float64
	StructureStop float64 // raw L2, no buffer
	TargetPrice   float64 // 0 means no take-profit
	TargetID      string
	Reason        string
	Time          time.Time
}

// Decision is the gatekeeper's verdict. A rejection is a normal outcome
// and carries its reason; it is never an error.
type Decision struct {
	Allowed     bool
	Reason      string
	TargetID    string
	TargetPrice float64
}
