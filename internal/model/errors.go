package model

import "errors"

var (
	ErrUnknownTimeframe  = errors.New("unknown timeframe")
	ErrInvertedGeometry  = errors.New("zone geometry inverted for its direction")
	ErrZeroDepth         = errors.New("zone has zero depth")
	ErrBrokenMidpoint    = errors.New("zone midpoint is not the average of its barriers")
	ErrNoData            = errors.New("no bars available")
	ErrDuplicatePosition = errors.New("position already open for zone")
)
