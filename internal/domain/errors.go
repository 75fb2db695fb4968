package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable means a series could not be retrieved, or came back empty.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrAlignment means simulated and observed history share no dates.
	ErrAlignment = errors.New("no overlapping dates between simulated and observed series")
	// ErrInsufficientData means a statistic had too little data to be meaningful.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrFit means the low-flow sample was degenerate.
	ErrFit = errors.New("low-flow distribution fit failed")
)

// Stage names the evaluation step where a station failed.
type Stage string

const (
	StageFetch          Stage = "fetch"
	StageAlign          Stage = "align"
	StageBiasCorrection Stage = "bias_correction"
	StageReturnPeriods  Stage = "return_periods"
	StageLowFlowFit     Stage = "low_flow_fit"
	StageAggregate      Stage = "aggregate"
	StageHighFlow       Stage = "high_flow"
)

// StationError tags a failure with the station and stage it came from.
type StationError struct {
	Station string
	Stage   Stage
	Err     error
}

func (e *StationError) Error() string {
	return fmt.Sprintf("station %s: %s: %v", e.Station, e.Stage, e.Err)
}

func (e *StationError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or "unknown".
func StageOf(err error) Stage {
	var se *StationError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "unknown"
}
