package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// AlertCode is the categorical outcome of one station evaluation.
type AlertCode string

const (
	AlertNone   AlertCode = "R0"
	AlertR2     AlertCode = "R2"
	AlertR5     AlertCode = "R5"
	AlertR10    AlertCode = "R10"
	AlertR25    AlertCode = "R25"
	AlertR50    AlertCode = "R50"
	AlertR100   AlertCode = "R100"
	AlertLower1 AlertCode = "lower_1"
	AlertLower3 AlertCode = "lower_3"
	AlertLower7 AlertCode = "lower_7"
)

// Family groups alert codes that share a severity scale.
type Family string

const (
	FamilyNeutral Family = "neutral"
	FamilyHigh    Family = "high"
	FamilyLow     Family = "low"
)

// StandardReturnPeriods lists the supported return periods in years, least severe first.
var StandardReturnPeriods = []int{2, 5, 10, 25, 50, 100}

var severity = map[AlertCode]int{
	AlertNone:   0,
	AlertR2:     1,
	AlertR5:     2,
	AlertR10:    3,
	AlertR25:    4,
	AlertR50:    5,
	AlertR100:   6,
	AlertLower1: 1,
	AlertLower3: 2,
	AlertLower7: 3,
}

// ParseAlertCode validates s against the closed set of alert codes.
func ParseAlertCode(s string) (AlertCode, error) {
	c := AlertCode(s)
	if _, ok := severity[c]; !ok {
		return "", fmt.Errorf("unknown alert code %q", s)
	}
	return c, nil
}

// ReturnPeriodAlert returns the high-flow code for return period years.
func ReturnPeriodAlert(years int) (AlertCode, error) {
	return ParseAlertCode("R" + strconv.Itoa(years))
}

// Family reports which severity scale the code belongs to.
func (c AlertCode) Family() Family {
	switch c {
	case AlertR2, AlertR5, AlertR10, AlertR25, AlertR50, AlertR100:
		return FamilyHigh
	case AlertLower1, AlertLower3, AlertLower7:
		return FamilyLow
	default:
		return FamilyNeutral
	}
}

// Severity orders codes within a family. R0 is 0 in both families.
func (c AlertCode) Severity() int { return severity[c] }

// ReturnPeriodThresholds maps a return period in years to its flow threshold.
type ReturnPeriodThresholds map[int]float64

// Periods returns the return periods in increasing order.
func (r ReturnPeriodThresholds) Periods() []int {
	out := make([]int, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// Validate checks that thresholds strictly increase with the return period.
func (r ReturnPeriodThresholds) Validate() error {
	if len(r) == 0 {
		return errors.New("no return periods")
	}
	periods := r.Periods()
	for i := 1; i < len(periods); i++ {
		if r[periods[i]] <= r[periods[i-1]] {
			return fmt.Errorf("threshold for %d years (%g) does not exceed %d years (%g)",
				periods[i], r[periods[i]], periods[i-1], r[periods[i-1]])
		}
	}
	return nil
}

// LowFlowBands holds the minimum number of low-flow days for each low-flow code.
type LowFlowBands struct {
	Lower1 int
	Lower3 int
	Lower7 int
}

// DefaultLowFlowBands maps [3,7) days to lower_1, [7,10) to lower_3, and 10+ to lower_7.
var DefaultLowFlowBands = LowFlowBands{Lower1: 3, Lower3: 7, Lower7: 10}

// Validate checks that the bands are positive and strictly increasing.
func (b LowFlowBands) Validate() error {
	if b.Lower1 <= 0 || b.Lower1 >= b.Lower3 || b.Lower3 >= b.Lower7 {
		return fmt.Errorf("low-flow bands must be positive and strictly increasing, got %d,%d,%d",
			b.Lower1, b.Lower3, b.Lower7)
	}
	return nil
}

// Code maps a count of low-flow days to an alert code.
func (b LowFlowBands) Code(days int) AlertCode {
	switch {
	case days >= b.Lower7:
		return AlertLower7
	case days >= b.Lower3:
		return AlertLower3
	case days >= b.Lower1:
		return AlertLower1
	default:
		return AlertNone
	}
}

// Station is one catalog entry: a gauge linked to a drainage reach, or a
// reach on its own when Code is empty.
type Station struct {
	Code    string
	ReachID int64
	Name    string
	Alert   AlertCode
}

// Gauged reports whether the station has observed data to bias-correct against.
func (s Station) Gauged() bool { return s.Code != "" }

// Key identifies the station in logs and messages.
func (s Station) Key() string {
	if s.Gauged() {
		return s.Code
	}
	return "reach-" + strconv.FormatInt(s.ReachID, 10)
}

// AlertRecord is the persisted and published outcome of one evaluation.
type AlertRecord struct {
	StationCode     string    `json:"station_code,omitempty"`
	ReachID         int64     `json:"reach_id"`
	Code            AlertCode `json:"alert_code"`
	Previous        AlertCode `json:"previous_code,omitempty"`
	LowFlowFallback bool      `json:"low_flow_fallback"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// Key identifies the record's station, matching Station.Key.
func (r AlertRecord) Key() string {
	return Station{Code: r.StationCode, ReachID: r.ReachID}.Key()
}
