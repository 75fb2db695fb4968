package hydrology

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// DayExceedance is the rounded percentage of members whose daily maximum
// exceeds each return-period threshold on one calendar day.
type DayExceedance struct {
	Day     time.Time
	Percent map[int]int
}

// HighFlowResult is the outcome of high-flow classification.
type HighFlowResult struct {
	Code      domain.AlertCode
	Triggered []int
	Days      []DayExceedance
}

// ClassifyHighFlow walks the calendar days from start to end. A return period
// triggers when, on any day, the share of perturbed members whose daily
// maximum exceeds its threshold reaches acceptancePct. Rows where any member
// is missing are skipped, as in AggregateEnsemble. The result is the code of
// the largest triggered return period, or R0.
func ClassifyHighFlow(ens domain.Ensemble, thresholds domain.ReturnPeriodThresholds, start, end time.Time, acceptancePct float64) (HighFlowResult, error) {
	members := ens.MemberCount()
	if members == 0 {
		return HighFlowResult{}, fmt.Errorf("classify %s: no ensemble members: %w", ens.ID, domain.ErrInsufficientData)
	}
	if err := thresholds.Validate(); err != nil {
		return HighFlowResult{}, fmt.Errorf("classify %s: %w", ens.ID, err)
	}
	periods := thresholds.Periods()

	result := HighFlowResult{Code: domain.AlertNone}
	triggered := make(map[int]bool, len(periods))
	for _, d := range calendarDays(start, end) {
		maxima := dailyMemberMaxima(ens, d)
		day := DayExceedance{Day: d, Percent: make(map[int]int, len(periods))}
		for _, t := range periods {
			count := 0
			for _, v := range maxima {
				if v > thresholds[t] {
					count++
				}
			}
			pct := int(math.Round(float64(count) * 100 / float64(members)))
			day.Percent[t] = pct
			if float64(pct) >= acceptancePct {
				triggered[t] = true
			}
		}
		result.Days = append(result.Days, day)
	}

	for _, t := range periods {
		if !triggered[t] {
			continue
		}
		code, err := domain.ReturnPeriodAlert(t)
		if err != nil {
			return HighFlowResult{}, fmt.Errorf("classify %s: %w", ens.ID, err)
		}
		result.Triggered = append(result.Triggered, t)
		result.Code = code
	}
	return result, nil
}

// dailyMemberMaxima returns each member's maximum over the complete rows of
// day d. A day without complete rows gives NaN, which never exceeds a threshold.
func dailyMemberMaxima(ens domain.Ensemble, d time.Time) []float64 {
	out := make([]float64, ens.MemberCount())
	for m := range out {
		out[m] = math.NaN()
	}
	for i, t := range ens.Times {
		if !domain.Day(t).Equal(d) || !completeRow(ens, i) {
			continue
		}
		for m, col := range ens.Members {
			if math.IsNaN(out[m]) || col[i] > out[m] {
				out[m] = col[i]
			}
		}
	}
	return out
}

// calendarDays lists the UTC days from start to end inclusive.
func calendarDays(start, end time.Time) []time.Time {
	if start.IsZero() || end.Before(start) {
		return nil
	}
	var out []time.Time
	for d := domain.Day(start); !d.After(domain.Day(end)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
