package hydrology

import (
	"math"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// LowFlowResult is the outcome of low-flow classification.
type LowFlowResult struct {
	Code      domain.AlertCode
	DaysBelow int
	DailyMin  []domain.Point
}

// ClassifyLowFlow counts the calendar days whose minimum median flow is
// strictly below threshold and maps the count through bands.
func ClassifyLowFlow(median domain.TimeSeries, threshold float64, bands domain.LowFlowBands) LowFlowResult {
	mins := make(map[time.Time]float64)
	var order []time.Time
	for _, p := range median.Points {
		if math.IsNaN(p.Value) {
			continue
		}
		d := domain.Day(p.Time)
		cur, ok := mins[d]
		if !ok {
			order = append(order, d)
			mins[d] = p.Value
			continue
		}
		mins[d] = math.Min(cur, p.Value)
	}

	result := LowFlowResult{DailyMin: make([]domain.Point, 0, len(order))}
	for _, d := range order {
		result.DailyMin = append(result.DailyMin, domain.Point{Time: d, Value: mins[d]})
		if mins[d] < threshold {
			result.DaysBelow++
		}
	}
	result.Code = bands.Code(result.DaysBelow)
	return result
}
