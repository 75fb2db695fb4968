// Package hydrology implements the numeric core of alert classification:
// series alignment, quantile-mapping bias correction, return-period and
// low-flow threshold estimation, ensemble statistics, and the high- and
// low-flow classifiers.
//
// Every function is pure. Inputs are expected to be normalized
// (see domain.TimeSeries.Normalize).
package hydrology

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// Align restricts sim and obs to the calendar days present in both, dropping
// days where either side is missing. Both outputs carry the same day-truncated
// timestamps. When a series has several points on one day the last one wins.
func Align(sim, obs domain.TimeSeries) (domain.TimeSeries, domain.TimeSeries, error) {
	simByDay := byDay(sim)
	obsByDay := byDay(obs)

	days := make([]time.Time, 0, len(simByDay))
	for d := range simByDay {
		if _, ok := obsByDay[d]; ok {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return domain.TimeSeries{}, domain.TimeSeries{}, fmt.Errorf("align %s with %s: %w", sim.ID, obs.ID, domain.ErrAlignment)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	alignedSim := domain.TimeSeries{ID: sim.ID, Points: make([]domain.Point, len(days))}
	alignedObs := domain.TimeSeries{ID: obs.ID, Points: make([]domain.Point, len(days))}
	for i, d := range days {
		alignedSim.Points[i] = domain.Point{Time: d, Value: simByDay[d]}
		alignedObs.Points[i] = domain.Point{Time: d, Value: obsByDay[d]}
	}
	return alignedSim, alignedObs, nil
}

func byDay(s domain.TimeSeries) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(s.Points))
	for _, p := range s.Points {
		d := domain.Day(p.Time)
		if math.IsNaN(p.Value) {
			delete(out, d)
			continue
		}
		out[d] = p.Value
	}
	return out
}
