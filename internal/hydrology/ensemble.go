package hydrology

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// EnsembleStats holds per-timestamp statistics across the perturbed members.
// All slices are aligned with Times. HighRes is NaN where the
// high-resolution member has no value.
type EnsembleStats struct {
	ID      string
	Times   []time.Time
	Min     []float64
	P25     []float64
	Median  []float64
	P75     []float64
	Max     []float64
	HighRes []float64
}

// Span returns the first and last timestamp of the statistics.
func (s EnsembleStats) Span() (start, end time.Time) {
	if len(s.Times) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Times[0], s.Times[len(s.Times)-1]
}

// MedianSeries returns the median as a time series.
func (s EnsembleStats) MedianSeries() domain.TimeSeries {
	out := domain.TimeSeries{ID: s.ID, Points: make([]domain.Point, len(s.Times))}
	for i, t := range s.Times {
		out.Points[i] = domain.Point{Time: t, Value: s.Median[i]}
	}
	return out
}

// AggregateEnsemble computes the 0/25/50/75/100th percentiles across the
// perturbed members for every timestamp where all of them have a value.
func AggregateEnsemble(ens domain.Ensemble) (EnsembleStats, error) {
	if ens.MemberCount() == 0 {
		return EnsembleStats{}, fmt.Errorf("aggregate %s: no ensemble members: %w", ens.ID, domain.ErrInsufficientData)
	}
	stats := EnsembleStats{ID: ens.ID}
	row := make([]float64, ens.MemberCount())

	for i, t := range ens.Times {
		if !completeRow(ens, i) {
			continue
		}
		for m, col := range ens.Members {
			row[m] = col[i]
		}
		sorted := sortedCopy(row)
		stats.Times = append(stats.Times, t)
		stats.Min = append(stats.Min, sorted[0])
		stats.P25 = append(stats.P25, quantile(sorted, 0.25))
		stats.Median = append(stats.Median, quantile(sorted, 0.5))
		stats.P75 = append(stats.P75, quantile(sorted, 0.75))
		stats.Max = append(stats.Max, sorted[len(sorted)-1])
		hr := math.NaN()
		if ens.HighRes != nil {
			hr = ens.HighRes[i]
		}
		stats.HighRes = append(stats.HighRes, hr)
	}
	if len(stats.Times) == 0 {
		return EnsembleStats{}, fmt.Errorf("aggregate %s: no timestamp has every member: %w", ens.ID, domain.ErrInsufficientData)
	}
	return stats, nil
}

// completeRow reports whether every perturbed member has a value at row i.
// Incomplete rows are left out of both the statistics and the exceedance count.
func completeRow(ens domain.Ensemble, i int) bool {
	for _, col := range ens.Members {
		if math.IsNaN(col[i]) {
			return false
		}
	}
	return true
}
