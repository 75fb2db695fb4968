package hydrology

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// quantileMap maps values from the simulated distribution onto the observed
// one at the same empirical percentile.
type quantileMap struct {
	sim []float64
	obs []float64
}

func newQuantileMap(sim, obs []domain.Point) (quantileMap, error) {
	q := quantileMap{sim: sortedCopy(pointValues(sim)), obs: sortedCopy(pointValues(obs))}
	if len(q.sim) == 0 || len(q.obs) == 0 {
		return quantileMap{}, domain.ErrInsufficientData
	}
	return q, nil
}

func (q quantileMap) apply(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return quantile(q.obs, percentileOf(q.sim, v))
}

func (q quantileMap) bounds() (lo, hi float64) {
	return q.sim[0], q.sim[len(q.sim)-1]
}

// CorrectHistorical bias-corrects a simulated history month by month: each
// value is mapped through the simulated and observed distributions of its
// own calendar month. sim and obs are normally the outputs of Align.
func CorrectHistorical(sim, obs domain.TimeSeries) (domain.TimeSeries, error) {
	maps := make(map[time.Month]quantileMap, 12)
	for m := time.January; m <= time.December; m++ {
		simMonth := sim.Month(m)
		if len(simMonth) == 0 {
			continue
		}
		q, err := newQuantileMap(simMonth, obs.Month(m))
		if err != nil {
			return domain.TimeSeries{}, fmt.Errorf("correct %s for %s: %w", sim.ID, m, err)
		}
		maps[m] = q
	}

	out := domain.TimeSeries{ID: sim.ID, Points: make([]domain.Point, len(sim.Points))}
	for i, p := range sim.Points {
		out.Points[i] = domain.Point{Time: p.Time, Value: maps[p.Time.UTC().Month()].apply(p.Value)}
	}
	return out, nil
}

// CorrectForecast bias-corrects every ensemble column against the simulated
// and observed history of the month of the first forecast timestamp.
//
// Values outside [sim_min, sim_max] of that month are clamped for the mapping
// and the mapped value is then scaled by value/sim_min or value/sim_max, so
// extremes beyond the calibrated range keep their relative magnitude.
func CorrectForecast(ens domain.Ensemble, sim, obs domain.TimeSeries) (domain.Ensemble, error) {
	if ens.Len() == 0 {
		return domain.Ensemble{}, fmt.Errorf("correct forecast %s: empty ensemble: %w", ens.ID, domain.ErrInsufficientData)
	}
	month := ens.Times[0].UTC().Month()
	q, err := newQuantileMap(sim.Month(month), obs.Month(month))
	if err != nil {
		return domain.Ensemble{}, fmt.Errorf("correct forecast %s: calibration month %s: %w", ens.ID, month, err)
	}

	out := domain.Ensemble{
		ID:      ens.ID,
		Times:   append([]time.Time(nil), ens.Times...),
		Members: make([][]float64, len(ens.Members)),
	}
	for m, col := range ens.Members {
		out.Members[m] = correctColumn(q, col)
	}
	if ens.HighRes != nil {
		out.HighRes = correctColumn(q, ens.HighRes)
	}
	return out, nil
}

func correctColumn(q quantileMap, col []float64) []float64 {
	simMin, simMax := q.bounds()
	out := make([]float64, len(col))
	for i, v := range col {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		factor := 1.0
		switch {
		case v < simMin:
			if simMin != 0 {
				factor = v / simMin
			}
			v = simMin
		case v > simMax:
			if simMax != 0 {
				factor = v / simMax
			}
			v = simMax
		}
		out[i] = q.apply(v) * factor
	}
	return out
}

func pointValues(ps []domain.Point) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Value
	}
	return out
}
