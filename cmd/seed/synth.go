package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// scenario steers a synthetic forecast towards one kind of alert.
type scenario int

const (
	calm scenario = iota
	flood
	drought
)

func (s scenario) String() string {
	switch s {
	case flood:
		return "flood"
	case drought:
		return "drought"
	default:
		return "calm"
	}
}

// synthStation is one generated catalog entry with its series.
type synthStation struct {
	Station   domain.Station
	Scenario  scenario
	Observed  domain.TimeSeries
	Simulated domain.TimeSeries
	Forecast  domain.Ensemble
}

type synthOptions struct {
	Stations     int
	Years        int
	ForecastDays int
	Issued       time.Time
	Seed         uint64
}

// synthesize builds a deterministic catalog: the same options always give
// the same series. Every fourth station is reach-only.
func synthesize(opts synthOptions) []synthStation {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	out := make([]synthStation, 0, opts.Stations)
	for i := 0; i < opts.Stations; i++ {
		reach := int64(9000000 + 1000*(i+1))
		st := domain.Station{ReachID: reach, Name: fmt.Sprintf("Synthetic river %d", i+1), Alert: domain.AlertNone}
		if i%4 != 3 {
			st.Code = fmt.Sprintf("%08d", 21000000+i+1)
		}
		mean := 20 + 180*rng.Float64()
		sc := scenario(i % 3)

		s := synthStation{Station: st, Scenario: sc}
		s.Simulated = simulateHistory(rng, fmt.Sprintf("sim-%d", reach), opts, mean)
		if st.Gauged() {
			s.Observed = observe(rng, "obs-"+st.Code, s.Simulated)
		}
		s.Forecast = forecastEnsemble(rng, fmt.Sprintf("fc-%d", reach), opts, mean, sc)
		out = append(out, s)
	}
	return out
}

// simulateHistory gives a seasonal daily flow with one flood pulse a year
// whose size follows a Gumbel law, ending the day before the forecast.
func simulateHistory(rng *rand.Rand, id string, opts synthOptions, mean float64) domain.TimeSeries {
	end := domain.Day(opts.Issued)
	start := end.AddDate(-opts.Years, 0, 0)
	ts := domain.TimeSeries{ID: id}
	var pulse time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if d.YearDay() == 1 || pulse.IsZero() {
			pulse = d.AddDate(0, 0, 60+rng.IntN(200))
		}
		season := 1 + 0.6*math.Sin(2*math.Pi*float64(d.YearDay())/365)
		v := mean * season * math.Exp(0.25*rng.NormFloat64())
		if d.Equal(pulse) {
			v += mean * (4 + gumbel(rng))
		}
		ts.Points = append(ts.Points, domain.Point{Time: d, Value: v})
	}
	return ts
}

// observe derives a gauge record from the simulation: a biased, noisy copy
// with roughly 3% of days missing.
func observe(rng *rand.Rand, id string, sim domain.TimeSeries) domain.TimeSeries {
	ts := domain.TimeSeries{ID: id}
	for _, p := range sim.Points {
		if rng.Float64() < 0.03 {
			continue
		}
		v := 1.15 * p.Value * math.Exp(0.1*rng.NormFloat64())
		ts.Points = append(ts.Points, domain.Point{Time: p.Time, Value: v})
	}
	return ts
}

// forecastEnsemble builds a 3-hourly ensemble. The high-resolution member
// covers only the first ten days, as the upstream product does.
func forecastEnsemble(rng *rand.Rand, id string, opts synthOptions, mean float64, sc scenario) domain.Ensemble {
	rows := opts.ForecastDays * 8
	start := domain.Day(opts.Issued)
	e := domain.Ensemble{
		ID:      id,
		Members: make([][]float64, domain.PerturbedMembers),
		HighRes: make([]float64, rows),
	}
	for r := 0; r < rows; r++ {
		e.Times = append(e.Times, start.Add(time.Duration(r)*3*time.Hour))
	}

	level := mean
	spread := 0.15
	switch sc {
	case flood:
		level = mean * 9
		spread = 0.3
	case drought:
		level = mean * 0.05
		spread = 0.05
	}
	for m := range e.Members {
		bias := math.Exp(spread * rng.NormFloat64())
		col := make([]float64, rows)
		for r := range col {
			col[r] = level * bias * math.Exp(0.05*rng.NormFloat64())
		}
		e.Members[m] = col
	}
	for r := range e.HighRes {
		if r >= 10*8 {
			e.HighRes[r] = math.NaN()
			continue
		}
		e.HighRes[r] = level * math.Exp(0.05*rng.NormFloat64())
	}
	return e
}

// gumbel draws a standard Gumbel variate.
func gumbel(rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return -math.Log(-math.Log(u))
}
