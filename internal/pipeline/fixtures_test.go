package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// history builds ten years (2010-2019) of daily flow. Each year sits on a
// flat baseline from base(year) with a single flood peak on June 15th of
// 100, 120, ..., 280. With identical simulated and observed series the
// bias correction is the identity, so the Gumbel thresholds come straight
// from the peaks: RP2≈180.6, RP5≈231.3, RP10≈264.9, RP25≈307.4.
func history(id string, base func(year int) float64) domain.TimeSeries {
	s := domain.TimeSeries{ID: id}
	for y := 0; y < 10; y++ {
		year := 2010 + y
		peak := time.Date(year, time.June, 15, 0, 0, 0, 0, time.UTC)
		for d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC); d.Year() == year; d = d.AddDate(0, 0, 1) {
			v := base(y)
			if d.Equal(peak) {
				v = 100 + 20*float64(y)
			}
			s.Points = append(s.Points, domain.Point{Time: d, Value: v})
		}
	}
	return s
}

// risingBase gives annual low flows of 10..19, so the low-flow threshold
// lands between roughly 9 and 16.
func risingBase(y int) float64 { return 10 + float64(y) }

// flatBase gives identical annual low flows, a degenerate low-flow sample.
func flatBase(int) float64 { return 10 }

// forecast builds a 3-hourly ensemble of 51 members starting 2024-06-01
// over the given number of days. Members below hot carry high, the rest base.
func forecast(id string, days, hot int, high, base float64) domain.Ensemble {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	rows := days * 8
	e := domain.Ensemble{ID: id, Members: make([][]float64, domain.PerturbedMembers)}
	for r := 0; r < rows; r++ {
		e.Times = append(e.Times, start.Add(time.Duration(r)*3*time.Hour))
	}
	for m := range e.Members {
		v := base
		if m < hot {
			v = high
		}
		col := make([]float64, rows)
		for r := range col {
			col[r] = v
		}
		e.Members[m] = col
	}
	return e
}

// fakeSource serves series from maps and fails for keys listed in errs.
type fakeSource struct {
	observed  map[string]domain.TimeSeries
	simulated map[int64]domain.TimeSeries
	forecasts map[int64]domain.Ensemble
	errs      map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		observed:  map[string]domain.TimeSeries{},
		simulated: map[int64]domain.TimeSeries{},
		forecasts: map[int64]domain.Ensemble{},
		errs:      map[string]error{},
	}
}

// add registers a gauged station whose observations equal its simulation.
func (f *fakeSource) add(st domain.Station, hist domain.TimeSeries, ens domain.Ensemble) {
	if st.Gauged() {
		f.observed[st.Code] = hist
	}
	f.simulated[st.ReachID] = hist
	f.forecasts[st.ReachID] = ens
}

func (f *fakeSource) Observed(ctx context.Context, code string) (domain.TimeSeries, error) {
	if err := ctx.Err(); err != nil {
		return domain.TimeSeries{}, err
	}
	if err := f.errs["observed:"+code]; err != nil {
		return domain.TimeSeries{}, err
	}
	s, ok := f.observed[code]
	if !ok {
		return domain.TimeSeries{}, domain.ErrDataUnavailable
	}
	return s, nil
}

func (f *fakeSource) Simulated(ctx context.Context, reachID int64) (domain.TimeSeries, error) {
	if err := ctx.Err(); err != nil {
		return domain.TimeSeries{}, err
	}
	s, ok := f.simulated[reachID]
	if !ok {
		return domain.TimeSeries{}, domain.ErrDataUnavailable
	}
	return s, nil
}

func (f *fakeSource) Forecast(ctx context.Context, reachID int64) (domain.Ensemble, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ensemble{}, err
	}
	e, ok := f.forecasts[reachID]
	if !ok {
		return domain.Ensemble{}, domain.ErrDataUnavailable
	}
	return e, nil
}
