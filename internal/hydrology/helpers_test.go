package hydrology

import (
	"math"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

const tol = 1e-9

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daily builds a series with one value per day starting at start.
func daily(id string, start time.Time, values ...float64) domain.TimeSeries {
	s := domain.TimeSeries{ID: id, Points: make([]domain.Point, len(values))}
	for i, v := range values {
		s.Points[i] = domain.Point{Time: start.AddDate(0, 0, i), Value: v}
	}
	return s
}

// memberTable builds an ensemble whose member m has values[m] at times.
func memberTable(times []time.Time, values ...[]float64) domain.Ensemble {
	e := domain.Ensemble{ID: "9017261", Times: times, Members: values, HighRes: make([]float64, len(times))}
	for i := range e.HighRes {
		e.HighRes[i] = math.NaN()
	}
	return e
}
