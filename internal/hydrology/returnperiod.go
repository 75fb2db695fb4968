package hydrology

import (
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Gumbel Type-I method-of-moments constants.
const (
	gumbelScale    = 0.7797
	gumbelLocShift = 0.45
)

// AnnualMaxima returns the largest value of each calendar year, ordered by year.
func AnnualMaxima(s domain.TimeSeries) []float64 {
	return annualReduce(s.Points, math.Max)
}

// AnnualMinima returns the smallest value of each calendar year, ordered by year.
func AnnualMinima(s domain.TimeSeries) []float64 {
	return annualReduce(s.Points, math.Min)
}

func annualReduce(points []domain.Point, pick func(a, b float64) float64) []float64 {
	byYear := make(map[int]float64)
	for _, p := range points {
		if math.IsNaN(p.Value) {
			continue
		}
		y := p.Time.UTC().Year()
		if cur, ok := byYear[y]; ok {
			byYear[y] = pick(cur, p.Value)
		} else {
			byYear[y] = p.Value
		}
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	out := make([]float64, len(years))
	for i, y := range years {
		out[i] = byYear[y]
	}
	return out
}

// GumbelValue is the flow expected once every t years for annual maxima with
// mean xbar and population standard deviation std.
func GumbelValue(t, xbar, std float64) float64 {
	return -math.Log(-math.Log(1-1/t))*std*gumbelScale + xbar - gumbelLocShift*std
}

// EstimateReturnPeriods fits a Gumbel distribution to the annual maxima of s
// and returns the threshold for each period. It needs at least two years
// with some spread between their maxima.
func EstimateReturnPeriods(s domain.TimeSeries, periods []int) (domain.ReturnPeriodThresholds, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("return periods for %s: no periods requested", s.ID)
	}
	maxima := AnnualMaxima(s)
	if len(maxima) < 2 {
		return nil, fmt.Errorf("return periods for %s: %d year(s) of data: %w", s.ID, len(maxima), domain.ErrInsufficientData)
	}
	xbar, std := stat.PopMeanStdDev(maxima, nil)
	if std == 0 {
		return nil, fmt.Errorf("return periods for %s: annual maxima have no spread: %w", s.ID, domain.ErrInsufficientData)
	}

	out := make(domain.ReturnPeriodThresholds, len(periods))
	for _, t := range periods {
		if t <= 1 {
			return nil, fmt.Errorf("return periods for %s: period %d must exceed 1 year", s.ID, t)
		}
		out[t] = GumbelValue(float64(t), xbar, std)
	}
	return out, nil
}
