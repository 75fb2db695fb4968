package domain

import (
	"math"
	"sort"
	"time"
)

// Point is one timestamped value of a series.
type Point struct {
	Time  time.Time
	Value float64
}

// TimeSeries is an ordered sequence of points for one station or reach.
type TimeSeries struct {
	ID     string
	Points []Point
}

// Len returns the number of points.
func (s TimeSeries) Len() int { return len(s.Points) }

// Values returns a copy of the point values in order.
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Normalize returns a copy sorted by time with duplicate timestamps collapsed
// (the last occurrence wins) and non-finite values removed.
func (s TimeSeries) Normalize() TimeSeries {
	latest := make(map[int64]int, len(s.Points))
	for i, p := range s.Points {
		latest[p.Time.UnixNano()] = i
	}

	out := make([]Point, 0, len(latest))
	for i, p := range s.Points {
		if latest[p.Time.UnixNano()] != i || !finite(p.Value) {
			continue
		}
		out = append(out, Point{Time: p.Time.UTC(), Value: p.Value})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Time.Before(out[b].Time) })
	return TimeSeries{ID: s.ID, Points: out}
}

// ClampNegative returns a copy with negative values replaced by 0.
func (s TimeSeries) ClampNegative() TimeSeries {
	out := make([]Point, len(s.Points))
	for i, p := range s.Points {
		if p.Value < 0 {
			p.Value = 0
		}
		out[i] = p
	}
	return TimeSeries{ID: s.ID, Points: out}
}

// Month returns the points that fall in calendar month m.
func (s TimeSeries) Month(m time.Month) []Point {
	var out []Point
	for _, p := range s.Points {
		if p.Time.UTC().Month() == m {
			out = append(out, p)
		}
	}
	return out
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
