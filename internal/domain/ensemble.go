package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// PerturbedMembers is the number of perturbed members in a full forecast ensemble.
	PerturbedMembers = 51
	// HighResMember is the member number of the high-resolution deterministic run.
	HighResMember = 52
)

// HighResColumn is the reserved wire column name of the high-resolution member.
var HighResColumn = MemberColumn(HighResMember)

// MemberColumn returns the wire column name for ensemble member n (1-based).
func MemberColumn(n int) string {
	return fmt.Sprintf("ensemble_%02d_m^3/s", n)
}

// Ensemble is a forecast table indexed by timestamp. Members holds one column
// per perturbed member; HighRes is the high-resolution column. Missing cells are NaN.
type Ensemble struct {
	ID      string
	Times   []time.Time
	Members [][]float64
	HighRes []float64
}

// Len returns the number of timestamps.
func (e Ensemble) Len() int { return len(e.Times) }

// MemberCount returns the number of perturbed members.
func (e Ensemble) MemberCount() int { return len(e.Members) }

// Validate checks that every column has one cell per timestamp.
func (e Ensemble) Validate() error {
	for i, col := range e.Members {
		if len(col) != len(e.Times) {
			return fmt.Errorf("member %d has %d values for %d timestamps", i+1, len(col), len(e.Times))
		}
	}
	if e.HighRes != nil && len(e.HighRes) != len(e.Times) {
		return fmt.Errorf("high-res member has %d values for %d timestamps", len(e.HighRes), len(e.Times))
	}
	return nil
}

// Normalize returns a copy with rows sorted by time, duplicate timestamps
// collapsed (last row wins), non-finite cells set to NaN, and a NaN-filled
// HighRes column when none was supplied. Negative forecast values are kept:
// the forecast correction scales them by value/sim_min. The receiver must
// pass Validate.
func (e Ensemble) Normalize() Ensemble {
	latest := make(map[int64]int, len(e.Times))
	for i, t := range e.Times {
		latest[t.UnixNano()] = i
	}
	rows := make([]int, 0, len(latest))
	for i, t := range e.Times {
		if latest[t.UnixNano()] == i {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool { return e.Times[rows[a]].Before(e.Times[rows[b]]) })

	out := Ensemble{
		ID:      e.ID,
		Times:   make([]time.Time, len(rows)),
		Members: make([][]float64, len(e.Members)),
		HighRes: make([]float64, len(rows)),
	}
	for m := range e.Members {
		out.Members[m] = make([]float64, len(rows))
	}
	for j, r := range rows {
		out.Times[j] = e.Times[r].UTC()
		for m, col := range e.Members {
			out.Members[m][j] = cleanFlow(col[r])
		}
		if e.HighRes != nil {
			out.HighRes[j] = cleanFlow(e.HighRes[r])
		} else {
			out.HighRes[j] = math.NaN()
		}
	}
	return out
}

func cleanFlow(v float64) float64 {
	if !finite(v) {
		return math.NaN()
	}
	return v
}
