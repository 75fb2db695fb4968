package hydrology

import (
	"math"
	"sort"
)

// sortedCopy returns the finite values of xs in ascending order.
func sortedCopy(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// quantile returns the p-quantile of a sorted sample by linear interpolation
// between closest ranks, h = (n-1)p. An empty sample yields NaN.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	h := p * float64(n-1)
	i := int(math.Floor(h))
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-float64(i))*(sorted[i+1]-sorted[i])
}

// percentileOf is the inverse of quantile: the plotting position of v within
// a sorted sample. Tied values take the mid-rank of their run, values between
// samples interpolate linearly, and values outside the sample clamp to 0 or 1.
func percentileOf(sorted []float64, v float64) float64 {
	n := len(sorted)
	if n < 2 {
		return 0
	}
	lo := sort.SearchFloat64s(sorted, v)
	hi := lo
	for hi < n && sorted[hi] == v {
		hi++
	}
	last := float64(n - 1)
	switch {
	case hi > lo:
		return float64(lo+hi-1) / 2 / last
	case lo == 0:
		return 0
	case lo == n:
		return 1
	}
	x0, x1 := sorted[lo-1], sorted[lo]
	return (float64(lo-1) + (v-x0)/(x1-x0)) / last
}
