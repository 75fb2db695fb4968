package hydrology

import (
	"fmt"
	"math"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	lowFlowWindow      = 7
	lowFlowProbability = 0.1
	gumbelFitShift     = 0.45005
)

// DistributionKind enumerates the candidate low-flow distributions.
type DistributionKind int

const (
	Normal DistributionKind = iota
	Pearson3
	DoubleWeibull
	Chi2
	GumbelR
)

// candidateKinds is the selection order; ties go to the earlier kind.
var candidateKinds = []DistributionKind{Normal, Pearson3, DoubleWeibull, Chi2, GumbelR}

func (k DistributionKind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Pearson3:
		return "pearson3"
	case DoubleWeibull:
		return "dweibull"
	case Chi2:
		return "chi2"
	case GumbelR:
		return "gumbel_r"
	default:
		return fmt.Sprintf("DistributionKind(%d)", int(k))
	}
}

// Standard forms of the candidates with their shape parameters fixed:
// Pearson III with skew 1 is a shifted Gamma(4, rate 1) on 2(z+2),
// double Weibull with shape 1 is the Laplace distribution,
// and chi-squared has 2 degrees of freedom.
var (
	pearson3Gamma   = distuv.Gamma{Alpha: 4, Beta: 1}
	unitLaplace     = distuv.Laplace{Mu: 0, Scale: 1}
	chi2TwoDF       = distuv.ChiSquared{K: 2}
	unitGumbelRight = distuv.GumbelRight{Mu: 0, Beta: 1}
)

// Distribution is one candidate with location and scale applied to its standard form.
type Distribution struct {
	Kind  DistributionKind
	Loc   float64
	Scale float64
}

// FitMoments fits kind by the method of moments from a sample mean and standard deviation.
func FitMoments(kind DistributionKind, mean, std float64) Distribution {
	if kind == GumbelR {
		return Distribution{Kind: kind, Loc: mean - gumbelFitShift*std, Scale: gumbelScale * std}
	}
	return Distribution{Kind: kind, Loc: mean, Scale: std}
}

// CDF evaluates the cumulative distribution function at x.
func (d Distribution) CDF(x float64) float64 {
	z := (x - d.Loc) / d.Scale
	switch d.Kind {
	case Normal:
		return distuv.UnitNormal.CDF(z)
	case Pearson3:
		y := 2 * (z + 2)
		if y <= 0 {
			return 0
		}
		return pearson3Gamma.CDF(y)
	case DoubleWeibull:
		return unitLaplace.CDF(z)
	case Chi2:
		if z <= 0 {
			return 0
		}
		return chi2TwoDF.CDF(z)
	case GumbelR:
		return unitGumbelRight.CDF(z)
	default:
		return math.NaN()
	}
}

// Quantile evaluates the inverse CDF at probability p in [0, 1].
func (d Distribution) Quantile(p float64) float64 {
	var z float64
	switch d.Kind {
	case Normal:
		z = distuv.UnitNormal.Quantile(p)
	case Pearson3:
		z = pearson3Gamma.Quantile(p)/2 - 2
	case DoubleWeibull:
		z = unitLaplace.Quantile(p)
	case Chi2:
		z = chi2TwoDF.Quantile(p)
	case GumbelR:
		z = unitGumbelRight.Quantile(p)
	default:
		return math.NaN()
	}
	return d.Loc + d.Scale*z
}

// CandidateScore is the goodness of fit of one candidate against the empirical CDF.
type CandidateScore struct {
	Distribution Distribution
	RMS          float64
}

// LowFlowFit is the outcome of low-flow distribution selection.
type LowFlowFit struct {
	Sample     []float64
	Candidates []CandidateScore
	Best       Distribution
	Threshold  float64
}

// SelectLowFlow derives the low-flow threshold of a daily series: the 0.1
// quantile of the best-fitting distribution of annual 7-day minimum flows.
func SelectLowFlow(s domain.TimeSeries) (LowFlowFit, error) {
	fit, err := fitLowFlow(AnnualMinima(RollingMean(s, lowFlowWindow)))
	if err != nil {
		return LowFlowFit{}, fmt.Errorf("low flow for %s: %w", s.ID, err)
	}
	return fit, nil
}

func fitLowFlow(sample []float64) (LowFlowFit, error) {
	if len(sample) < 2 {
		return LowFlowFit{}, fmt.Errorf("%d annual minima: %w", len(sample), domain.ErrFit)
	}
	mean, std := stat.PopMeanStdDev(sample, nil)
	if std == 0 || math.IsNaN(std) {
		return LowFlowFit{}, fmt.Errorf("annual minima have zero variance: %w", domain.ErrFit)
	}

	mids, empirical := EmpiricalCDF(sample)
	fit := LowFlowFit{Sample: sample, Candidates: make([]CandidateScore, 0, len(candidateKinds))}
	best := -1
	for _, kind := range candidateKinds {
		d := FitMoments(kind, mean, std)
		score := CandidateScore{Distribution: d, RMS: rmsDeviation(d, mids, empirical)}
		fit.Candidates = append(fit.Candidates, score)
		if best < 0 || score.RMS < fit.Candidates[best].RMS {
			best = len(fit.Candidates) - 1
		}
	}
	fit.Best = fit.Candidates[best].Distribution
	fit.Threshold = math.Max(0, fit.Best.Quantile(lowFlowProbability))
	return fit, nil
}

// RollingMean returns the centered moving average over window consecutive
// samples. Points without a full window are dropped.
func RollingMean(s domain.TimeSeries, window int) domain.TimeSeries {
	out := domain.TimeSeries{ID: s.ID}
	if window <= 0 || len(s.Points) < window {
		return out
	}
	values := s.Values()
	half := window / 2
	for i := half; i+window-half <= len(values); i++ {
		out.Points = append(out.Points, domain.Point{
			Time:  s.Points[i].Time,
			Value: stat.Mean(values[i-half:i-half+window], nil),
		})
	}
	return out
}

// EmpiricalCDF bins sample with Sturges' rule and returns the bin midpoints
// with the cumulative bin frequency normalized to 1. The last bin is closed
// on the right so the maximum is counted. sample must not be constant.
func EmpiricalCDF(sample []float64) (mids, cdf []float64) {
	sorted := sortedCopy(sample)
	n := len(sorted)
	bins := int(math.Ceil(math.Log2(float64(n)))) + 1
	lo, hi := sorted[0], sorted[n-1]

	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	mids = make([]float64, bins)
	for i := range mids {
		mids[i] = (dividers[i] + dividers[i+1]) / 2
	}
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	floats.CumSum(counts, counts)
	floats.Scale(1/float64(n), counts)
	return mids, counts
}

func rmsDeviation(d Distribution, xs, empirical []float64) float64 {
	diff := make([]float64, len(xs))
	for i, x := range xs {
		diff[i] = d.CDF(x) - empirical[i]
	}
	rms := floats.Norm(diff, 2) / math.Sqrt(float64(len(diff)))
	if math.IsNaN(rms) {
		return math.Inf(1)
	}
	return rms
}
