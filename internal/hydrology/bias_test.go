package hydrology

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectHistoricalIdentity(t *testing.T) {
	sim := daily("sim", day(2020, 1, 20), 4, 8, 1, 1, 6, 9, 2, 7, 3, 5, 12, 0.5, 3)

	got, err := CorrectHistorical(sim, sim)
	require.NoError(t, err)

	require.Equal(t, sim.Len(), got.Len())
	for i := range sim.Points {
		assert.Equal(t, sim.Points[i].Time, got.Points[i].Time)
		assert.InDelta(t, sim.Points[i].Value, got.Points[i].Value, tol)
	}
}

func TestCorrectHistoricalMapsScaledDistribution(t *testing.T) {
	sim := daily("sim", day(2020, 1, 1), 2, 4, 6, 8, 10)
	obs := daily("obs", day(2020, 1, 1), 1, 2, 3, 4, 5)

	got, err := CorrectHistorical(sim, obs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4, 5}, got.Values(), tol)
}

func TestCorrectHistoricalIsMonthAware(t *testing.T) {
	// January is biased high by 10, February is unbiased.
	sim := daily("sim", day(2020, 1, 29), 11, 12, 13, 1, 2, 3)
	obs := daily("obs", day(2020, 1, 29), 1, 2, 3, 1, 2, 3)

	got, err := CorrectHistorical(sim, obs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 1, 2, 3}, got.Values(), tol)
}

func TestCorrectHistoricalMissingObservedMonth(t *testing.T) {
	sim := daily("sim", day(2020, 1, 31), 1, 2)
	obs := daily("obs", day(2020, 1, 31), 1)

	_, err := CorrectHistorical(sim, obs)
	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Contains(t, err.Error(), "February")
}

func TestCorrectForecast(t *testing.T) {
	sim := daily("sim", day(2020, 1, 1), 2, 4, 6, 8, 10)
	obs := daily("obs", day(2020, 1, 1), 1, 2, 3, 4, 5)
	times := []time.Time{day(2024, 1, 15), day(2024, 1, 16), day(2024, 1, 17)}
	ens := memberTable(times,
		[]float64{6, 20, 1},
		[]float64{math.NaN(), 4, 10},
	)
	ens.HighRes = []float64{8, math.NaN(), 30}

	got, err := CorrectForecast(ens, sim, obs)
	require.NoError(t, err)

	assert.Equal(t, times, got.Times)
	// 20 is twice sim_max, so it maps to obs max (5) and doubles; 1 is half
	// of sim_min, so it maps to obs min (1) and halves.
	assert.InDeltaSlice(t, []float64{3, 10, 0.5}, got.Members[0], tol)
	assert.True(t, math.IsNaN(got.Members[1][0]))
	assert.InDelta(t, 2.0, got.Members[1][1], tol)
	assert.InDelta(t, 5.0, got.Members[1][2], tol)
	assert.InDelta(t, 4.0, got.HighRes[0], tol)
	assert.True(t, math.IsNaN(got.HighRes[1]))
	assert.InDelta(t, 15.0, got.HighRes[2], tol)

	assert.Equal(t, 6.0, ens.Members[0][0], "input is not modified")
}

func TestCorrectForecastUsesFirstTimestampMonth(t *testing.T) {
	// January is biased high, February is not. A forecast that starts on
	// January 31 is calibrated on January even where it runs into February.
	sim := domain.TimeSeries{Points: append(
		daily("", day(2020, 1, 1), 20, 40, 60).Points,
		daily("", day(2020, 2, 1), 2, 4, 6).Points...,
	)}
	obs := domain.TimeSeries{Points: append(
		daily("", day(2020, 1, 1), 2, 4, 6).Points,
		daily("", day(2020, 2, 1), 2, 4, 6).Points...,
	)}
	ens := memberTable([]time.Time{day(2024, 1, 31), day(2024, 2, 1)}, []float64{40, 40})

	got, err := CorrectForecast(ens, sim, obs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 4}, got.Members[0], tol)
}

func TestCorrectForecastEmptyCalibrationMonth(t *testing.T) {
	sim := daily("sim", day(2020, 1, 1), 2, 4, 6)
	obs := daily("obs", day(2020, 1, 1), 1, 2, 3)
	ens := memberTable([]time.Time{day(2024, 3, 1)}, []float64{5})

	_, err := CorrectForecast(ens, sim, obs)
	require.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = CorrectForecast(domain.Ensemble{}, sim, obs)
	require.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestCorrectForecastInsideRangeHasNoFactor(t *testing.T) {
	sim := daily("sim", day(2020, 6, 1), 1, 3, 5, 7, 9)
	ens := memberTable([]time.Time{day(2024, 6, 2)}, []float64{1}, []float64{9}, []float64{4})

	got, err := CorrectForecast(ens, sim, sim)
	require.NoError(t, err)
	for m := range ens.Members {
		assert.InDelta(t, ens.Members[m][0], got.Members[m][0], tol)
	}
}

func TestCorrectForecastScalesNegativeValues(t *testing.T) {
	sim := daily("sim", day(2020, 1, 1), 2, 4, 6, 8, 10)
	obs := daily("obs", day(2020, 1, 1), 1, 2, 3, 4, 5)
	ens := memberTable([]time.Time{day(2024, 1, 15)}, []float64{-1})

	got, err := CorrectForecast(ens.Normalize(), sim, obs)
	require.NoError(t, err)
	// -1 clamps to sim_min (2), maps to obs min (1) and scales by -1/2.
	assert.InDelta(t, -0.5, got.Members[0][0], tol)
}

func TestCorrectForecastZeroSimMinHasNoFactor(t *testing.T) {
	sim := daily("sim", day(2020, 1, 1), 0, 4, 8)
	obs := daily("obs", day(2020, 1, 1), 1, 2, 3)
	ens := memberTable([]time.Time{day(2024, 1, 15)}, []float64{-3})

	got, err := CorrectForecast(ens, sim, obs)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.Members[0][0], tol)
}
