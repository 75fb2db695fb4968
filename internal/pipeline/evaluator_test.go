package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gauge = domain.Station{Code: "21237010", ReachID: 9017261, Name: "Rio Test", Alert: domain.AlertR2}

func newEvaluator(src pipeline.SeriesSource) *pipeline.Evaluator {
	return pipeline.NewEvaluator(src, pipeline.DefaultOptions(), discardLogger())
}

func TestEvaluate_HighFlow(t *testing.T) {
	src := newFakeSource()
	// 10 of 51 members at 290 is 20%: above RP10 (≈264.9) but below RP25 (≈307.4).
	src.add(gauge, history("g", risingBase), forecast("f", 2, 10, 290, 50))

	ev, err := newEvaluator(src).Evaluate(context.Background(), gauge)
	require.NoError(t, err)

	assert.Equal(t, domain.AlertR10, ev.Code)
	assert.Equal(t, []int{2, 5, 10}, ev.HighFlow.Triggered)
	assert.False(t, ev.LowFlowFallback)
	assert.InDelta(t, 264.94, ev.Thresholds[10], 0.05)
	require.Len(t, ev.HighFlow.Days, 2)
	assert.Equal(t, 20, ev.HighFlow.Days[0].Percent[10])
	assert.Equal(t, 0, ev.HighFlow.Days[0].Percent[25])
}

func TestEvaluate_BelowAcceptance(t *testing.T) {
	src := newFakeSource()
	// 4 of 51 members is 8%, under the 10% acceptance.
	src.add(gauge, history("g", risingBase), forecast("f", 2, 4, 290, 50))

	ev, err := newEvaluator(src).Evaluate(context.Background(), gauge)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertNone, ev.Code)
	assert.True(t, ev.LowFlowFallback)
}

func TestEvaluate_LowFlowFallback(t *testing.T) {
	src := newFakeSource()
	src.add(gauge, history("g", risingBase), forecast("f", 8, 0, 0, 1))

	ev, err := newEvaluator(src).Evaluate(context.Background(), gauge)
	require.NoError(t, err)

	assert.Equal(t, domain.AlertLower3, ev.Code)
	assert.True(t, ev.LowFlowFallback)
	assert.Equal(t, 8, ev.LowFlow.DaysBelow)
	assert.Greater(t, ev.LowFlowFit.Threshold, 1.0)
	assert.Less(t, ev.LowFlowFit.Threshold, 20.0)
	assert.Len(t, ev.LowFlowFit.Candidates, 5)
}

func TestEvaluate_Neutral(t *testing.T) {
	src := newFakeSource()
	src.add(gauge, history("g", risingBase), forecast("f", 8, 0, 0, 50))

	ev, err := newEvaluator(src).Evaluate(context.Background(), gauge)
	require.NoError(t, err)

	assert.Equal(t, domain.AlertNone, ev.Code)
	assert.True(t, ev.LowFlowFallback)
	assert.Zero(t, ev.LowFlow.DaysBelow)

	rec := ev.Record(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, domain.AlertRecord{
		StationCode:     gauge.Code,
		ReachID:         gauge.ReachID,
		Code:            domain.AlertNone,
		Previous:        domain.AlertR2,
		LowFlowFallback: true,
		EvaluatedAt:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}, rec)
}

func TestEvaluate_ReachOnlyUsesRawSeries(t *testing.T) {
	reach := domain.Station{ReachID: 77}
	src := newFakeSource()
	src.add(reach, history("r", risingBase), forecast("f", 2, 10, 290, 50))

	ev, err := newEvaluator(src).Evaluate(context.Background(), reach)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertR10, ev.Code)
}

func TestEvaluate_LowFlowFitFailureKeepsHighFlow(t *testing.T) {
	src := newFakeSource()
	src.add(gauge, history("g", flatBase), forecast("f", 2, 10, 290, 50))

	ev, err := newEvaluator(src).Evaluate(context.Background(), gauge)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertR10, ev.Code)
	require.ErrorIs(t, ev.LowFlowErr, domain.ErrFit)
}

func TestEvaluate_LowFlowFitFailureWhenNeutral(t *testing.T) {
	src := newFakeSource()
	src.add(gauge, history("g", flatBase), forecast("f", 2, 0, 0, 50))

	_, err := newEvaluator(src).Evaluate(context.Background(), gauge)
	require.ErrorIs(t, err, domain.ErrFit)
	assert.Equal(t, domain.StageLowFlowFit, domain.StageOf(err))
}

func TestEvaluate_Failures(t *testing.T) {
	hist := history("g", risingBase)
	ens := forecast("f", 2, 0, 0, 50)

	oneYear := domain.TimeSeries{ID: "short"}
	for _, p := range hist.Points {
		if p.Time.Year() == 2015 {
			oneYear.Points = append(oneYear.Points, p)
		}
	}
	disjoint := domain.TimeSeries{ID: "old", Points: []domain.Point{
		{Time: time.Date(1990, 6, 1, 0, 0, 0, 0, time.UTC), Value: 5},
	}}

	tests := []struct {
		name    string
		setup   func(*fakeSource)
		stage   domain.Stage
		wantErr error
	}{
		{
			name:    "missing forecast",
			setup:   func(f *fakeSource) { delete(f.forecasts, gauge.ReachID) },
			stage:   domain.StageFetch,
			wantErr: domain.ErrDataUnavailable,
		},
		{
			name:    "observed fetch error is reported as unavailable",
			setup:   func(f *fakeSource) { f.errs["observed:"+gauge.Code] = errors.New("connection reset") },
			stage:   domain.StageFetch,
			wantErr: domain.ErrDataUnavailable,
		},
		{
			name:    "empty simulation",
			setup:   func(f *fakeSource) { f.simulated[gauge.ReachID] = domain.TimeSeries{} },
			stage:   domain.StageFetch,
			wantErr: domain.ErrDataUnavailable,
		},
		{
			name:    "no overlap",
			setup:   func(f *fakeSource) { f.observed[gauge.Code] = disjoint },
			stage:   domain.StageAlign,
			wantErr: domain.ErrAlignment,
		},
		{
			name: "one year of history",
			setup: func(f *fakeSource) {
				f.observed[gauge.Code] = oneYear
				f.simulated[gauge.ReachID] = oneYear
			},
			stage:   domain.StageReturnPeriods,
			wantErr: domain.ErrInsufficientData,
		},
		{
			name: "forecast month missing from history",
			setup: func(f *fakeSource) {
				f.observed[gauge.Code] = withoutMonth(hist, time.June)
				f.simulated[gauge.ReachID] = withoutMonth(hist, time.June)
			},
			stage:   domain.StageBiasCorrection,
			wantErr: domain.ErrInsufficientData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.add(gauge, hist, ens)
			tt.setup(src)

			_, err := newEvaluator(src).Evaluate(context.Background(), gauge)
			require.ErrorIs(t, err, tt.wantErr)

			var se *domain.StationError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.Equal(t, gauge.Code, se.Station)
		})
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	src := newFakeSource()
	src.add(gauge, history("g", risingBase), forecast("f", 2, 0, 0, 50))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEvaluator(src).Evaluate(ctx, gauge)
	require.ErrorIs(t, err, context.Canceled)
	var se *domain.StationError
	assert.False(t, errors.As(err, &se))
}

func TestRemoteSourceDelegates(t *testing.T) {
	src := newFakeSource()
	src.add(gauge, history("g", risingBase), forecast("f", 1, 0, 0, 50))
	remote := pipeline.NewRemoteSource(remoteObserved{src}, remoteSimulations{src}, remoteForecasts{src})

	ev, err := newEvaluator(remote).Evaluate(context.Background(), gauge)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertNone, ev.Code)
}

type remoteObserved struct{ f *fakeSource }

func (r remoteObserved) Observed(ctx context.Context, code string) (domain.TimeSeries, error) {
	return r.f.Observed(ctx, code)
}

type remoteSimulations struct{ f *fakeSource }

func (r remoteSimulations) HistoricSimulation(ctx context.Context, reachID int64) (domain.TimeSeries, error) {
	return r.f.Simulated(ctx, reachID)
}

type remoteForecasts struct{ f *fakeSource }

func (r remoteForecasts) ForecastEnsemble(ctx context.Context, reachID int64) (domain.Ensemble, error) {
	return r.f.Forecast(ctx, reachID)
}

func withoutMonth(s domain.TimeSeries, m time.Month) domain.TimeSeries {
	out := domain.TimeSeries{ID: s.ID}
	for _, p := range s.Points {
		if p.Time.Month() != m {
			out.Points = append(out.Points, p)
		}
	}
	return out
}
