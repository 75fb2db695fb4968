package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/hydrology"
)

// SeriesSource loads the three series a station evaluation needs.
type SeriesSource interface {
	Observed(ctx context.Context, code string) (domain.TimeSeries, error)
	Simulated(ctx context.Context, reachID int64) (domain.TimeSeries, error)
	Forecast(ctx context.Context, reachID int64) (domain.Ensemble, error)
}

// Options are the classification parameters shared by every station.
type Options struct {
	AcceptancePercent float64
	ReturnPeriods     []int
	LowFlowBands      domain.LowFlowBands
}

// DefaultOptions returns a 10% acceptance threshold, the standard return
// periods and the default low-flow bands.
func DefaultOptions() Options {
	return Options{
		AcceptancePercent: 10,
		ReturnPeriods:     domain.StandardReturnPeriods,
		LowFlowBands:      domain.DefaultLowFlowBands,
	}
}

// Evaluation is the outcome of one station evaluation with the intermediate
// results that produced it.
type Evaluation struct {
	Station    domain.Station
	Code       domain.AlertCode
	Thresholds domain.ReturnPeriodThresholds
	HighFlow   hydrology.HighFlowResult

	// LowFlowFallback is set when high flow was neutral and the code came
	// from the low-flow classifier.
	LowFlowFallback bool
	LowFlowFit      hydrology.LowFlowFit
	LowFlow         hydrology.LowFlowResult
	LowFlowErr      error
}

// Record converts the evaluation into an alert record stamped with at.
func (e Evaluation) Record(at time.Time) domain.AlertRecord {
	return domain.AlertRecord{
		StationCode:     e.Station.Code,
		ReachID:         e.Station.ReachID,
		Code:            e.Code,
		Previous:        e.Station.Alert,
		LowFlowFallback: e.LowFlowFallback,
		EvaluatedAt:     at,
	}
}

// Evaluator runs the hydrological pipeline for one station at a time. It
// holds no per-station state and is safe for concurrent use.
type Evaluator struct {
	source SeriesSource
	opts   Options
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator reading series from source.
func NewEvaluator(source SeriesSource, opts Options, logger *slog.Logger) *Evaluator {
	return &Evaluator{source: source, opts: opts, logger: logger}
}

// Evaluate computes the alert code of one station. Gauged stations are
// bias-corrected against their observations; reach-only stations are
// classified on the raw simulation and forecast. Failures are returned as
// *domain.StationError naming the stage. Context cancellation is returned
// unwrapped.
func (e *Evaluator) Evaluate(ctx context.Context, st domain.Station) (Evaluation, error) {
	key := st.Key()
	fail := func(stage domain.Stage, err error) (Evaluation, error) {
		return Evaluation{}, &domain.StationError{Station: key, Stage: stage, Err: err}
	}

	history, ens, err := e.load(ctx, st)
	if err != nil {
		if ctx.Err() != nil {
			return Evaluation{}, ctx.Err()
		}
		return fail(domain.StageFetch, err)
	}

	if st.Gauged() {
		sim, obs := history[0], history[1]
		alignedSim, alignedObs, err := hydrology.Align(sim, obs)
		if err != nil {
			return fail(domain.StageAlign, err)
		}
		ens, err = hydrology.CorrectForecast(ens, alignedSim, alignedObs)
		if err != nil {
			return fail(domain.StageBiasCorrection, err)
		}
		corrected, err := hydrology.CorrectHistorical(alignedSim, alignedObs)
		if err != nil {
			return fail(domain.StageBiasCorrection, err)
		}
		history = []domain.TimeSeries{corrected}
	}
	hist := history[0]

	ev := Evaluation{Station: st}
	ev.Thresholds, err = hydrology.EstimateReturnPeriods(hist, e.opts.ReturnPeriods)
	if err != nil {
		return fail(domain.StageReturnPeriods, err)
	}
	ev.LowFlowFit, ev.LowFlowErr = hydrology.SelectLowFlow(hist)

	stats, err := hydrology.AggregateEnsemble(ens)
	if err != nil {
		return fail(domain.StageAggregate, err)
	}
	start, end := stats.Span()
	ev.HighFlow, err = hydrology.ClassifyHighFlow(ens, ev.Thresholds, start, end, e.opts.AcceptancePercent)
	if err != nil {
		return fail(domain.StageHighFlow, err)
	}
	ev.Code = ev.HighFlow.Code

	if ev.HighFlow.Code != domain.AlertNone {
		if ev.LowFlowErr != nil {
			e.logger.Warn("low-flow fit failed, keeping high-flow alert",
				"station", key, "alert", ev.Code, "error", ev.LowFlowErr)
		}
		return ev, nil
	}
	if ev.LowFlowErr != nil {
		return fail(domain.StageLowFlowFit, ev.LowFlowErr)
	}
	ev.LowFlow = hydrology.ClassifyLowFlow(stats.MedianSeries(), ev.LowFlowFit.Threshold, e.opts.LowFlowBands)
	ev.Code = ev.LowFlow.Code
	ev.LowFlowFallback = true

	e.logger.Debug("low-flow classification",
		"station", key,
		"distribution", ev.LowFlowFit.Best.Kind.String(),
		"threshold", ev.LowFlowFit.Threshold,
		"days_below", ev.LowFlow.DaysBelow,
	)
	return ev, nil
}

// load fetches and normalizes the station's series. history holds the
// simulation, followed by the observations for a gauged station.
func (e *Evaluator) load(ctx context.Context, st domain.Station) ([]domain.TimeSeries, domain.Ensemble, error) {
	sim, err := e.source.Simulated(ctx, st.ReachID)
	if err != nil {
		return nil, domain.Ensemble{}, unavailable(err)
	}
	sim = sim.Normalize().ClampNegative()
	if sim.Len() == 0 {
		return nil, domain.Ensemble{}, fmt.Errorf("simulated series %d is empty: %w", st.ReachID, domain.ErrDataUnavailable)
	}
	history := []domain.TimeSeries{sim}

	if st.Gauged() {
		obs, err := e.source.Observed(ctx, st.Code)
		if err != nil {
			return nil, domain.Ensemble{}, unavailable(err)
		}
		obs = obs.Normalize()
		if obs.Len() == 0 {
			return nil, domain.Ensemble{}, fmt.Errorf("observed series %s is empty: %w", st.Code, domain.ErrDataUnavailable)
		}
		history = append(history, obs)
	}

	ens, err := e.source.Forecast(ctx, st.ReachID)
	if err != nil {
		return nil, domain.Ensemble{}, unavailable(err)
	}
	if err := ens.Validate(); err != nil {
		return nil, domain.Ensemble{}, unavailable(err)
	}
	if ens.Len() == 0 {
		return nil, domain.Ensemble{}, fmt.Errorf("forecast %d is empty: %w", st.ReachID, domain.ErrDataUnavailable)
	}
	return history, ens.Normalize(), nil
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrDataUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
}
