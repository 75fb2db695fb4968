package pipeline

import (
	"context"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
)

// ObservedFetcher reads a gauge's observed record from an upstream service.
type ObservedFetcher interface {
	Observed(ctx context.Context, code string) (domain.TimeSeries, error)
}

// SimulationFetcher reads a reach's historical simulation from an upstream service.
type SimulationFetcher interface {
	HistoricSimulation(ctx context.Context, reachID int64) (domain.TimeSeries, error)
}

// ForecastFetcher reads a reach's current forecast ensemble from an upstream service.
type ForecastFetcher interface {
	ForecastEnsemble(ctx context.Context, reachID int64) (domain.Ensemble, error)
}

// RemoteSource is a SeriesSource backed by the upstream services directly
// instead of a store.
type RemoteSource struct {
	observed    ObservedFetcher
	simulations SimulationFetcher
	forecasts   ForecastFetcher
}

// NewRemoteSource combines the upstream fetchers into a SeriesSource.
func NewRemoteSource(observed ObservedFetcher, simulations SimulationFetcher, forecasts ForecastFetcher) *RemoteSource {
	return &RemoteSource{observed: observed, simulations: simulations, forecasts: forecasts}
}

func (s *RemoteSource) Observed(ctx context.Context, code string) (domain.TimeSeries, error) {
	return s.observed.Observed(ctx, code)
}

func (s *RemoteSource) Simulated(ctx context.Context, reachID int64) (domain.TimeSeries, error) {
	return s.simulations.HistoricSimulation(ctx, reachID)
}

func (s *RemoteSource) Forecast(ctx context.Context, reachID int64) (domain.Ensemble, error) {
	return s.forecasts.ForecastEnsemble(ctx, reachID)
}
