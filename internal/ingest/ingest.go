// Package ingest registers catalog stations and refreshes the stored series
// the alert run reads: observed records, historical simulations and the
// current forecast ensembles.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
	"github.com/couchcryptid/streamflow-alert-service/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// Series names one kind of stored series.
type Series string

const (
	SeriesObserved  Series = "observed"
	SeriesSimulated Series = "simulated"
	SeriesForecast  Series = "forecast"
)

// AllSeries is every kind of series, in the order a station refreshes them.
var AllSeries = []Series{SeriesObserved, SeriesSimulated, SeriesForecast}

// ParseSeries reads a comma-separated list such as "simulated,forecast".
func ParseSeries(raw string) ([]Series, error) {
	want := map[Series]bool{}
	for _, part := range strings.Split(raw, ",") {
		s := Series(strings.ToLower(strings.TrimSpace(part)))
		switch s {
		case "":
			continue
		case SeriesObserved, SeriesSimulated, SeriesForecast:
			want[s] = true
		default:
			return nil, fmt.Errorf("unknown series %q", part)
		}
	}
	var out []Series
	for _, s := range AllSeries {
		if want[s] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no series selected")
	}
	return out, nil
}

// Store is the write side of the series store.
type Store interface {
	UpsertStation(ctx context.Context, st domain.Station) error
	SaveObserved(ctx context.Context, code string, ts domain.TimeSeries) error
	SaveSimulated(ctx context.Context, reachID int64, ts domain.TimeSeries) error
	SaveForecast(ctx context.Context, reachID int64, ens domain.Ensemble) error
}

// Failure is one series of one station that could not be refreshed.
type Failure struct {
	Station domain.Station
	Series  Series
	Err     error
}

// Report summarizes one ingest. Failures follow station list order.
type Report struct {
	Stations int
	Saved    int
	Failures []Failure
	Duration time.Duration
}

// Ingester fetches series from the upstream services and stores them, a
// bounded number of stations at a time.
type Ingester struct {
	store       Store
	observed    pipeline.ObservedFetcher
	simulations pipeline.SimulationFetcher
	forecasts   pipeline.ForecastFetcher
	series      []Series
	workers     int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates an Ingester refreshing the given series. Nil or empty series
// means AllSeries.
func New(store Store, observed pipeline.ObservedFetcher, simulations pipeline.SimulationFetcher,
	forecasts pipeline.ForecastFetcher, series []Series, workers int,
	logger *slog.Logger, metrics *observability.Metrics) *Ingester {
	if len(series) == 0 {
		series = AllSeries
	}
	if workers < 1 {
		workers = 1
	}
	return &Ingester{
		store:       store,
		observed:    observed,
		simulations: simulations,
		forecasts:   forecasts,
		series:      series,
		workers:     workers,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run upserts every station into the catalog, then refreshes its series.
// A catalog write error stops the run. A series that fails to fetch or save
// is reported in Report.Failures and does not stop the others. If ctx is
// cancelled, Run returns ctx.Err() once in-flight stations finish.
func (in *Ingester) Run(ctx context.Context, stations []domain.Station) (report Report, err error) {
	start := time.Now()
	report.Stations = len(stations)
	defer func() { report.Duration = time.Since(start) }()

	for _, st := range stations {
		if err := in.store.UpsertStation(ctx, st); err != nil {
			return report, err
		}
	}
	in.logger.Info("ingest started", "stations", len(stations), "series", in.series, "workers", in.workers)

	failures := make([][]Failure, len(stations))
	var g errgroup.Group
	g.SetLimit(in.workers)
	for i, st := range stations {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, s := range in.series {
				if s == SeriesObserved && !st.Gauged() {
					continue
				}
				if err := in.refresh(ctx, st, s); err != nil {
					failures[i] = append(failures[i], Failure{Station: st, Series: s, Err: err})
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		in.logger.Warn("ingest cancelled", "reason", err)
		return report, err
	}

	for i, st := range stations {
		done := in.attempted(st) - len(failures[i])
		report.Saved += done
		for _, f := range failures[i] {
			in.logger.Warn("series ingest failed",
				"station", st.Key(), "reach_id", st.ReachID, "series", f.Series, "error", f.Err)
		}
		report.Failures = append(report.Failures, failures[i]...)
	}
	in.logger.Info("ingest finished",
		"stations", report.Stations,
		"saved", report.Saved,
		"failures", len(report.Failures),
		"duration", time.Since(start),
	)
	return report, nil
}

func (in *Ingester) attempted(st domain.Station) int {
	n := 0
	for _, s := range in.series {
		if s != SeriesObserved || st.Gauged() {
			n++
		}
	}
	return n
}

func (in *Ingester) refresh(ctx context.Context, st domain.Station, s Series) error {
	err := in.fetchAndSave(ctx, st, s)
	outcome := "saved"
	if err != nil {
		outcome = "failed"
	}
	in.metrics.IngestedSeries.WithLabelValues(string(s), outcome).Inc()
	return err
}

// fetchAndSave stores one series. An empty series is an error so a reach
// missing upstream keeps its previous data.
func (in *Ingester) fetchAndSave(ctx context.Context, st domain.Station, s Series) error {
	switch s {
	case SeriesObserved:
		ts, err := in.observed.Observed(ctx, st.Code)
		if err != nil {
			return err
		}
		if ts.Len() == 0 {
			return fmt.Errorf("observed series %s: empty: %w", st.Code, domain.ErrDataUnavailable)
		}
		return in.store.SaveObserved(ctx, st.Code, ts)
	case SeriesSimulated:
		ts, err := in.simulations.HistoricSimulation(ctx, st.ReachID)
		if err != nil {
			return err
		}
		if ts.Len() == 0 {
			return fmt.Errorf("historic simulation %d: empty: %w", st.ReachID, domain.ErrDataUnavailable)
		}
		return in.store.SaveSimulated(ctx, st.ReachID, ts)
	case SeriesForecast:
		ens, err := in.forecasts.ForecastEnsemble(ctx, st.ReachID)
		if err != nil {
			return err
		}
		return in.store.SaveForecast(ctx, st.ReachID, ens)
	default:
		return fmt.Errorf("unknown series %q", s)
	}
}
