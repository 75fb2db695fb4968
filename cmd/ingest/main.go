// Command ingest registers the stations of a CSV or YAML station list and
// refreshes their observed, simulated and forecast series in the store from
// HydroShare and GEOGloWS. Store, fetch and worker settings come from the
// same environment as the alert command.
//
// Usage:
//
//	go run ./cmd/ingest -stations stations.csv -series simulated,forecast
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/fetch"
	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/geoglows"
	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/hydroshare"
	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/streamflow-alert-service/internal/config"
	"github.com/couchcryptid/streamflow-alert-service/internal/ingest"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	list := flag.String("stations", "", "station list, CSV or YAML (.yaml/.yml)")
	series := flag.String("series", "observed,simulated,forecast", "series to refresh")
	codeCol := flag.String("code-column", ingest.DefaultColumns.Code, "CSV column holding the station code")
	reachCol := flag.String("reach-column", ingest.DefaultColumns.ReachID, "CSV column holding the reach id")
	nameCol := flag.String("name-column", ingest.DefaultColumns.Name, "CSV column holding the station name")
	flag.Parse()

	if *list == "" {
		flag.Usage()
		return errors.New("-stations is required")
	}
	selected, err := ingest.ParseSeries(*series)
	if err != nil {
		return fmt.Errorf("invalid -series: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	stations, err := ingest.LoadStations(*list, ingest.Columns{Code: *codeCol, ReachID: *reachCol, Name: *nameCol})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // closed on exit

	opts := fetch.Options{
		MaxAttempts: cfg.FetchMaxAttempts,
		Backoff:     cfg.FetchBackoff,
		MaxBackoff:  cfg.FetchMaxBackoff,
		Timeout:     cfg.FetchTimeout,
	}
	gg := geoglows.NewClient(fetch.NewClient("geoglows", opts, metrics, logger), cfg.GEOGloWSURL, logger)
	hs := hydroshare.NewClient(fetch.NewClient("hydroshare", opts, metrics, logger), cfg.HydroShareURL, cfg.HydroShareResource)
	sims := geoglows.NewCachedSimulations(gg, cfg.SimulationCacheSize, cfg.SimulationCacheTTL, metrics)

	in := ingest.New(store, hs, sims, gg, selected, cfg.Workers, logger, metrics)
	report, err := in.Run(ctx, stations)
	if err != nil {
		return err
	}
	if report.Saved == 0 && len(report.Failures) > 0 {
		return fmt.Errorf("no series saved, %d failures", len(report.Failures))
	}
	return nil
}
