// Command seed writes a deterministic synthetic catalog, historical series
// and forecast ensembles into a store, so the alert service can run locally
// without the remote services.
//
// Usage:
//
//	go run ./cmd/seed -driver sqlite -dsn streamflow.db -stations 12
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	driver := flag.String("driver", sqlstore.DriverSQLite, "database driver: sqlite or postgres")
	dsn := flag.String("dsn", "streamflow.db", "database DSN")
	stations := flag.Int("stations", 12, "number of synthetic stations")
	years := flag.Int("years", 20, "years of daily history per station")
	days := flag.Int("forecast-days", 15, "forecast horizon in days")
	issued := flag.String("issued", "2024-06-01", "forecast issue date (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 1, "random seed")
	logFormat := flag.String("log-format", "text", "log format: json or text")
	flag.Parse()

	if *stations < 1 || *years < 2 || *days < 1 {
		flag.Usage()
		return fmt.Errorf("need at least 1 station, 2 years of history and 1 forecast day")
	}
	at, err := time.Parse(time.DateOnly, *issued)
	if err != nil {
		return fmt.Errorf("invalid -issued %q: %w", *issued, err)
	}

	logger := observability.NewLogger("info", *logFormat)
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, *driver, *dsn, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // closed on exit

	generated := synthesize(synthOptions{
		Stations:     *stations,
		Years:        *years,
		ForecastDays: *days,
		Issued:       at,
		Seed:         *seed,
	})
	for _, s := range generated {
		if err := store.UpsertStation(ctx, s.Station); err != nil {
			return err
		}
		if s.Station.Gauged() {
			if err := store.SaveObserved(ctx, s.Station.Code, s.Observed); err != nil {
				return err
			}
		}
		if err := store.SaveSimulated(ctx, s.Station.ReachID, s.Simulated); err != nil {
			return err
		}
		if err := store.SaveForecast(ctx, s.Station.ReachID, s.Forecast); err != nil {
			return err
		}
		logger.Info("station seeded",
			"station", s.Station.Key(),
			"reach_id", s.Station.ReachID,
			"scenario", s.Scenario,
			"history_days", s.Simulated.Len(),
		)
	}
	logger.Info("seed complete", "stations", len(generated), "dsn", *dsn)
	return nil
}
