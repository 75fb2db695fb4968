// Command alert evaluates every catalog station and stores its alert code,
// once or on a cron schedule.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/fetch"
	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/geoglows"
	httpadapter "github.com/couchcryptid/streamflow-alert-service/internal/adapter/http"
	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/hydroshare"
	kafkaadapter "github.com/couchcryptid/streamflow-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/streamflow-alert-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/streamflow-alert-service/internal/config"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
	"github.com/couchcryptid/streamflow-alert-service/internal/pipeline"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := run(); err != nil {
		slog.Error("alert service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // closed on exit

	source := newSource(cfg, store, metrics, logger)
	evaluator := pipeline.NewEvaluator(source, pipeline.Options{
		AcceptancePercent: cfg.AcceptancePercent,
		ReturnPeriods:     cfg.ReturnPeriods,
		LowFlowBands:      cfg.LowFlowBands,
	}, logger)

	var publisher pipeline.AlertPublisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaAlertTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	runner := pipeline.NewRunner(store, evaluator, store, publisher, cfg.Workers, logger, metrics)

	if cfg.Schedule == "" {
		_, err := runner.Run(ctx)
		return err
	}
	return serve(ctx, cfg, runner, store, logger)
}

// newSource picks where series are read from. The remote source caches
// historical simulations, which change far less often than forecasts.
func newSource(cfg *config.Config, store *sqlstore.Store, metrics *observability.Metrics, logger *slog.Logger) pipeline.SeriesSource {
	if cfg.Source != config.SourceRemote {
		logger.Info("reading series from store", "driver", cfg.DBDriver)
		return store
	}
	opts := fetch.Options{
		MaxAttempts: cfg.FetchMaxAttempts,
		Backoff:     cfg.FetchBackoff,
		MaxBackoff:  cfg.FetchMaxBackoff,
		Timeout:     cfg.FetchTimeout,
	}
	gg := geoglows.NewClient(fetch.NewClient("geoglows", opts, metrics, logger), cfg.GEOGloWSURL, logger)
	hs := hydroshare.NewClient(fetch.NewClient("hydroshare", opts, metrics, logger), cfg.HydroShareURL, cfg.HydroShareResource)
	logger.Info("reading series from remote services",
		"geoglows_url", cfg.GEOGloWSURL,
		"hydroshare_url", cfg.HydroShareURL,
		"simulation_cache_size", cfg.SimulationCacheSize,
		"simulation_cache_ttl", cfg.SimulationCacheTTL,
	)
	return pipeline.NewRemoteSource(hs, geoglows.NewCachedSimulations(gg, cfg.SimulationCacheSize, cfg.SimulationCacheTTL, metrics), gg)
}

// serve runs the batch on cfg.Schedule behind the ops HTTP server until ctx ends.
func serve(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, store *sqlstore.Store, logger *slog.Logger) error {
	srv := httpadapter.NewServer(cfg.HTTPAddr, store, logger, store, runner)

	c := cron.New(
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if _, err := runner.Run(ctx); err != nil {
			logger.Error("alert run failed", "error", err)
		}
	}); err != nil {
		return err
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	c.Start()
	logger.Info("alert schedule started", "schedule", cfg.Schedule)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("alert run still in progress at shutdown")
	}

	logger.Info("shutdown complete")
	return nil
}

// cronLogger routes cron's scheduler logs through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
