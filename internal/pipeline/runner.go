// Package pipeline evaluates catalog stations and persists their alert codes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Catalog lists the stations to evaluate.
type Catalog interface {
	Stations(ctx context.Context) ([]domain.Station, error)
}

// StationEvaluator computes the alert of one station.
type StationEvaluator interface {
	Evaluate(ctx context.Context, st domain.Station) (Evaluation, error)
}

// AlertWriter persists the records of one run in a single write.
type AlertWriter interface {
	SaveAlerts(ctx context.Context, records []domain.AlertRecord) error
}

// AlertPublisher hands the records of one run to downstream readers.
type AlertPublisher interface {
	Publish(ctx context.Context, records []domain.AlertRecord) error
}

// Failure is one station that could not be evaluated.
type Failure struct {
	Station domain.Station
	Stage   domain.Stage
	Err     error
}

// RunReport summarizes one run. Records and Failures follow catalog order.
type RunReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Records   []domain.AlertRecord
	Failures  []Failure
}

// Evaluated returns the number of stations attempted.
func (r RunReport) Evaluated() int { return len(r.Records) + len(r.Failures) }

// Runner evaluates every catalog station on a bounded pool of workers and
// writes the successful alerts once all of them have finished.
type Runner struct {
	catalog   Catalog
	evaluator StationEvaluator
	writer    AlertWriter
	publisher AlertPublisher
	workers   int
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewRunner creates a Runner. publisher may be nil.
func NewRunner(catalog Catalog, evaluator StationEvaluator, writer AlertWriter, publisher AlertPublisher,
	workers int, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		catalog:   catalog,
		evaluator: evaluator,
		writer:    writer,
		publisher: publisher,
		workers:   workers,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has written its alerts.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no alert run has completed yet")
	}
	return nil
}

type outcome struct {
	record domain.AlertRecord
	err    error
}

// Run evaluates the catalog and writes the resulting alerts. A failing
// station is reported in RunReport.Failures and does not stop the others.
// If ctx is cancelled before every station finishes, nothing is written and
// ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context) (report RunReport, err error) {
	r.metrics.RunRunning.Set(1)
	defer r.metrics.RunRunning.Set(0)

	report.StartedAt = domain.Now()
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
	}()

	stations, err := r.catalog.Stations(ctx)
	if err != nil {
		return report, fmt.Errorf("load catalog: %w", err)
	}
	r.logger.Info("alert run started", "stations", len(stations), "workers", r.workers)

	outcomes := make([]outcome, len(stations))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, st := range stations {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ev, err := r.evaluator.Evaluate(ctx, st)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			outcomes[i] = outcome{record: ev.Record(report.StartedAt)}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		r.logger.Warn("alert run cancelled, nothing written", "reason", err)
		return report, err
	}

	for i, o := range outcomes {
		st := stations[i]
		r.metrics.StationsTotal.Inc()
		if o.err != nil {
			stage := domain.StageOf(o.err)
			report.Failures = append(report.Failures, Failure{Station: st, Stage: stage, Err: o.err})
			r.metrics.StationFailures.WithLabelValues(string(stage)).Inc()
			r.logger.Warn("station evaluation failed",
				"station", st.Key(), "reach_id", st.ReachID, "stage", stage, "error", o.err)
			continue
		}
		report.Records = append(report.Records, o.record)
		r.metrics.AlertsComputed.WithLabelValues(string(o.record.Code)).Inc()
		if o.record.LowFlowFallback {
			r.metrics.LowFlowFallback.Inc()
		}
		r.logger.Info("station evaluated",
			"station", st.Key(),
			"reach_id", st.ReachID,
			"alert", o.record.Code,
			"previous", o.record.Previous,
			"low_flow_fallback", o.record.LowFlowFallback,
		)
	}

	if err := r.writer.SaveAlerts(ctx, report.Records); err != nil {
		return report, fmt.Errorf("save alerts: %w", err)
	}
	r.metrics.LastRunSuccess.SetToCurrentTime()
	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	r.ready.Store(true)

	r.publish(ctx, report.Records)

	r.logger.Info("alert run finished",
		"evaluated", report.Evaluated(),
		"alerts", len(report.Records),
		"failures", len(report.Failures),
		"duration", time.Since(start),
	)
	return report, nil
}

// publish failures are logged and counted. They never fail a run whose
// alerts are already stored.
func (r *Runner) publish(ctx context.Context, records []domain.AlertRecord) {
	if r.publisher == nil || len(records) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, records); err != nil {
		r.metrics.PublishErrors.Inc()
		r.logger.Error("publish alerts failed", "count", len(records), "error", err)
		return
	}
	r.metrics.AlertsPublished.Add(float64(len(records)))
}
