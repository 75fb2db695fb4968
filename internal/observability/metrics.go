package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamflow_alert"

// Metrics holds the Prometheus counters, histograms, and gauges for alert runs.
type Metrics struct {
	RunRunning      prometheus.Gauge
	RunDuration     prometheus.Histogram
	LastRunSuccess  prometheus.Gauge
	StationsTotal   prometheus.Counter
	StationFailures *prometheus.CounterVec // labels: stage
	AlertsComputed  *prometheus.CounterVec // labels: code
	LowFlowFallback prometheus.Counter

	// Data source metrics.
	FetchRequests   *prometheus.CounterVec   // labels: source, outcome={success,retry,exhausted}
	FetchDuration   *prometheus.HistogramVec // labels: source
	SimulationCache *prometheus.CounterVec   // labels: result={hit,miss,expired}

	// Ingest metrics.
	IngestedSeries *prometheus.CounterVec // labels: series, outcome={saved,failed}

	// Sink metrics.
	AlertsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      help("1 while an alert run is evaluating stations, 0 otherwise."),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      help("Duration of a complete alert run, from catalog load to bulk write."),
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      help("Unix time of the last run whose alerts were written."),
		}),
		StationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_evaluated_total",
			Help:      help("Stations evaluated, successful or not."),
		}),
		StationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_failures_total",
			Help:      help("Station evaluations that failed, by stage."),
		}, []string{"stage"}),
		AlertsComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_computed_total",
			Help:      help("Computed alert codes."),
		}, []string{"code"}),
		LowFlowFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_flow_fallback_total",
			Help:      help("Evaluations where the high-flow result was R0 and low flow was classified."),
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      help("Remote series requests by source and outcome."),
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      help("Remote series request duration in seconds."),
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SimulationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_cache_total",
			Help:      help("Historical simulation cache lookups by result."),
		}, []string{"result"}),
		IngestedSeries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_series_total",
			Help:      help("Series refreshed into the store by ingest runs, by series and outcome."),
		}, []string{"series", "outcome"}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      help("Alert records written to the Kafka topic."),
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      help("Failed alert publish batches."),
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.RunRunning,
		m.RunDuration,
		m.LastRunSuccess,
		m.StationsTotal,
		m.StationFailures,
		m.AlertsComputed,
		m.LowFlowFallback,
		m.FetchRequests,
		m.FetchDuration,
		m.SimulationCache,
		m.IngestedSeries,
		m.AlertsPublished,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
