package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dam_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL runs.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Run metrics, labelled by pipeline={dams,weather,alerts}.
	Runs        *prometheus.CounterVec   // labels: pipeline, outcome={success,error}
	RunDuration *prometheus.HistogramVec // labels: pipeline
	Artifacts   *prometheus.CounterVec   // labels: pipeline
	Fetches     *prometheus.CounterVec   // labels: source, outcome={success,error}

	// Normalization metrics.
	EntitiesMissing prometheus.Counter
	ParseFailures   *prometheus.CounterVec // labels: kind={date,alert}
	AlertsMerged    *prometheus.GaugeVec   // labels: category

	// Publication metrics.
	Publications *prometheus.CounterVec // labels: target={blob,kafka}, outcome={success,error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: provider, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: layer={memory,redis}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: provider
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by pipeline and outcome.",
		}, []string{"pipeline", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"pipeline"}),
		Artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "JSON artifacts written to the output directory.",
		}, []string{"pipeline"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Upstream dataset fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		EntitiesMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_missing_total",
			Help:      "Configured dams with no matching columns in the snapshot.",
		}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Rows or records dropped because they could not be parsed.",
		}, []string{"kind"}),
		AlertsMerged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_merged",
			Help:      "Alerts in the most recent merged batch.",
		}, []string{"category"}),
		Publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_total",
			Help:      "Artifact publications by target and outcome.",
		}, []string{"target", "outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when alert geocoding is enabled, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		m.PipelineRunning,
		m.Runs,
		m.RunDuration,
		m.Artifacts,
		m.Fetches,
		m.EntitiesMissing,
		m.ParseFailures,
		m.AlertsMerged,
		m.Publications,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}
