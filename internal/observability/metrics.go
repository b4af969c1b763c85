package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_mapper"

// Metrics holds the Prometheus collectors for fetch, analysis and streaming.
type Metrics struct {
	// Analysis runs.
	Runs        *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration prometheus.Histogram

	// Resource sources.
	FetchRequests *prometheus.CounterVec   // labels: source={overpass,file}, outcome={success,error}
	FetchDuration *prometheus.HistogramVec // labels: source
	ResourceCache *prometheus.CounterVec   // labels: result={hit,miss}

	// Latest report.
	Resources       prometheus.Gauge
	Zones           prometheus.Gauge
	ResourcesAtRisk prometheus.Gauge
	Records         prometheus.Gauge

	StreamSubscribers prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Runs,
		m.RunDuration,
		m.FetchRequests,
		m.FetchDuration,
		m.ResourceCache,
		m.Resources,
		m.Zones,
		m.ResourcesAtRisk,
		m.Records,
		m.StreamSubscribers,
	)
	return m
}

// NewUnregisteredMetrics creates metrics that are not attached to any
// registry. Used by tests and by one-shot commands that never serve /metrics.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Analysis runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_run_duration_seconds",
			Help:      "Duration of a full fetch, generate and analyze run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Resource fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Resource fetch duration by source.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		ResourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_cache_total",
			Help:      "Resource cache lookups by result.",
		}, []string{"result"}),
		Resources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources",
			Help:      "Resources in the latest report.",
		}),
		Zones: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hazard_zones",
			Help:      "Hazard zones in the latest report.",
		}),
		ResourcesAtRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resources_at_risk",
			Help:      "Distinct resources inside at least one zone in the latest report.",
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vulnerability_records",
			Help:      "Resource and zone containment pairs in the latest report.",
		}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Open report stream subscriptions.",
		}),
	}
}
