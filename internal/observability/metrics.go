package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexa_report"

// Metrics holds the Prometheus counters, histograms, and gauges for the reporter.
type Metrics struct {
	// Location flow.
	LocateAttempts  *prometheus.CounterVec // labels: tier, outcome={success,timeout,permission_denied,...}
	LocateFallbacks prometheus.Counter
	StaleResults    *prometheus.CounterVec // labels: operation={locate,move,search}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={reverse,search}, outcome={success,error,empty,retry}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={reverse,search}

	// Report form and backend.
	ValidationFailures prometheus.Counter
	Submissions        *prometheus.CounterVec   // labels: outcome={success,rejected,error}
	BackendDuration    *prometheus.HistogramVec // labels: endpoint
	NearbyLookups      *prometheus.CounterVec   // labels: source={cache,network,stale}
	ActiveSessions     prometheus.Gauge
	EventsPublished    *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.LocateAttempts,
		m.LocateFallbacks,
		m.StaleResults,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.ValidationFailures,
		m.Submissions,
		m.BackendDuration,
		m.NearbyLookups,
		m.ActiveSessions,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		LocateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_attempts_total",
			Help:      help("Geolocation tier attempts by tier and outcome."),
		}, []string{"tier", "outcome"}),
		LocateFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_ip_fallbacks_total",
			Help:      help("Positions resolved by the IP-based fallback."),
		}),
		StaleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      help("Async results discarded because a newer request started."),
		}, []string{"operation"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocoding API requests by method and outcome."),
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Reverse geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Geocoding API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      help("Report submissions stopped by client-side validation."),
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      help("Report submissions by outcome."),
		}, []string{"outcome"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      help("Backend API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30},
		}, []string{"endpoint"}),
		NearbyLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nearby_lookups_total",
			Help:      help("Nearby pharmacy lookups by data source."),
		}, []string{"source"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      help("Report form sessions currently held by the gateway."),
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      help("Submitted-report events written to Kafka by outcome."),
		}, []string{"outcome"}),
	}
}
