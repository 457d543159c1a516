// Package metrics exposes Prometheus instrumentation for the KSI core:
// counts of verification outcomes by error code, and histograms of
// signing/extending round-trip latency. Grounded on the standard
// client_golang NewCounterVec/NewHistogramVec idiom; no teacher file
// wires prometheus directly; this is the library's own collaborator,
// narrow enough that a caller embedding the core need not register it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric the core emits. A nil *Collectors
// disables instrumentation without branching at call sites.
type Collectors struct {
	VerificationsTotal *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RequestsTotal      *prometheus.CounterVec
	PubfileCacheHits   prometheus.Counter
	PubfileCacheMisses prometheus.Counter
}

// New constructs and registers the KSI core's collectors against reg.
// Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to join the process-wide one.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ksi",
			Subsystem: "policy",
			Name:      "verifications_total",
			Help:      "Verification policy outcomes, labeled by policy, outcome, and error code.",
		}, []string{"policy", "outcome", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ksi",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Signer/extender request round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ksi",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Signer/extender requests, labeled by operation and result.",
		}, []string{"operation", "result"}),
		PubfileCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ksi",
			Subsystem: "pubfile",
			Name:      "cache_hits_total",
			Help:      "Publications-file cache hits.",
		}),
		PubfileCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ksi",
			Subsystem: "pubfile",
			Name:      "cache_misses_total",
			Help:      "Publications-file cache misses (fetch performed).",
		}),
	}
	reg.MustRegister(c.VerificationsTotal, c.RequestDuration, c.RequestsTotal, c.PubfileCacheHits, c.PubfileCacheMisses)
	return c
}

// ObserveVerification records one policy evaluation's outcome.
func (c *Collectors) ObserveVerification(policy, outcome, code string) {
	if c == nil {
		return
	}
	c.VerificationsTotal.WithLabelValues(policy, outcome, code).Inc()
}

// ObserveRequest records one signer/extender round trip.
func (c *Collectors) ObserveRequest(operation, result string, seconds float64) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(operation, result).Inc()
	c.RequestDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveCache records a publications-file cache hit or miss.
func (c *Collectors) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.PubfileCacheHits.Inc()
		return
	}
	c.PubfileCacheMisses.Inc()
}
