package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	dnsRequests     *prometheus.CounterVec   // ipv64 api requests
	dnsDuration     *prometheus.HistogramVec // ipv64 api latency
	challenges      *prometheus.CounterVec   // dns-01 challenges handled
	certificates    *prometheus.CounterVec   // certificate orders
	credentialFails prometheus.Counter       // rejected bearer tokens
}

// Public interface for metrics operations. A nil *Metrics records nothing.
func (m *Metrics) IncDNSRequest(operation, zone string, success bool) {
	if m == nil {
		return
	}
	if !isValidOperation(operation) {
		return
	}
	if zone == "" {
		zone = "unknown"
	}
	status := boolToResult(success)
	m.dnsRequests.WithLabelValues(operation, zone, status).Inc()
}

func (m *Metrics) ObserveDNSRequest(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	if !isValidOperation(operation) {
		return
	}
	m.dnsDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) IncChallenge(phase string, success bool) {
	if m == nil {
		return
	}
	if !isValidPhase(phase) {
		return
	}
	status := boolToResult(success)
	m.challenges.WithLabelValues(phase, status).Inc()
}

func (m *Metrics) IncCertificate(success bool) {
	if m == nil {
		return
	}
	m.certificates.WithLabelValues(boolToResult(success)).Inc()
}

func (m *Metrics) IncCredentialFailure() {
	if m == nil {
		return
	}
	m.credentialFails.Inc()
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidOperation(op string) bool {
	switch op {
	case "create", "delete":
		return true
	}
	return false
}

func isValidPhase(phase string) bool {
	switch phase {
	case "present", "cleanup":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "ipv64_dns01"

	m := &Metrics{
		registry: registry,

		dnsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_requests_total",
			Help:      "Total IPv64 API requests",
		}, []string{"operation", "zone", "status"}),

		dnsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dns_request_duration_seconds",
			Help:      "Duration of IPv64 API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_total",
			Help:      "Total DNS-01 challenge operations",
		}, []string{"phase", "status"}),

		certificates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_total",
			Help:      "Total certificate orders",
		}, []string{"status"}),

		credentialFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_failures_total",
			Help:      "Bearer tokens rejected before any request",
		}),
	}

	if register {
		registry.MustRegister(
			m.dnsRequests,
			m.dnsDuration,
			m.challenges,
			m.certificates,
			m.credentialFails,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node_exporter textfile collector. Hooks are short lived so there is
// nothing to scrape.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
