// Package metrics exposes sonar's Prometheus collectors. Metrics implements
// scanner.Recorder so the probe executor reports into it directly.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velemoonkon/sonar/pkg/scanner"
)

const (
	// Namespace for all sonar metrics
	namespace = "sonar"

	// Subsystems
	subsystemProbe = "probe"
	subsystemScan  = "scan"
	subsystemHTTP  = "http"
)

// Metrics holds all Prometheus metric collectors on a private registry
type Metrics struct {
	// Probe metrics
	probesTotal    *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	probesInflight *prometheus.GaugeVec

	// Scan metrics
	scansTotal   *prometheus.CounterVec
	scansActive  *prometheus.GaugeVec
	scanDuration *prometheus.HistogramVec
	scanFound    *prometheus.CounterVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Completed probes by family and outcome state",
		},
		[]string{"family", "state"},
	)
	m.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of individual probes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"family"},
	)
	m.probesInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "inflight",
			Help:      "Probes currently in flight",
		},
		[]string{"family"},
	)

	m.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Finished scans by family and status (completed, cancelled, failed)",
		},
		[]string{"family", "status"},
	)
	m.scansActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Scans currently running",
		},
		[]string{"family"},
	)
	m.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of whole scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0},
		},
		[]string{"family"},
	)
	m.scanFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "found_total",
			Help:      "Open ports and resolved subdomains reported by scans",
		},
		[]string{"family"},
	)

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHTTP,
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemHTTP,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds (streams included)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		m.probesTotal, m.probeDuration, m.probesInflight,
		m.scansTotal, m.scansActive, m.scanDuration, m.scanFound,
		m.httpRequests, m.httpDuration,
	)

	// Register standard Go and process collectors for runtime visibility
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ScanStarted implements scanner.Recorder
func (m *Metrics) ScanStarted(family scanner.Family) {
	m.scansActive.WithLabelValues(string(family)).Inc()
}

// ScanFinished implements scanner.Recorder
func (m *Metrics) ScanFinished(family scanner.Family, summary scanner.Summary, err error) {
	f := string(family)
	m.scansActive.WithLabelValues(f).Dec()

	status := "completed"
	switch {
	case summary.Cancelled:
		status = "cancelled"
	case err != nil:
		status = "failed"
	}
	m.scansTotal.WithLabelValues(f, status).Inc()
	m.scanDuration.WithLabelValues(f).Observe((time.Duration(summary.DurationMs) * time.Millisecond).Seconds())
	m.scanFound.WithLabelValues(f).Add(float64(summary.Found))
}

// ProbeStarted implements scanner.Recorder
func (m *Metrics) ProbeStarted(family scanner.Family) {
	m.probesInflight.WithLabelValues(string(family)).Inc()
}

// ProbeFinished implements scanner.Recorder
func (m *Metrics) ProbeFinished(family scanner.Family, outcome scanner.Outcome) {
	f := string(family)
	m.probesInflight.WithLabelValues(f).Dec()
	m.probesTotal.WithLabelValues(f, string(outcome.State)).Inc()
	m.probeDuration.WithLabelValues(f).Observe(outcome.Duration.Seconds())
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, code int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

var _ scanner.Recorder = (*Metrics)(nil)
