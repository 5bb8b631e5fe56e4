package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scan metrics
	ScanRuns       *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	ScanCandidates prometheus.Gauge
	GateRejections *prometheus.CounterVec
	SecondaryCalls *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Broker metrics
	PublishOperations *prometheus.CounterVec
}

// RunSummary is the part of a scan result the metrics care about.
type RunSummary struct {
	NoAppointments int
	NotEligible    int
	TopicRejected  int
	NoImprovement  int
	Emitted        int
	Duration       time.Duration
}

// New creates all application metrics and registers them with reg when it
// is not nil.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of outreach scans by result",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of outreach scans",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		ScanCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates",
			Help:      "Number of patients flagged by the last successful scan",
		}),
		GateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "gate_rejections_total",
			Help:      "Patients dropped by each gate of the scan",
		}, []string{"gate"}),
		SecondaryCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "secondary_calls_total",
			Help:      "Secondary classifier calls by result",
		}, []string{"result"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		PublishOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "publish_total",
			Help:      "Total number of broker publish operations",
		}, []string{"status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ScanRuns,
			m.ScanDuration,
			m.ScanCandidates,
			m.GateRejections,
			m.SecondaryCalls,
			m.HTTPRequests,
			m.HTTPLatency,
			m.PublishOperations,
		)
	}
	return m
}

// ObserveRun records a finished scan. A failed scan only bumps the error
// counter.
func (m *Metrics) ObserveRun(s RunSummary, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ScanRuns.WithLabelValues("error").Inc()
		return
	}
	m.ScanRuns.WithLabelValues("success").Inc()
	m.ScanDuration.Observe(s.Duration.Seconds())
	m.ScanCandidates.Set(float64(s.Emitted))
	m.GateRejections.WithLabelValues("no_appointments").Add(float64(s.NoAppointments))
	m.GateRejections.WithLabelValues("not_eligible").Add(float64(s.NotEligible))
	m.GateRejections.WithLabelValues("topic").Add(float64(s.TopicRejected))
	m.GateRejections.WithLabelValues("improvement").Add(float64(s.NoImprovement))
}

// ObserveSecondary records one secondary classifier call; result is
// "yes", "no" or "error".
func (m *Metrics) ObserveSecondary(result string) {
	if m == nil {
		return
	}
	m.SecondaryCalls.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.PublishOperations.WithLabelValues(status).Inc()
}
