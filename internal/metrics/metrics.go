// Package metrics holds the prometheus collectors of the lifecycle components.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "tenant_lifecycle"

	LabelSuccess  = "success"
	LabelFailure  = "failure"
	LabelTimeout  = "timeout"
	LabelNoop     = "noop"
	LabelTerminal = "terminal"
)

type Metrics struct {
	JobRuns          *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	Deliveries       *prometheus.CounterVec
	DeployTriggers   *prometheus.CounterVec
	NamespaceApplies *prometheus.CounterVec
	Tenants          *prometheus.GaugeVec
}

func New() *Metrics {
	return &Metrics{
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Count of job runs by outcome",
		}, []string{"job", "result"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Histogram of job execution times",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"job", "result"}),

		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "deliveries_total",
			Help:      "Count of event deliveries by topic and outcome",
		}, []string{"topic", "result"}),

		DeployTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "deploy_triggers_total",
			Help:      "Count of per-service deploy triggers by outcome",
		}, []string{"service", "result"}),

		NamespaceApplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patcher",
			Name:      "namespace_applies_total",
			Help:      "Count of namespace patch applications by outcome",
		}, []string{"service", "result"}),

		Tenants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tenants",
			Help:      "The number of tenants per lifecycle status",
		}, []string{"status"}),
	}
}

func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobRuns,
		m.JobDuration,
		m.Deliveries,
		m.DeployTriggers,
		m.NamespaceApplies,
		m.Tenants,
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.PrometheusCollectors() {
		err := reg.Register(c)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *Metrics) JobFinished(job, result string, took time.Duration) {
	if m == nil {
		return
	}

	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job, result).Observe(took.Seconds())
}

func (m *Metrics) Delivered(topic, result string) {
	if m == nil {
		return
	}

	m.Deliveries.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) DeployTriggered(service, result string) {
	if m == nil {
		return
	}

	m.DeployTriggers.WithLabelValues(service, result).Inc()
}

func (m *Metrics) NamespaceApplied(service, result string) {
	if m == nil {
		return
	}

	m.NamespaceApplies.WithLabelValues(service, result).Inc()
}

// SetTenants replaces the tenant gauge with counts.
func (m *Metrics) SetTenants(counts map[string]int) {
	if m == nil {
		return
	}

	m.Tenants.Reset()

	for status, n := range counts {
		m.Tenants.WithLabelValues(status).Set(float64(n))
	}
}
