// Package metrics exposes Prometheus counters for device calls, object
// mutations, commits and routing decisions on a private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fwauto"

// Metrics records engine activity. A nil *Metrics, or one built by
// Disabled, accepts every call and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	deviceCalls    *prometheus.CounterVec
	deviceDuration *prometheus.HistogramVec
	mutations      *prometheus.CounterVec
	retries        *prometheus.CounterVec
	commits        *prometheus.CounterVec
	pollAttempts   prometheus.Histogram
	routes         *prometheus.CounterVec
	workflowSteps  *prometheus.CounterVec
}

// New creates an enabled metrics collector on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		deviceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_calls_total",
				Help:      "Device API requests by request type and result category",
			},
			[]string{"type", "result"},
		),
		deviceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "device_call_duration_seconds",
				Help:      "Device API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Object operations by operation, object type and outcome status",
			},
			[]string{"operation", "object_type", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Device calls retried after a connectivity failure",
			},
			[]string{"operation"},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_total",
				Help:      "Commit runs by outcome status",
			},
			[]string{"status"},
		),
		pollAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "commit_poll_attempts",
				Help:      "Job status polls per synchronous commit",
				Buckets:   []float64{1, 2, 5, 10, 20, 40, 60},
			},
		),
		routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Intent routing decisions by route and whether keywords forced it",
			},
			[]string{"route", "forced"},
		),
		workflowSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_steps_total",
				Help:      "Workflow steps executed by action and status",
			},
			[]string{"action", "status"},
		),
	}

	registry.MustRegister(
		m.deviceCalls,
		m.deviceDuration,
		m.mutations,
		m.retries,
		m.commits,
		m.pollAttempts,
		m.routes,
		m.workflowSteps,
	)

	return m
}

// Disabled returns a collector that records nothing.
func Disabled() *Metrics {
	return &Metrics{}
}

// Enabled reports whether observations are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// Registry returns the private registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordDeviceCall counts one device API request. result is an error
// category, or "ok".
func (m *Metrics) RecordDeviceCall(reqType, result string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.deviceCalls.WithLabelValues(reqType, result).Inc()
	m.deviceDuration.WithLabelValues(reqType).Observe(duration.Seconds())
}

// RecordMutation counts one object operation outcome.
func (m *Metrics) RecordMutation(operation, objectType, status string) {
	if !m.Enabled() {
		return
	}
	m.mutations.WithLabelValues(operation, objectType, status).Inc()
}

// RecordRetry counts a retried device call.
func (m *Metrics) RecordRetry(operation string) {
	if !m.Enabled() {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

// RecordCommit counts a commit outcome. polls is zero for asynchronous or
// failed submissions and is not observed in that case.
func (m *Metrics) RecordCommit(status string, polls int) {
	if !m.Enabled() {
		return
	}
	m.commits.WithLabelValues(status).Inc()
	if polls > 0 {
		m.pollAttempts.Observe(float64(polls))
	}
}

// RecordRoute counts a routing decision.
func (m *Metrics) RecordRoute(route string, forced bool) {
	if !m.Enabled() {
		return
	}
	f := "false"
	if forced {
		f = "true"
	}
	m.routes.WithLabelValues(route, f).Inc()
}

// RecordWorkflowStep counts one executed workflow step.
func (m *Metrics) RecordWorkflowStep(action, status string) {
	if !m.Enabled() {
		return
	}
	m.workflowSteps.WithLabelValues(action, status).Inc()
}

// WriteFile writes the current values to path in the text exposition
// format, for node_exporter's textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if !m.Enabled() {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
