package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	backendInvocationsTotal *prometheus.CounterVec
	backendDuration         *prometheus.HistogramVec
	backendErrorsTotal      *prometheus.CounterVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentErrorsTotal *prometheus.CounterVec

	teamRunTotal    *prometheus.CounterVec
	teamRunDuration prometheus.Histogram

	activeRuns         prometheus.Gauge
	traceEventsTotal   *prometheus.CounterVec
	traceEventsDropped prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			backendInvocationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "backend_invocations_total",
					Help: "Total backend invocations by backend and status.",
				},
				[]string{"backend", "status"},
			),
			backendDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "backend_invocation_duration_seconds",
					Help:    "Backend invocation duration in seconds by backend.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend"},
			),
			backendErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "backend_errors_total",
					Help: "Total backend errors by backend and error kind.",
				},
				[]string{"backend", "kind"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_runs_total",
					Help: "Total agent runs by agent and status.",
				},
				[]string{"agent", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by agent.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			agentErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_errors_total",
					Help: "Total agent errors by agent.",
				},
				[]string{"agent"},
			),
			teamRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "team_runs_total",
					Help: "Total team runs by status.",
				},
				[]string{"status"},
			),
			teamRunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "team_run_duration_seconds",
					Help:    "Full team run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeRuns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_runs",
					Help: "Number of team runs currently executing.",
				},
			),
			traceEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trace_events_total",
					Help: "Total trace events recorded by kind.",
				},
				[]string{"kind"},
			),
			traceEventsDropped: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "trace_events_dropped_total",
					Help: "Trace events dropped because a sink faulted.",
				},
			),
		}

		prometheus.MustRegister(
			m.backendInvocationsTotal,
			m.backendDuration,
			m.backendErrorsTotal,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentErrorsTotal,
			m.teamRunTotal,
			m.teamRunDuration,
			m.activeRuns,
			m.traceEventsTotal,
			m.traceEventsDropped,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordBackendInvocation(backend string, duration time.Duration, success bool, errKind string) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.backendInvocationsTotal.WithLabelValues(backend, status).Inc()
	m.backendDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if !success {
		m.backendErrorsTotal.WithLabelValues(backend, errKind).Inc()
	}
}

func RecordAgentRun(agent string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(agent, status).Inc()
	m.agentRunDuration.WithLabelValues(agent).Observe(duration.Seconds())
	if !success {
		m.agentErrorsTotal.WithLabelValues(agent).Inc()
	}
}

func RecordTeamRun(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.teamRunTotal.WithLabelValues(status).Inc()
	m.teamRunDuration.Observe(duration.Seconds())
}

func SetActiveRuns(count int) {
	getMetrics().activeRuns.Set(float64(count))
}

func RecordTraceEvent(kind string) {
	getMetrics().traceEventsTotal.WithLabelValues(kind).Inc()
}

func RecordTraceEventDropped() {
	getMetrics().traceEventsDropped.Inc()
}
