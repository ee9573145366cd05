package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	stepsTotal      *prometheus.CounterVec
	challengesTotal *prometheus.CounterVec
	reasonerCalls   *prometheus.CounterVec
	taskDuration    prometheus.Histogram
	parkedSessions  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "tasks_total",
			Help:      "Tasks finished, by overall status.",
		}, []string{"status"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "steps_total",
			Help:      "Steps appended to task histories.",
		}, []string{"success"}),
		challengesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "challenges_total",
			Help:      "Challenges encountered, by resolution outcome.",
		}, []string{"outcome"}),
		reasonerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "reasoner_calls_total",
			Help:      "Reasoner calls, by calling component and outcome.",
		}, []string{"component", "outcome"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of task runs.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		parkedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scout",
			Name:      "parked_sessions",
			Help:      "Browser sessions kept open for a human.",
		}),
	}

	m.registry.MustRegister(
		m.tasksTotal,
		m.stepsTotal,
		m.challengesTotal,
		m.reasonerCalls,
		m.taskDuration,
		m.parkedSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTask(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(status).Inc()
	m.taskDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordStep(success bool) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *Metrics) RecordChallenge(outcome string) {
	if m == nil {
		return
	}
	m.challengesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordReasonerCall(component, outcome string) {
	if m == nil {
		return
	}
	m.reasonerCalls.WithLabelValues(component, outcome).Inc()
}

func (m *Metrics) SetParkedSessions(n int) {
	if m == nil {
		return
	}
	m.parkedSessions.Set(float64(n))
}
