// Package metrics holds the Prometheus collectors of the cashier service.
package metrics

import (
	"cashier-settlement-go/internal/coordinator"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/settlement"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cashier"

type Metrics struct {
	Registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	transitionsTotal     *prometheus.CounterVec
	callbacksTotal       *prometheus.CounterVec
	idempotencyReplays   *prometheus.CounterVec
	payoutsTotal         *prometheus.CounterVec
	coordinatorAttempts  *prometheus.CounterVec
	listenerPollsTotal   *prometheus.CounterVec
	listenerLastPollUnix prometheus.Gauge
}

// New registers every collector on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP requests.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		transitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Committed transaction state transitions.",
		}, []string{"type", "from", "to"}),
		callbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "callbacks_total",
			Help:      "Provider callbacks by kind and reconciliation result.",
		}, []string{"kind", "result"}),
		idempotencyReplays: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idempotency",
			Name:      "replays_total",
			Help:      "Requests answered from a stored idempotency record.",
		}, []string{"action", "status"}),
		payoutsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "initiations_total",
			Help:      "Payout initiations by provider and error code.",
		}, []string{"provider", "code"}),
		coordinatorAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "entry_transitions_total",
			Help:      "Client idempotency entry transitions.",
		}, []string{"action", "from", "to"}),
		listenerPollsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "polls_total",
			Help:      "Provider status polls by result.",
		}, []string{"result"}),
		listenerLastPollUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "last_poll_unix",
			Help:      "Unix time of the most recent provider poll.",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	m.httpRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveTransition matches ledger.WithTransitionObserver.
func (m *Metrics) ObserveTransition(t models.Transaction, e models.TransitionEvent) {
	from := string(e.FromState)
	if from == "" {
		from = "none"
	}
	m.transitionsTotal.WithLabelValues(string(t.Type), from, string(e.ToState)).Inc()
}

// CallbackReconciled implements settlement.Recorder.
func (m *Metrics) CallbackReconciled(kind settlement.Kind, result settlement.Result) {
	m.callbacksTotal.WithLabelValues(string(kind), string(result)).Inc()
}

func (m *Metrics) IdempotentReplay(action string, status models.IdempotencyStatus) {
	m.idempotencyReplays.WithLabelValues(action, string(status)).Inc()
}

func (m *Metrics) PayoutInitiated(provider, code string) {
	if code == "" {
		code = "ok"
	}
	m.payoutsTotal.WithLabelValues(provider, code).Inc()
}

// ObserveEntry matches coordinator.Observer.
func (m *Metrics) ObserveEntry(t coordinator.Transition) {
	m.coordinatorAttempts.WithLabelValues(t.Entry.Action, string(t.From), string(t.To)).Inc()
}

func (m *Metrics) ListenerPolled(result string, unix float64) {
	m.listenerPollsTotal.WithLabelValues(result).Inc()
	m.listenerLastPollUnix.Set(unix)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
