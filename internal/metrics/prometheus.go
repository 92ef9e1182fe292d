// Package metrics exposes the Prometheus counters and histograms the
// invoker and the event sources update as invocations flow through the
// fabric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InvocationsTotal counts invocations created, labeled by function and
	// request kind (api/queue/bus).
	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_invocations_total",
		Help: "Total invocations created, by function and kind.",
	}, []string{"function", "kind"})

	// InvocationDurationSeconds measures the time between an invocation's
	// creation and its /response or /error completion.
	InvocationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fabric_invocation_duration_seconds",
		Help:    "Time from invocation creation to completion.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function", "outcome"})

	// NextPollsTotal counts /next requests, labeled by function and
	// whether one was available (hit) or not (miss).
	NextPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_next_polls_total",
		Help: "Total /next polls, by function and result.",
	}, []string{"function", "result"})

	// QueueDepth reports the current pending+processing depth per
	// function, sampled by the store's retention sweep.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fabric_queue_depth",
		Help: "Current invocation queue depth, by function and status.",
	}, []string{"function", "status"})

	// QueueSourcePollsTotal counts queue-source receive attempts, labeled
	// by queue and outcome.
	QueueSourcePollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_queue_source_polls_total",
		Help: "Total queue receive attempts, by queue and outcome.",
	}, []string{"queue", "outcome"})

	// BusEventsTotal counts PutEvents entries, labeled by bus and whether
	// they matched a rule.
	BusEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_bus_events_total",
		Help: "Total PutEvents entries accepted, by bus and match result.",
	}, []string{"bus", "result"})

	// CircuitBreakerState reports each function's breaker state as a
	// gauge (0=closed, 1=half_open, 2=open) for alerting.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fabric_circuit_breaker_state",
		Help: "Circuit breaker state by function: 0=closed, 1=half_open, 2=open.",
	}, []string{"function"})
)

// Handler returns the HTTP handler the metrics listener serves.
func Handler() http.Handler {
	return promhttp.Handler()
}
