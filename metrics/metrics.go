package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts complaint submissions by outcome
	// (inserted, merged, error).
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jatriovijog",
		Subsystem: "pipeline",
		Name:      "submissions_total",
		Help:      "Total complaint submissions processed, labeled by outcome.",
	}, []string{"outcome"})

	// LLMCallsTotal counts LLM invocations by kind and result.
	LLMCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jatriovijog",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Total LLM calls, labeled by call kind (classify, duplicate, draft, parse_chat) and result.",
	}, []string{"kind", "result"})

	// LLMDurationSeconds measures LLM call latency by kind.
	LLMDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jatriovijog",
		Subsystem: "llm",
		Name:      "duration_seconds",
		Help:      "LLM call latency, labeled by call kind.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"kind"})

	// WorkerInFlight is the number of LLM calls currently holding a pool slot.
	WorkerInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jatriovijog",
		Subsystem: "llm",
		Name:      "worker_in_flight",
		Help:      "Current number of LLM calls executing on the worker pool.",
	})

	// EmailsTotal counts resolution-email dispatch attempts by result.
	EmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jatriovijog",
		Subsystem: "email",
		Name:      "sent_total",
		Help:      "Total resolution emails dispatched, labeled by result (sent, error, dropped).",
	}, []string{"result"})
)

// Register registers pipeline metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			LLMCallsTotal,
			LLMDurationSeconds,
			WorkerInFlight,
			EmailsTotal,
		)
	})
}
