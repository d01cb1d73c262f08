package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registry     *prometheus.Registry

	turnsTotal        *prometheus.CounterVec
	turnDuration      prometheus.Histogram
	toolCallsTotal    *prometheus.CounterVec
	retriesTotal      prometheus.Counter
	truncationsTotal  prometheus.Counter
	promptsTotal      *prometheus.CounterVec
	historyRowsPruned prometheus.Counter
)

// EnsureRegistered initializes the private registry. Safe to call from any
// package init path; registration happens exactly once.
func EnsureRegistered() {
	registerOnce.Do(func() {
		registry = prometheus.NewRegistry()

		turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultpilot_turns_total",
			Help: "Agent turns by terminal outcome",
		}, []string{"outcome"})

		turnDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vaultpilot_turn_duration_seconds",
			Help:    "Wall time of one agent turn including retries",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		})

		toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultpilot_tool_calls_total",
			Help: "Tool invocations by policy decision",
		}, []string{"tool", "decision"})

		retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultpilot_turn_retries_total",
			Help: "Automatic retries of transient turn failures",
		})

		truncationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultpilot_output_truncations_total",
			Help: "Tool outputs cut down to the size cap",
		})

		promptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultpilot_prompts_total",
			Help: "User prompts by kind and answer",
		}, []string{"kind", "answer"})

		historyRowsPruned = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultpilot_history_rows_pruned_total",
			Help: "Turn records removed by the retention sweep",
		})

		registry.MustRegister(
			turnsTotal,
			turnDuration,
			toolCallsTotal,
			retriesTotal,
			truncationsTotal,
			promptsTotal,
			historyRowsPruned,
		)
	})
}

// Handler exposes the registry for an HTTP metrics endpoint.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordTurn counts one finished turn.
func RecordTurn(outcome string, elapsed time.Duration) {
	EnsureRegistered()
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(elapsed.Seconds())
}

// RecordToolCall counts one gated tool invocation.
func RecordToolCall(tool, decision string) {
	EnsureRegistered()
	toolCallsTotal.WithLabelValues(tool, decision).Inc()
}

// RecordRetry counts one automatic retry.
func RecordRetry() {
	EnsureRegistered()
	retriesTotal.Inc()
}

// RecordTruncation counts one capped tool output.
func RecordTruncation() {
	EnsureRegistered()
	truncationsTotal.Inc()
}

// RecordPrompt counts one user prompt round trip.
func RecordPrompt(kind, answer string) {
	EnsureRegistered()
	promptsTotal.WithLabelValues(kind, answer).Inc()
}

// RecordPruned counts history rows removed by the janitor.
func RecordPruned(n int) {
	EnsureRegistered()
	historyRowsPruned.Add(float64(n))
}
