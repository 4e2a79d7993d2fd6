// Package metrics provides Prometheus metrics for the travel-companion service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "travel_companion"

var (
	// InteractionsTotal counts handled interactions by mode, source and outcome.
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Total number of handled interactions",
		},
		[]string{"mode", "source", "outcome"},
	)

	// GenerationDuration tracks generation call latency per mode.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of generation calls including tool rounds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"mode"},
	)

	// ToolCallsTotal counts tool invocations made during generation.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations",
		},
		[]string{"tool_name", "status"},
	)

	// ToolDuration tracks tool execution time.
	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool_name"},
	)

	// DeliveriesTotal counts sink deliveries by outcome.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total notification deliveries",
		},
		[]string{"outcome"},
	)

	// DeliveryQueueDepth tracks pending sink tasks.
	DeliveryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_queue_depth",
			Help:      "Number of deliveries waiting for the sink loop",
		},
	)

	// HistoryTurns tracks the size of the shared conversation history.
	HistoryTurns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_turns",
			Help:      "Number of turns in the shared conversation history",
		},
	)

	// MediaPreprocessTotal counts media preparation results.
	MediaPreprocessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_preprocess_total",
			Help:      "Media preprocessing results by kind",
		},
		[]string{"kind", "result"},
	)

	// CircuitBreakerState reports breaker state per provider.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 0.5=half-open, 1=open)",
		},
		[]string{"provider"},
	)

	// ExternalProviderLatency tracks external API response time.
	ExternalProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_provider_latency_seconds",
			Help:      "External provider response time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "status"},
	)
)

// RecordInteraction records one handled interaction.
func RecordInteraction(mode, source, outcome string) {
	InteractionsTotal.WithLabelValues(mode, source, outcome).Inc()
}

// RecordGeneration records generation latency.
func RecordGeneration(mode string, durationSec float64) {
	GenerationDuration.WithLabelValues(mode).Observe(durationSec)
}

// RecordToolCall records a tool invocation.
func RecordToolCall(toolName, status string, durationSec float64) {
	if status == "" {
		status = "unknown"
	}
	ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	ToolDuration.WithLabelValues(toolName).Observe(durationSec)
}

// RecordDelivery records a sink delivery outcome.
func RecordDelivery(outcome string) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordMediaPreprocess records a media preparation result.
func RecordMediaPreprocess(kind, result string) {
	MediaPreprocessTotal.WithLabelValues(kind, result).Inc()
}

// RecordCircuitBreakerState publishes a breaker state value.
func RecordCircuitBreakerState(provider string, value float64) {
	CircuitBreakerState.WithLabelValues(provider).Set(value)
}

// RecordExternalProviderLatency records an external call.
func RecordExternalProviderLatency(provider, status string, durationSec float64) {
	ExternalProviderLatency.WithLabelValues(provider, status).Observe(durationSec)
}
