package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type nodeMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	supply     *prometheus.GaugeVec
}

var (
	nodeMetricsOnce sync.Once
	nodeRegistry    *nodeMetrics
)

// Node returns the lazily-initialised metrics registry recording state
// transitions executed by the node.
func Node() *nodeMetrics {
	nodeMetricsOnce.Do(func() {
		nodeRegistry = &nodeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wager",
				Subsystem: "node",
				Name:      "operations_total",
				Help:      "State transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wager",
				Subsystem: "node",
				Name:      "failures_total",
				Help:      "Rejected state transitions segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "wager",
				Subsystem: "node",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of state transitions including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "wager",
				Subsystem: "node",
				Name:      "platform_supply",
				Help:      "Value held in ledgers and custody, per token, in whole base units.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			nodeRegistry.operations,
			nodeRegistry.failures,
			nodeRegistry.latency,
			nodeRegistry.supply,
		)
	})
	return nodeRegistry
}

// Observe records the outcome of a state transition. kind is empty on success.
func (m *nodeMetrics) Observe(operation, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.failures.WithLabelValues(operation, kind).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetSupply publishes the platform supply of token. Values beyond float64
// precision are approximated.
func (m *nodeMetrics) SetSupply(token string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	normalized := strings.ToUpper(strings.TrimSpace(token))
	if normalized == "" {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.supply.WithLabelValues(normalized).Set(value)
}
