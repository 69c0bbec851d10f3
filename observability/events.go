package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// eventMetrics follows committed events from dispatch to their subscribers.
type eventMetrics struct {
	emitted  *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	indexed  *prometheus.CounterVec
	indexDur prometheus.Histogram
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the registry tracking committed wager events and their
// delivery to subscribers such as the explorer.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wager",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed events by owning module and event type.",
			}, []string{"module", "type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wager",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events a subscriber shed because its queue was full.",
			}, []string{"subscriber", "module"}),
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wager",
				Subsystem: "explorer",
				Name:      "indexed_total",
				Help:      "Explorer index attempts by outcome.",
			}, []string{"outcome"}),
			indexDur: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "wager",
				Subsystem: "explorer",
				Name:      "index_duration_seconds",
				Help:      "Time spent persisting one event and its bet projection.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			eventRegistry.emitted,
			eventRegistry.dropped,
			eventRegistry.indexed,
			eventRegistry.indexDur,
		)
	})
	return eventRegistry
}

// EventModule maps an event type such as "bet.accepted" to the module that
// owns it ("bet").
func EventModule(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	module, _, _ := strings.Cut(normalized, ".")
	if module == "" {
		return "unknown"
	}
	return module
}

// Record counts a committed event.
func (m *eventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(EventModule(normalized), normalized).Inc()
}

// Dropped counts an event subscriber discarded instead of blocking dispatch.
func (m *eventMetrics) Dropped(subscriber, eventType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(subscriber, EventModule(eventType)).Inc()
}

// Indexed records one explorer write.
func (m *eventMetrics) Indexed(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.indexed.WithLabelValues(outcome).Inc()
	m.indexDur.Observe(elapsed.Seconds())
}
