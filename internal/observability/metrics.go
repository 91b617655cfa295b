// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	BarsReceived    *prometheus.CounterVec
	ParseErrors     prometheus.Counter
	TransportFaults prometheus.Counter
	Failovers       prometheus.Counter
	ActiveSource    *prometheus.GaugeVec

	// Persistence metrics
	BarsPersisted     prometheus.Counter
	DuplicateBars     prometheus.Counter
	PersistenceErrors prometheus.Counter

	// Bridge metrics
	BridgeDepth prometheus.Gauge

	// Archive metrics
	BarsArchived  prometheus.Counter
	ArchiveErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_feed_lab"
	}

	return &Metrics{
		BarsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "bars_received_total",
			Help:      "Total number of bars received by feed source",
		}, []string{"source"}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "parse_errors_total",
			Help:      "Total number of unparseable relay payloads",
		}),
		TransportFaults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "transport_faults_total",
			Help:      "Total number of transient relay transport faults",
		}),
		Failovers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "failovers_total",
			Help:      "Total number of primary-to-fallback failovers",
		}),
		ActiveSource: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "active_source",
			Help:      "Which feed source is active (1 = active, 0 = inactive)",
		}, []string{"source"}),

		BarsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bars_persisted_total",
			Help:      "Total number of bars written to live_prices",
		}),
		DuplicateBars: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "duplicate_bars_total",
			Help:      "Total number of redelivered bars dropped on the natural key",
		}),
		PersistenceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "persistence_errors_total",
			Help:      "Total number of swallowed bar persistence errors",
		}),

		BridgeDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "depth",
			Help:      "Current number of bars queued between feed and consumer",
		}),

		BarsArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "bars_archived_total",
			Help:      "Total number of bars flushed to the ClickHouse archive",
		}),
		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Total number of dropped archive flush batches",
		}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBarReceived increments the bars received counter for a source.
func RecordBarReceived(source string) {
	DefaultMetrics.BarsReceived.WithLabelValues(source).Inc()
}

// RecordParseError increments the relay parse error counter.
func RecordParseError() {
	DefaultMetrics.ParseErrors.Inc()
}

// RecordTransportFault increments the transient transport fault counter.
func RecordTransportFault() {
	DefaultMetrics.TransportFaults.Inc()
}

// RecordFailover records a primary-to-fallback failover.
func RecordFailover() {
	DefaultMetrics.Failovers.Inc()
}

// SetActiveSource marks one source active and the others inactive.
func SetActiveSource(source string) {
	for _, s := range []string{"primary", "fallback"} {
		v := 0.0
		if s == source {
			v = 1.0
		}
		DefaultMetrics.ActiveSource.WithLabelValues(s).Set(v)
	}
}

// RecordBarPersisted increments the persisted bar counter.
func RecordBarPersisted() {
	DefaultMetrics.BarsPersisted.Inc()
}

// RecordDuplicateBar increments the dropped duplicate counter.
func RecordDuplicateBar() {
	DefaultMetrics.DuplicateBars.Inc()
}

// RecordPersistenceError increments the swallowed persistence error counter.
func RecordPersistenceError() {
	DefaultMetrics.PersistenceErrors.Inc()
}

// SetBridgeDepth updates the bridge depth gauge.
func SetBridgeDepth(depth int) {
	DefaultMetrics.BridgeDepth.Set(float64(depth))
}

// RecordBarsArchived adds to the archived bar counter.
func RecordBarsArchived(n int) {
	DefaultMetrics.BarsArchived.Add(float64(n))
}

// RecordArchiveError increments the dropped archive batch counter.
func RecordArchiveError() {
	DefaultMetrics.ArchiveErrors.Inc()
}
