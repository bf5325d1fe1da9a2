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
	NotificationsReceived *prometheus.CounterVec
	Reconnects            prometheus.Counter
	HighestSlotSeen       prometheus.Gauge

	// Extraction metrics
	TransactionsFetched prometheus.Counter
	CandidatesExtracted *prometheus.CounterVec
	ExtractionErrors    *prometheus.CounterVec

	// Enrichment metrics
	LookupFailures *prometheus.CounterVec
	CacheHits      prometheus.Counter

	// Decision metrics
	Verdicts          *prometheus.CounterVec
	TriggersFired     *prometheus.CounterVec
	DecisionLatency   *prometheus.HistogramVec
	ActiveSessions    prometheus.Gauge
	SessionsCompleted *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency  *prometheus.HistogramVec
	HTTPCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_watcher"
	}

	return &Metrics{
		NotificationsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "notifications_total",
			Help:      "Decoded feed notifications by kind",
		}, []string{"kind"}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of subscription reconnect attempts",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		TransactionsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "transactions_fetched_total",
			Help:      "Total number of transactions fetched for extraction",
		}),
		CandidatesExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "candidates_total",
			Help:      "Trade candidates extracted by direction",
		}, []string{"direction"}),
		ExtractionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "errors_total",
			Help:      "Extraction failures by stage",
		}, []string{"stage"}),

		LookupFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "lookup_failures_total",
			Help:      "Failed enrichment lookups by source",
		}, []string{"source"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "metadata_cache_hits_total",
			Help:      "Token metadata served from the local store",
		}),

		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "verdicts_total",
			Help:      "Decision verdicts by value",
		}, []string{"verdict"}),
		TriggersFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "triggers_fired_total",
			Help:      "Execution triggers fired by status",
		}, []string{"status"}),
		DecisionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "engine_latency_seconds",
			Help:      "Decision engine latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "active_sessions",
			Help:      "Number of running watch sessions",
		}),
		SessionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "sessions_completed_total",
			Help:      "Finished watch sessions by termination reason",
		}, []string{"reason"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HTTPCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "call_latency_seconds",
			Help:      "Outbound HTTP API latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNotification counts a decoded feed notification.
func RecordNotification(kind string) {
	DefaultMetrics.NotificationsReceived.WithLabelValues(kind).Inc()
}

// RecordReconnect counts a reconnect attempt.
func RecordReconnect() {
	DefaultMetrics.Reconnects.Inc()
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordTransactionFetched counts a fetched transaction.
func RecordTransactionFetched() {
	DefaultMetrics.TransactionsFetched.Inc()
}

// RecordCandidate counts an extracted trade candidate.
func RecordCandidate(direction string) {
	DefaultMetrics.CandidatesExtracted.WithLabelValues(direction).Inc()
}

// RecordExtractionError records an extraction failure.
func RecordExtractionError(stage string) {
	DefaultMetrics.ExtractionErrors.WithLabelValues(stage).Inc()
}

// RecordLookupFailure records a failed metadata or price lookup.
func RecordLookupFailure(source string) {
	DefaultMetrics.LookupFailures.WithLabelValues(source).Inc()
}

// RecordCacheHit counts a metadata cache hit.
func RecordCacheHit() {
	DefaultMetrics.CacheHits.Inc()
}

// RecordVerdict records a decision verdict and engine latency.
func RecordVerdict(engine, verdict string, seconds float64) {
	DefaultMetrics.Verdicts.WithLabelValues(verdict).Inc()
	DefaultMetrics.DecisionLatency.WithLabelValues(engine).Observe(seconds)
}

// RecordTrigger records an execution trigger outcome.
func RecordTrigger(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.TriggersFired.WithLabelValues(status).Inc()
}

// SessionStarted increments the active sessions gauge.
func SessionStarted() {
	DefaultMetrics.ActiveSessions.Inc()
}

// SessionFinished decrements the active sessions gauge and counts the reason.
func SessionFinished(reason string) {
	DefaultMetrics.ActiveSessions.Dec()
	DefaultMetrics.SessionsCompleted.WithLabelValues(reason).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordHTTPLatency records outbound HTTP API latency.
func RecordHTTPLatency(service, operation string, seconds float64) {
	DefaultMetrics.HTTPCallLatency.WithLabelValues(service, operation).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
