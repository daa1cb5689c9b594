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
	LaunchesIngested  prometheus.Counter
	BuysIngested      prometheus.Counter
	FeedEventsDropped *prometheus.CounterVec
	FeedGaps          *prometheus.CounterVec
	HighestCursorSeen *prometheus.GaugeVec
	LateBufferSize    prometheus.Gauge

	// Classification metrics
	AnalysisRunsTotal    *prometheus.CounterVec
	AnalysisDuration     prometheus.Histogram
	WalletsClassified    *prometheus.GaugeVec
	InvalidEventsDropped prometheus.Counter

	// Copy-trade metrics
	TargetTradesReceived *prometheus.CounterVec
	OrdersByStatus       *prometheus.CounterVec
	OrdersSkipped        *prometheus.CounterVec
	SubmitLatency        *prometheus.HistogramVec
	SubmitRetries        prometheus.Counter
	SubmitReconciles     *prometheus.CounterVec
	ActiveFollowers      prometheus.Gauge
	OpenPositions        *prometheus.GaugeVec
	GovernorTransitions  *prometheus.CounterVec
	NotificationsDropped *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulAnalysis prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_copytrade_lab"
	}

	return &Metrics{
		// Feed metrics
		LaunchesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "launches_ingested_total",
			Help:      "Total number of token launches stored",
		}),
		BuysIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "buys_ingested_total",
			Help:      "Total number of buy events stored",
		}),
		FeedEventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_dropped_total",
			Help:      "Total number of feed events dropped by reason",
		}, []string{"reason"}),
		FeedGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "cursor_gaps_total",
			Help:      "Total number of cursor discontinuities by feed",
		}, []string{"feed"}),
		HighestCursorSeen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "highest_cursor_seen",
			Help:      "Highest feed cursor seen",
		}, []string{"feed"}),
		LateBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "lateness_buffer_size",
			Help:      "Events held in the lateness buffer",
		}),

		// Classification metrics
		AnalysisRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "runs_total",
			Help:      "Total number of classification runs by snapshot status",
		}, []string{"status"}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "run_duration_seconds",
			Help:      "Classification run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		WalletsClassified: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "wallets",
			Help:      "Wallets in the latest snapshot by tier",
		}, []string{"tier"}),
		InvalidEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "invalid_events_total",
			Help:      "Total number of invalid buy events dropped during bucketing",
		}),

		// Copy-trade metrics
		TargetTradesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "target_trades_total",
			Help:      "Total number of target wallet trades received by side",
		}, []string{"side"}),
		OrdersByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "orders_total",
			Help:      "Total number of mirrored orders reaching a status",
		}, []string{"status"}),
		OrdersSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "orders_skipped_total",
			Help:      "Total number of skipped mirrored orders by reason",
		}, []string{"reason"}),
		SubmitLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "submit_latency_seconds",
			Help:      "Broker submit latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		SubmitRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "submit_retries_total",
			Help:      "Total number of submit retries",
		}),
		SubmitReconciles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "reconciles_total",
			Help:      "Total number of status reconciliations by result",
		}, []string{"result"}),
		ActiveFollowers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "active_followers",
			Help:      "Number of follower workers running",
		}),
		OpenPositions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "open_positions",
			Help:      "Open positions per follower",
		}, []string{"follower"}),
		GovernorTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "state_transitions_total",
			Help:      "Total number of risk governor transitions by target state",
		}, []string{"state"}),
		NotificationsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Total number of notifications dropped by reason",
		}, []string{"reason"}),

		// Database metrics
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

		// Health metrics
		LastSuccessfulAnalysis: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_analysis_timestamp",
			Help:      "Unix timestamp of last successful classification run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFeedEvent counts a stored launch or buy.
func RecordFeedEvent(kind string) {
	switch kind {
	case "launch":
		DefaultMetrics.LaunchesIngested.Inc()
	case "buy":
		DefaultMetrics.BuysIngested.Inc()
	}
}

// RecordFeedDrop records a dropped feed event.
func RecordFeedDrop(reason string) {
	DefaultMetrics.FeedEventsDropped.WithLabelValues(reason).Inc()
}

// RecordFeedGap records a cursor discontinuity.
func RecordFeedGap(feed string) {
	DefaultMetrics.FeedGaps.WithLabelValues(feed).Inc()
}

// UpdateHighestCursor updates the highest cursor gauge for a feed.
func UpdateHighestCursor(feed string, cursor int64) {
	DefaultMetrics.HighestCursorSeen.WithLabelValues(feed).Set(float64(cursor))
}

// UpdateLateBuffer updates the lateness buffer gauge.
func UpdateLateBuffer(n int) {
	DefaultMetrics.LateBufferSize.Set(float64(n))
}

// RecordAnalysisRun records a classification run and the resulting tier counts.
func RecordAnalysisRun(status string, durationSeconds float64, tiers map[string]int, finishedUnix int64) {
	DefaultMetrics.AnalysisRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.AnalysisDuration.Observe(durationSeconds)
	for tier, n := range tiers {
		DefaultMetrics.WalletsClassified.WithLabelValues(tier).Set(float64(n))
	}
	DefaultMetrics.LastSuccessfulAnalysis.Set(float64(finishedUnix))
}

// RecordInvalidEvents counts buy events dropped during bucketing.
func RecordInvalidEvents(n int) {
	DefaultMetrics.InvalidEventsDropped.Add(float64(n))
}

// RecordTargetTrade counts an incoming target wallet trade.
func RecordTargetTrade(side string) {
	DefaultMetrics.TargetTradesReceived.WithLabelValues(side).Inc()
}

// RecordOrderStatus counts a mirrored order reaching status.
func RecordOrderStatus(status string) {
	DefaultMetrics.OrdersByStatus.WithLabelValues(status).Inc()
}

// RecordOrderSkipped counts a skipped order by reason.
func RecordOrderSkipped(reason string) {
	DefaultMetrics.OrdersSkipped.WithLabelValues(reason).Inc()
}

// RecordSubmit records broker submit latency by outcome.
func RecordSubmit(outcome string, seconds float64) {
	DefaultMetrics.SubmitLatency.WithLabelValues(outcome).Observe(seconds)
}

// RecordSubmitRetry counts a submit retry.
func RecordSubmitRetry() {
	DefaultMetrics.SubmitRetries.Inc()
}

// RecordReconcile records a broker status reconciliation result.
func RecordReconcile(result string) {
	DefaultMetrics.SubmitReconciles.WithLabelValues(result).Inc()
}

// SetActiveFollowers sets the number of running follower workers.
func SetActiveFollowers(n int) {
	DefaultMetrics.ActiveFollowers.Set(float64(n))
}

// SetOpenPositions sets the open position gauge for a follower.
func SetOpenPositions(follower string, n int) {
	DefaultMetrics.OpenPositions.WithLabelValues(follower).Set(float64(n))
}

// RecordGovernorTransition counts a risk governor state change.
func RecordGovernorTransition(state string) {
	DefaultMetrics.GovernorTransitions.WithLabelValues(state).Inc()
}

// RecordNotificationDropped counts a notification that was not delivered.
func RecordNotificationDropped(reason string) {
	DefaultMetrics.NotificationsDropped.WithLabelValues(reason).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
