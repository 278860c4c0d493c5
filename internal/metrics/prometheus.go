package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Accounting metrics
	FillsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_fills_processed_total",
			Help: "Total number of order fill events processed",
		},
		[]string{"pair", "side", "status"}, // status: success|error
	)

	FillProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_fill_processing_duration_seconds",
			Help:    "Fill event processing duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"side"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hermes_positions_open_count",
			Help: "Current number of open positions",
		},
	)

	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_positions_closed_total",
			Help: "Total number of positions closed",
		},
		[]string{"pair", "exit_reason"},
	)

	RealizedProfit = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_realized_profit_stake",
			Help: "Realized profit in stake currency, cumulative over closed positions",
		},
		[]string{"pair"},
	)

	StopAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_stop_adjustments_total",
			Help: "Total number of stop-loss level changes",
		},
		[]string{"pair", "kind"}, // kind: initial|trailing|refresh
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_kafka_messages_total",
			Help: "Total Kafka messages produced/consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: produced|consumed
	)

	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|redis
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(FillsProcessed)
	prometheus.MustRegister(FillProcessingDuration)
	prometheus.MustRegister(PositionsOpen)
	prometheus.MustRegister(PositionsClosed)
	prometheus.MustRegister(RealizedProfit)
	prometheus.MustRegister(StopAdjustments)
	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(DBQueries)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFill records one processed fill event
func RecordFill(pair, side string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	FillsProcessed.WithLabelValues(pair, side, status).Inc()
	FillProcessingDuration.WithLabelValues(side).Observe(duration.Seconds())
}

// RecordPositionClosed records a finalized position
func RecordPositionClosed(pair, exitReason string, realizedProfit float64) {
	if exitReason == "" {
		exitReason = "exit"
	}
	PositionsClosed.WithLabelValues(pair, exitReason).Inc()
	RecordRealizedProfit(pair, realizedProfit)
}

// RecordRealizedProfit accumulates realized profit per pair. Counters
// cannot go down, so losses are tracked as negative contributions via Add
// only when positive; otherwise they are skipped here and visible in the
// database-backed collector.
func RecordRealizedProfit(pair string, profit float64) {
	if profit > 0 {
		RealizedProfit.WithLabelValues(pair).Add(profit)
	}
}

// RecordStopAdjustment records a stop-loss level change
func RecordStopAdjustment(pair, kind string) {
	StopAdjustments.WithLabelValues(pair, kind).Inc()
}

// RecordKafkaMessage records a produced or consumed Kafka message
func RecordKafkaMessage(topic, direction string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, direction, status).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueries.WithLabelValues(database, operation, status).Inc()
}
