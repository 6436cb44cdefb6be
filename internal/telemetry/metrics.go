package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	trainingCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedclient_training_runs_total",
			Help: "Total number of local training runs by outcome",
		},
		[]string{"status"},
	)

	trainingDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedclient_training_duration_seconds",
			Help:    "Duration of local training runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	submissionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedclient_update_submissions_total",
			Help: "Total number of model update submissions by outcome",
		},
		[]string{"status"},
	)

	reconnectCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedclient_ws_reconnect_attempts_total",
			Help: "Total number of websocket reconnection attempts",
		},
	)

	bufferSizeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedclient_training_buffer_size",
			Help: "Number of interaction records in the training buffer",
		},
	)

	notificationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedclient_notifications_total",
			Help: "Total number of notifications emitted by type",
		},
		[]string{"type"},
	)
)

// MetricsHandler returns an http.Handler that serves the metrics endpoint
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordTraining records the outcome and duration of one training run
func RecordTraining(status string, duration time.Duration) {
	trainingCounter.WithLabelValues(status).Inc()
	if duration > 0 {
		trainingDurationHistogram.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// RecordSubmission records the outcome of one model update submission
func RecordSubmission(status string) {
	submissionCounter.WithLabelValues(status).Inc()
}

// RecordReconnectAttempt counts a websocket reconnection attempt
func RecordReconnectAttempt() {
	reconnectCounter.Inc()
}

// UpdateBufferSize tracks the training buffer size
func UpdateBufferSize(size int) {
	bufferSizeGauge.Set(float64(size))
}

// RecordNotification counts an emitted notification by type
func RecordNotification(notificationType string) {
	notificationCounter.WithLabelValues(notificationType).Inc()
}
