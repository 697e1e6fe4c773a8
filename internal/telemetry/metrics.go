package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build and discard instances
// freely. One value is created per process at startup and passed down by
// handle; there is no package-level registration.
type Metrics struct {
	registry *prometheus.Registry

	TasksSent              *prometheus.CounterVec
	TaskSendDuration       *prometheus.HistogramVec
	TasksProcessed         *prometheus.CounterVec
	TaskProcessingDuration *prometheus.HistogramVec
	QueueWaitTime          *prometheus.GaugeVec
	AIPredictions          *prometheus.CounterVec
	AIPredictionLatency    *prometheus.HistogramVec
	AIModelReady           *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TasksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "producer_tasks_sent_total",
			Help: "Tasks published to the broker",
		}, []string{"task_type", "queue_name"}),
		TaskSendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "producer_task_send_duration_seconds",
			Help: "End-to-end publish latency including prediction",
		}, []string{"task_type"}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_tasks_processed_total",
			Help: "Deliveries that reached a terminal or requeued state",
		}, []string{"task_type", "queue_name", "status"}),
		TaskProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "consumer_task_processing_duration_seconds",
			Help: "Handler execution time",
		}, []string{"task_type"}),
		QueueWaitTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consumer_queue_wait_time_seconds",
			Help: "Time the last delivery spent waiting in its queue",
		}, []string{"queue_name"}),
		AIPredictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_predictions_total",
			Help: "Prediction calls by backend, kind and outcome",
		}, []string{"backend", "type", "status"}),
		AIPredictionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "ai_prediction_latency_seconds",
			Help: "Prediction call latency",
		}, []string{"backend"}),
		AIModelReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ai_model_ready",
			Help: "1 when the named model tier is ready to serve",
		}, []string{"model"}),
	}

	m.registry.MustRegister(
		m.TasksSent,
		m.TaskSendDuration,
		m.TasksProcessed,
		m.TaskProcessingDuration,
		m.QueueWaitTime,
		m.AIPredictions,
		m.AIPredictionLatency,
		m.AIModelReady,
	)
	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for test assertions.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
