package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: поступившие задачи по уровню риска
	Submissions *prometheus.CounterVec

	// Итог задачи: COMPLETED / FAILED / DENIED / TIMED_OUT
	Outcomes *prometheus.CounterVec

	// Latency: полное время задачи, включая ожидание оператора и runner
	TaskDuration *prometheus.HistogramVec

	// Errors: классификация отказов исполнения
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Submissions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_tasks_submitted_total",
			Help: "Tasks submitted to the dispatcher by classified risk level.",
		}, []string{"level"}),

		Outcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_tasks_finished_total",
			Help: "Tasks by final status.",
		}, []string{"status"}),

		TaskDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskgate_task_duration_seconds",
			Help:    "Histogram of end-to-end task latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: runner, rate_limit, circuit_open, store

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskgate_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"connector_id"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "taskgate_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
