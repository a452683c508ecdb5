package approval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Заявки, отправленные оператору, по уровню риска
	Requests *prometheus.CounterVec
	// Исходы гейта: APPROVED / DENIED / TIMED_OUT
	Decisions *prometheus.CounterVec
	// Сколько задач сейчас висит на гейте
	Pending prometheus.Gauge
	// Сколько оператор думал
	WaitDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_approval_requests_total",
			Help: "Approval requests sent to operators.",
		}, []string{"level"}),

		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskgate_approval_decisions_total",
			Help: "Resolved approval gates by decision.",
		}, []string{"decision"}),

		Pending: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "taskgate_approval_pending",
			Help: "Tasks currently suspended on the approval gate.",
		}),

		WaitDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskgate_approval_wait_seconds",
			Help:    "Time a task spent waiting for an operator decision.",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"decision"}),
	}
}
