package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: решения шлюза по исходам
	DecisionsTotal *prometheus.CounterVec

	// Latency: длительность исполнения операций
	ExecutionDuration *prometheus.HistogramVec

	// Saturation: заполненность очереди исполнения
	QueueDepth prometheus.Gauge

	// Errors: эскалации и нарушения границ
	EscalationsTotal prometheus.Counter
	ViolationsTotal  *prometheus.CounterVec

	// Доверие агентов (текущее значение)
	TrustScore *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gate_admission_decisions_total",
			Help: "Admission decisions by outcome and risk level.",
		}, []string{"outcome", "risk_level"}),

		ExecutionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gate_execution_duration_seconds",
			Help:    "Histogram of operation execution latencies.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation_type", "status"}),

		QueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gate_execution_queue_depth",
			Help: "Current number of approved operations waiting for execution.",
		}),

		EscalationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gate_escalations_total",
			Help: "Total number of operations escalated to a human.",
		}),

		ViolationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gate_boundary_violations_total",
			Help: "Safety boundary violations by operation type.",
		}, []string{"operation_type"}),

		TrustScore: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "gate_agent_trust_score",
			Help: "Current trust score per agent (0-100).",
		}, []string{"agent_id"}),
	}
}
