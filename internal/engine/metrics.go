package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени занял один проход оценки
	EvaluateDuration *prometheus.HistogramVec

	// Traffic: решения по итоговому действию
	DecisionsTotal *prometheus.CounterVec

	// Saturation: размер активного снапшота политик
	PolicyCacheSize prometheus.Gauge

	// Errors: сбои лимитера, деградировавшие в allow
	LimiterFailOpen prometheus.Counter

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge

	// Исполнение одобренных заявок
	ExecutionsTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EvaluateDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentguard_evaluate_duration_seconds",
			Help:    "Histogram of policy evaluation latencies.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"action"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentguard_decisions_total",
			Help: "Total number of policy decisions by resulting action.",
		}, []string{"action"}), // ALLOW, DENY, DEFER, RATE_LIMITED, MASK

		PolicyCacheSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentguard_policy_cache_size",
			Help: "Number of enabled policies in the active snapshot.",
		}),

		LimiterFailOpen: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agentguard_limiter_fail_open_total",
			Help: "Rate limit checks degraded to allow due to Redis failure.",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentguard_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		ExecutionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentguard_executions_total",
			Help: "Approved action executions by outcome.",
		}, []string{"outcome"}), // success, failed, skipped
	}
}
