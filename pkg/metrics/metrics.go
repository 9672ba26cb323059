package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Access gate metrics
	AccessDecisions *prometheus.CounterVec
	GateLatency     *prometheus.HistogramVec

	// PHI codec metrics
	CodecOperations *prometheus.CounterVec

	// Audit trail metrics
	AuditWrites       *prometheus.CounterVec
	AuditEscalations  prometheus.Counter
	RetentionSweeps   prometheus.Counter
	RetentionExpunged prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		AccessDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "access_decisions_total",
			Help:      "Authorization decisions by capability and outcome",
		}, []string{"capability", "outcome"}),
		GateLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gate_operation_duration_seconds",
			Help:      "Duration of protected-resource operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		CodecOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phi_codec_operations_total",
			Help:      "PHI field encrypt/decrypt operations by status",
		}, []string{"operation", "status"}),
		AuditWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_writes_total",
			Help:      "Audit trail writes by status (ok, retried, fallback, escalated)",
		}, []string{"status"}),
		AuditEscalations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_escalations_total",
			Help:      "Audit writes that exhausted retry and fallback and were escalated",
		}),
		RetentionSweeps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retention_sweeps_total",
			Help:      "Completed audit retention sweep runs",
		}),
		RetentionExpunged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retention_entries_expunged_total",
			Help:      "Audit entries removed after their retention expiry",
		}),
	}
}
