package governance

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for governance decisions.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	ApprovalsTotal   *prometheus.CounterVec
	AuditEntries     *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
}

// NewMetrics registers the governance metrics once per process and
// returns the shared instance.
//
// Metrics:
//   - designgov_governance_decisions_total{check,outcome}
//   - designgov_governance_approvals_required_total{reason}
//   - designgov_audit_entries_total{mode}
//   - designgov_governance_rate_limited_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DecisionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "designgov_governance_decisions_total",
					Help: "Governance decisions by check and outcome",
				},
				[]string{"check", "outcome"}, // permission|approval|rate_limit, allow|deny
			),
			ApprovalsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "designgov_governance_approvals_required_total",
					Help: "Actions that required human approval, by reason",
				},
				[]string{"reason"},
			),
			AuditEntries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "designgov_audit_entries_total",
					Help: "Audit entries written, by mode",
				},
				[]string{"mode"}, // dry_run|commit
			),
			RateLimitedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "designgov_governance_rate_limited_total",
					Help: "Sessions refused by the session cap or the sliding window",
				},
			),
		}
	})
	return globalMetrics
}
