package accounting

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for ledger operations.
type Metrics struct {
	postings   *prometheus.CounterVec
	approvals  *prometheus.CounterVec
	retries    prometheus.Counter
	mismatches prometheus.Counter
}

// NewMetrics registers the ledger metrics. A nil registerer uses the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_postings_total",
			Help: "Journal posting attempts partitioned by outcome.",
		}, []string{"outcome"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_approvals_total",
			Help: "Approval decisions partitioned by decision.",
		}, []string{"decision"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_ledger_posting_retries_total",
			Help: "Unit-of-work retries caused by lock contention or stale versions.",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_ledger_trial_balance_mismatch_total",
			Help: "Trial balances whose debit and credit totals diverged.",
		}),
	}
	registerer.MustRegister(m.postings, m.approvals, m.retries, m.mismatches)
	return m
}

func (m *Metrics) posting(outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) approval(decision string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(decision).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) mismatch() {
	if m == nil {
		return
	}
	m.mismatches.Inc()
}
