// Package metrics holds the Prometheus collectors of the results engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	marks           *prometheus.CounterVec
	history         *prometheus.CounterVec
	reverts         prometheus.Counter
	conflicts       *prometheus.CounterVec
	summaryDuration *prometheus.HistogramVec
	policyReloads   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_marks_recorded_total",
			Help: "Marks submitted, by result model and outcome.",
		}, []string{"model", "status"}),
		history: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_history_entries_total",
			Help: "Ledger entries appended, by change type.",
		}, []string{"change_type"}),
		reverts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "results_reverts_total",
			Help: "Successful reverts to a history entry.",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_conflicts_total",
			Help: "Writes rejected because another writer changed the result first.",
		}, []string{"operation"}),
		summaryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "results_class_summary_duration_seconds",
			Help:    "Time spent computing a class summary.",
			Buckets: prometheus.DefBuckets,
		}, []string{"curriculum"}),
		policyReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_policy_reloads_total",
			Help: "Grading policy refreshes, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.marks, m.history, m.reverts, m.conflicts, m.summaryDuration, m.policyReloads)
	return m
}

func (m *Metrics) MarkRecorded(model, status string) {
	if m == nil {
		return
	}
	m.marks.WithLabelValues(model, status).Inc()
}

func (m *Metrics) HistoryAppended(changeType string) {
	if m == nil {
		return
	}
	m.history.WithLabelValues(changeType).Inc()
}

func (m *Metrics) Reverted() {
	if m == nil {
		return
	}
	m.reverts.Inc()
}

func (m *Metrics) Conflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveClassSummary(curriculum string, started time.Time) {
	if m == nil {
		return
	}
	m.summaryDuration.WithLabelValues(curriculum).Observe(time.Since(started).Seconds())
}

func (m *Metrics) PolicyReload(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.policyReloads.WithLabelValues(outcome).Inc()
}
