// Package metrics implements D8: a prometheus-backed Metrics sink for the
// Scheduler. It is a pure observer — it never influences scheduling — fed
// exactly the same transitions that produce events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jbohren-forks/catkin-tools/engine/event"
)

// Metrics implements scheduler.Metrics, recording job lifecycle counts
// under a single run_id label so dashboards can distinguish concurrent
// engine invocations sharing a process (e.g. a long-lived server).
type Metrics struct {
	runID string

	jobsQueued    prometheus.Counter
	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsAbandoned *prometheus.CounterVec
	activeJobs    prometheus.Gauge
}

// New creates a Metrics sink labeled with runID and registers its
// collectors with reg.
func New(reg prometheus.Registerer, runID string) *Metrics {
	m := &Metrics{
		runID: runID,
		jobsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "buildengine",
			Name:        "jobs_queued_total",
			Help:        "Number of jobs that became ready to run.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "buildengine",
			Name:        "jobs_started_total",
			Help:        "Number of jobs that acquired a token and began executing.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "buildengine",
			Name:        "jobs_finished_total",
			Help:        "Number of jobs that ran to completion, by outcome.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, []string{"succeeded"}),
		jobsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "buildengine",
			Name:        "jobs_abandoned_total",
			Help:        "Number of jobs abandoned without running, by reason.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, []string{"reason"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "buildengine",
			Name:        "active_jobs",
			Help:        "Number of jobs currently executing.",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}),
	}

	reg.MustRegister(m.jobsQueued, m.jobsStarted, m.jobsFinished, m.jobsAbandoned, m.activeJobs)
	return m
}

// JobQueued implements scheduler.Metrics.
func (m *Metrics) JobQueued(string) { m.jobsQueued.Inc() }

// JobStarted implements scheduler.Metrics.
func (m *Metrics) JobStarted(string) {
	m.jobsStarted.Inc()
	m.activeJobs.Inc()
}

// JobFinished implements scheduler.Metrics.
func (m *Metrics) JobFinished(_ string, succeeded bool) {
	m.activeJobs.Dec()
	m.jobsFinished.WithLabelValues(boolLabel(succeeded)).Inc()
}

// JobAbandoned implements scheduler.Metrics.
func (m *Metrics) JobAbandoned(_ string, reason event.AbandonReason) {
	m.jobsAbandoned.WithLabelValues(string(reason)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
