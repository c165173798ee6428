package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/jbohren-forks/catkin-tools/engine/event"
	"github.com/jbohren-forks/catkin-tools/engine/metrics"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestMetrics_RecordsLifecycleTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "run-123")

	m.JobQueued("a")
	m.JobStarted("a")
	m.JobFinished("a", true)
	m.JobAbandoned("b", event.PeerFailed)

	families := gather(t, reg)

	require.Equal(t, float64(1), families["buildengine_jobs_queued_total"].Metric[0].GetCounter().GetValue())
	require.Equal(t, float64(1), families["buildengine_jobs_started_total"].Metric[0].GetCounter().GetValue())
	require.Equal(t, float64(0), families["buildengine_active_jobs"].Metric[0].GetGauge().GetValue())

	finished := families["buildengine_jobs_finished_total"].Metric
	require.Len(t, finished, 1)
	require.Equal(t, float64(1), finished[0].GetCounter().GetValue())

	abandoned := families["buildengine_jobs_abandoned_total"].Metric
	require.Len(t, abandoned, 1)
	require.Equal(t, float64(1), abandoned[0].GetCounter().GetValue())
}
