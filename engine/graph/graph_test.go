package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jbohren-forks/catkin-tools/engine/graph"
	"github.com/jbohren-forks/catkin-tools/engine/job"
)

func TestLoad_ParsesJSON5Document(t *testing.T) {
	doc, err := graph.Load("testdata/example.json5")
	require.NoError(t, err)
	require.Len(t, doc.Jobs, 2)
	require.Equal(t, "pkg_a", doc.Jobs[0].JID)
	require.Equal(t, []string{"pkg_a"}, doc.Jobs[1].Deps)
}

func TestLoad_MissingFile_ReturnsError(t *testing.T) {
	_, err := graph.Load("testdata/does-not-exist.json5")
	require.Error(t, err)
}

func TestToJobs_BuildsCommandStages(t *testing.T) {
	doc, err := graph.Load("testdata/example.json5")
	require.NoError(t, err)

	jobs, err := doc.ToJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	require.Equal(t, "pkg_a", jobs[0].JID)
	require.Len(t, jobs[0].Stages, 2)

	cs, ok := jobs[0].Stages[0].(*job.CommandStage)
	require.True(t, ok)
	require.Equal(t, []string{"cmake", "."}, cs.Argv)

	csB, ok := jobs[1].Stages[0].(*job.CommandStage)
	require.True(t, ok)
	require.True(t, csB.StderrToStdout)
}

func TestToJobs_RejectsEmptyArgv(t *testing.T) {
	doc := &graph.Document{
		Jobs: []graph.Job{
			{JID: "bad", Stages: []graph.Stage{{Label: "build"}}},
		},
	}
	_, err := doc.ToJobs()
	require.Error(t, err)
}
