// Package graph loads a declarative job graph document (JSON5) into the
// engine's job.Job model. Only Command stages are representable in the
// serialized form — Function stages are always constructed in Go code,
// since there is no portable way to serialize a callable.
package graph

import (
	"os"

	"github.com/flynn/json5"

	"github.com/jbohren-forks/catkin-tools/engine/job"
	"github.com/jbohren-forks/catkin-tools/go/skerr"
)

// Stage describes one Command stage of a Job in the serialized graph.
type Stage struct {
	Label          string   `json:"label"`
	Argv           []string `json:"argv"`
	Cwd            string   `json:"cwd"`
	Env            []string `json:"env"`
	EmulateTTY     *bool    `json:"emulate_tty"`
	StderrToStdout bool     `json:"stderr_to_stdout"`
}

// Job describes one node of the serialized graph.
type Job struct {
	JID               string  `json:"jid"`
	Deps              []string `json:"deps"`
	ContinueOnFailure bool    `json:"continue_on_failure"`
	Stages            []Stage `json:"stages"`
}

// Document is the top-level shape of a graph.json5 file.
type Document struct {
	Jobs []Job `json:"jobs"`
}

// Load reads and parses a JSON5 graph document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, skerr.Wrapf(err, "graph: failed to read %s", path)
	}
	var doc Document
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, skerr.Wrapf(err, "graph: failed to parse %s", path)
	}
	return &doc, nil
}

// ToJobs converts the document into job.Job values ready for the Scheduler.
func (d *Document) ToJobs() ([]*job.Job, error) {
	out := make([]*job.Job, 0, len(d.Jobs))
	for _, gj := range d.Jobs {
		stages := make([]job.Stage, 0, len(gj.Stages))
		for _, gs := range gj.Stages {
			opts := []job.CommandStageOption{
				job.WithCwd(gs.Cwd),
				job.WithEnv(gs.Env),
				job.WithStderrToStdout(gs.StderrToStdout),
			}
			if gs.EmulateTTY != nil {
				opts = append(opts, job.WithEmulateTTY(*gs.EmulateTTY))
			}
			cs, err := job.NewCommandStage(gs.Label, gs.Argv, opts...)
			if err != nil {
				return nil, skerr.Wrapf(err, "graph: job %q", gj.JID)
			}
			stages = append(stages, cs)
		}
		j, err := job.New(gj.JID, gj.Deps, stages, gj.ContinueOnFailure)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		out = append(out, j)
	}
	return out, nil
}
