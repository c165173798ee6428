package job

import "github.com/jbohren-forks/catkin-tools/go/skerr"

// Job is a series of Stages run serially, gated on a set of dependency
// job ids. Jobs, like Stages, are stateless descriptions; all execution
// state lives in the runtime (C5) and the Scheduler (C6).
type Job struct {
	JID    string
	Deps   []string
	Stages []Stage

	// ContinueOnFailure controls whether this Job keeps running its own
	// remaining stages after one of them has already failed. false (the
	// default): the first failing stage terminates the Job immediately and
	// every subsequent stage is skipped. true: every stage still runs
	// regardless of earlier failures. This is unrelated to the Scheduler's
	// own continueOnFailure flag, which instead governs whether peer jobs
	// keep running after some other job fails.
	ContinueOnFailure bool
}

// New validates jid is non-empty and at least one stage is present before
// constructing the Job.
func New(jid string, deps []string, stages []Stage, continueOnFailure bool) (*Job, error) {
	if jid == "" {
		return nil, skerr.Fmt("job: jid must be non-empty")
	}
	if len(stages) == 0 {
		return nil, skerr.Fmt("job %q: must have at least one stage", jid)
	}
	return &Job{
		JID:               jid,
		Deps:              append([]string{}, deps...),
		Stages:            append([]Stage{}, stages...),
		ContinueOnFailure: continueOnFailure,
	}, nil
}

// AllDepsCompleted reports whether every dependency appears in completed,
// regardless of whether it succeeded.
func (j *Job) AllDepsCompleted(completed map[string]bool) bool {
	for _, dep := range j.Deps {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// AllDepsSucceeded reports whether every dependency is both completed and
// recorded as having succeeded.
func (j *Job) AllDepsSucceeded(completed map[string]bool) bool {
	for _, dep := range j.Deps {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// AnyDepsFailed reports whether any completed dependency failed. A
// dependency not yet in completed is not considered failed.
func (j *Job) AnyDepsFailed(completed map[string]bool) bool {
	for _, dep := range j.Deps {
		if succeeded, ok := completed[dep]; ok && !succeeded {
			return true
		}
	}
	return false
}
