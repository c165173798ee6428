// Package scheduler implements C6: the DAG-aware driver that admits Jobs as
// their dependencies and jobserver tokens allow, applies the configured
// failure propagation policy, and drives the event stream to completion.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jbohren-forks/catkin-tools/engine/event"
	"github.com/jbohren-forks/catkin-tools/engine/job"
	"github.com/jbohren-forks/catkin-tools/engine/jobserver"
	"github.com/jbohren-forks/catkin-tools/engine/runtime"
	"github.com/jbohren-forks/catkin-tools/go/skerr"
	"github.com/jbohren-forks/catkin-tools/go/util"
)

// Metrics is a pure observer fed exactly the transitions that produce
// events. It has no ability to affect scheduling — implementations must
// not block or panic, since they run on the scheduler's own goroutine.
type Metrics interface {
	JobQueued(jid string)
	JobStarted(jid string)
	JobFinished(jid string, succeeded bool)
	JobAbandoned(jid string, reason event.AbandonReason)
}

// Snapshot is a read-only copy of the five scheduler partitions at one
// instant, safe to read after the call that produced it returns.
type Snapshot struct {
	Pending   []string
	Queued    []string
	Active    []string
	Completed map[string]bool
	Abandoned []string
}

// Scheduler owns the DAG of Jobs and drives their execution to completion.
type Scheduler struct {
	jobMap              map[string]*job.Job
	js                  *jobserver.JobServer
	queue               *event.Queue
	runtime             *runtime.Runtime
	continueOnFailure   bool
	continueWithoutDeps bool
	metrics             Metrics

	mu        sync.Mutex
	pending   []*job.Job
	queued    []*job.Job
	active    map[string]bool
	completed map[string]bool
	abandoned []string
}

type jobResult struct {
	jid       string
	succeeded bool
}

// New validates that every job id is unique (aggregating every duplicate
// found, not just the first) before constructing the Scheduler.
func New(
	jobs []*job.Job,
	js *jobserver.JobServer,
	queue *event.Queue,
	rt *runtime.Runtime,
	continueOnFailure bool,
	continueWithoutDeps bool,
	metrics Metrics,
) (*Scheduler, error) {
	jobMap := make(map[string]*job.Job, len(jobs))
	var errs *multierror.Error
	for _, j := range jobs {
		if _, dup := jobMap[j.JID]; dup {
			errs = multierror.Append(errs, skerr.Fmt("duplicate job id %q", j.JID))
			continue
		}
		jobMap[j.JID] = j
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		jobMap:              jobMap,
		js:                  js,
		queue:               queue,
		runtime:             rt,
		continueOnFailure:   continueOnFailure,
		continueWithoutDeps: continueWithoutDeps,
		metrics:             metrics,
		active:              make(map[string]bool),
		completed:           make(map[string]bool),
	}

	// Immediately abandon jobs referencing an id outside the submitted set.
	for _, j := range jobs {
		missing := missingDeps(j, jobMap)
		if len(missing) == 0 {
			s.pending = append(s.pending, j)
			continue
		}
		s.abandon(j.JID, event.NewAbandonedMissingDeps(time.Now(), j.JID, missing))
	}

	// Seed the queue with jobs that have no dependencies at all.
	var stillPending []*job.Job
	for _, j := range s.pending {
		if len(j.Deps) == 0 {
			s.queued = append(s.queued, j)
		} else {
			stillPending = append(stillPending, j)
		}
	}
	s.pending = stillPending

	return s, nil
}

func missingDeps(j *job.Job, jobMap map[string]*job.Job) []string {
	var missing []string
	for _, d := range j.Deps {
		if _, ok := jobMap[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}

func (s *Scheduler) abandon(jid string, ev *event.AbandonedJob) {
	s.abandoned = append(s.abandoned, jid)
	s.queue.Send(ev)
	if s.metrics != nil {
		s.metrics.JobAbandoned(jid, ev.Reason)
	}
}

// Run admits and executes Jobs until every one of pending/queued/active is
// empty, then terminates the event queue. It returns whether every
// completed job succeeded (abandoned jobs do not count against this).
func (s *Scheduler) Run(ctx context.Context) (bool, error) {
	defer s.queue.Terminate()

	doneCh := make(chan jobResult, len(s.jobMap))

	s.mu.Lock()
	for s.hasWork() {
		if err := s.admit(ctx, doneCh); err != nil {
			s.mu.Unlock()
			return false, err
		}

		if len(s.active) == 0 {
			// Nothing left running and nothing admittable: every
			// remaining pending job is unreachable (e.g. all queued jobs
			// were abandoned by a prior failure but stragglers remain in
			// pending with now-abandoned deps). Drain them defensively.
			if len(s.queued) == 0 && len(s.pending) > 0 {
				s.abandonRemaining()
			}
			continue
		}

		s.emitJobStatus()
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case res := <-doneCh:
			s.mu.Lock()
			s.handleCompletion(res)
		}
	}
	s.emitJobStatus()
	result := s.allSucceeded()
	s.mu.Unlock()

	return result, nil
}

func (s *Scheduler) hasWork() bool {
	return len(s.pending) > 0 || len(s.queued) > 0 || len(s.active) > 0
}

func (s *Scheduler) allSucceeded() bool {
	for _, ok := range s.completed {
		if !ok {
			return false
		}
	}
	return true
}

// admit hands out tokens to queued jobs for as long as the jobserver keeps
// granting them, starting a goroutine per admitted job.
func (s *Scheduler) admit(ctx context.Context, doneCh chan jobResult) error {
	for len(s.queued) > 0 {
		got, err := s.js.TryAcquire()
		if err != nil {
			return skerr.Wrap(err)
		}
		if !got {
			return nil
		}

		j := s.queued[0]
		s.queued = s.queued[1:]
		s.active[j.JID] = true

		s.queue.Send(event.NewStartedJob(time.Now(), j.JID))
		if s.metrics != nil {
			s.metrics.JobStarted(j.JID)
		}

		go func(j *job.Job) {
			succeeded := s.runtime.Run(ctx, j)
			if err := s.js.Release(); err != nil {
				succeeded = false
			}
			doneCh <- jobResult{jid: j.JID, succeeded: succeeded}
		}(j)
	}
	return nil
}

func (s *Scheduler) emitJobStatus() {
	completed := make(map[string]bool, len(s.completed))
	for k, v := range s.completed {
		completed[k] = v
	}
	s.queue.Send(event.NewJobStatus(
		time.Now(),
		jids(s.pending), jids(s.queued), activeIDs(s.active),
		completed, append([]string{}, s.abandoned...),
	))
}

func jids(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.JID
	}
	return out
}

func activeIDs(active map[string]bool) []string {
	out := make([]string, 0, len(active))
	for jid := range active {
		out = append(out, jid)
	}
	return out
}

func (s *Scheduler) handleCompletion(res jobResult) {
	delete(s.active, res.jid)
	s.completed[res.jid] = res.succeeded

	s.queue.Send(event.NewFinishedJob(time.Now(), res.jid, res.succeeded))
	if s.metrics != nil {
		s.metrics.JobFinished(res.jid, res.succeeded)
	}

	if !res.succeeded {
		if !s.continueOnFailure {
			s.abandonAllRemaining(res.jid)
		} else if !s.continueWithoutDeps {
			s.abandonDependents(res.jid)
		}
	}

	s.promoteReady()
}

// abandonAllRemaining abandons every queued and pending job because the
// run aborts entirely on any single failure.
func (s *Scheduler) abandonAllRemaining(failedJID string) {
	for _, j := range s.queued {
		s.abandon(j.JID, event.NewAbandonedPeerFailed(time.Now(), j.JID, failedJID))
	}
	s.queued = nil
	for _, j := range s.pending {
		s.abandon(j.JID, event.NewAbandonedPeerFailed(time.Now(), j.JID, failedJID))
	}
	s.pending = nil
}

// abandonDependents performs a BFS over the pending set, abandoning every
// job transitively depending on failedJID.
func (s *Scheduler) abandonDependents(failedJID string) {
	frontier := []string{failedJID}
	for len(frontier) > 0 {
		depJID := frontier[0]
		frontier = frontier[1:]

		var remaining []*job.Job
		for _, j := range s.pending {
			if util.In(depJID, j.Deps) {
				s.abandon(j.JID, event.NewAbandonedDepFailed(time.Now(), j.JID, failedJID, depJID))
				frontier = append(frontier, j.JID)
			} else {
				remaining = append(remaining, j)
			}
		}
		s.pending = remaining
	}
}

// promoteReady moves every pending job whose dependencies have all
// completed into the queued partition.
func (s *Scheduler) promoteReady() {
	var stillPending []*job.Job
	for _, j := range s.pending {
		if j.AllDepsCompleted(s.completed) {
			s.queued = append(s.queued, j)
			s.queue.Send(event.NewQueuedJob(time.Now(), j.JID))
			if s.metrics != nil {
				s.metrics.JobQueued(j.JID)
			}
		} else {
			stillPending = append(stillPending, j)
		}
	}
	s.pending = stillPending
}

// abandonRemaining is a defensive backstop for graphs that somehow leave
// pending jobs unreachable without ever triggering abandonDependents
// (e.g. a dependency cycle: New checks only for duplicate job ids, not for
// cycles).
func (s *Scheduler) abandonRemaining() {
	for _, j := range s.pending {
		s.abandon(j.JID, event.NewAbandonedMissingDeps(time.Now(), j.JID, j.Deps))
	}
	s.pending = nil
}

// Snapshot returns a read-only copy of the five partitions, observing the
// same state that the most recent (or next) JOB_STATUS event would carry.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := make(map[string]bool, len(s.completed))
	for k, v := range s.completed {
		completed[k] = v
	}
	return Snapshot{
		Pending:   jids(s.pending),
		Queued:    jids(s.queued),
		Active:    activeIDs(s.active),
		Completed: completed,
		Abandoned: append([]string{}, s.abandoned...),
	}
}
