// Package runtime implements C5: the per-Job stage runner. A Runtime walks
// one Job's Stages sequentially, routing captured output and lifecycle
// transitions into the shared event.Queue. The Scheduler (C6) owns the
// jobserver token for the Job's whole lifetime; the Runtime itself never
// acquires or releases a token. Its only use of the jobserver is handing the
// token pipe to Command stages that set InheritJobServer.
package runtime

import (
	"context"
	"errors"
	goexec "os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jbohren-forks/catkin-tools/engine/event"
	"github.com/jbohren-forks/catkin-tools/engine/iocapture"
	"github.com/jbohren-forks/catkin-tools/engine/job"
	"github.com/jbohren-forks/catkin-tools/engine/jobserver"
	execwrap "github.com/jbohren-forks/catkin-tools/go/exec"
	"github.com/jbohren-forks/catkin-tools/go/sklog"
)

// Runtime executes Jobs one at a time on the caller's goroutine, but
// offloads Function stages to a bounded worker pool so a job graph with
// many concurrent function stages cannot oversubscribe the host beyond the
// jobserver's own budget.
type Runtime struct {
	queue *event.Queue
	pool  *semaphore.Weighted
	js    *jobserver.JobServer
}

// Option configures optional Runtime behavior.
type Option func(*Runtime)

// WithJobServer lets Command stages that set InheritJobServer share js's
// token pool with a recursive child invocation (typically `make`).
func WithJobServer(js *jobserver.JobServer) Option {
	return func(r *Runtime) { r.js = js }
}

// New creates a Runtime that emits to queue and bounds concurrent Function
// stage execution to maxConcurrentFunctionStages (ordinarily max_jobs).
func New(queue *event.Queue, maxConcurrentFunctionStages int64, opts ...Option) *Runtime {
	r := &Runtime{
		queue: queue,
		pool:  semaphore.NewWeighted(maxConcurrentFunctionStages),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every stage of j in order, returning whether all of them
// succeeded. It never returns an error itself: stage failures are reported
// via retcode and FINISHED_STAGE/FINISHED_JOB events, matching the
// distilled spec's contract that a Job's outcome is communicated entirely
// through the event stream.
func (r *Runtime) Run(ctx context.Context, j *job.Job) bool {
	allSucceeded := true

	for _, stage := range j.Stages {
		if !j.ContinueOnFailure && !allSucceeded {
			break
		}

		label := stage.Label()
		r.queue.Send(event.NewStartedStage(time.Now(), j.JID, label))

		var (
			retcode int
			capture *iocapture.Capture
		)

		switch s := stage.(type) {
		case *job.CommandStage:
			capture = protocolFor(j.JID, s)
			if capture == nil {
				capture = iocapture.New(j.JID, label, r.queue, nil)
			}
			retcode = r.runCommand(ctx, j.JID, s, capture)
		case *job.FunctionStage:
			capture = iocapture.New(j.JID, label, r.queue, nil)
			retcode = r.runFunction(ctx, s, capture)
		default:
			capture = iocapture.New(j.JID, label, r.queue, nil)
			sklog.Errorf("job %s: stage %q has unrecognized type %T", j.JID, label, stage)
			capture.Err([]byte("unrecognized stage type"))
			retcode = 1
		}

		succeeded := retcode == 0
		allSucceeded = allSucceeded && succeeded

		r.queue.Send(event.NewFinishedStage(
			time.Now(), j.JID, label, succeeded, retcode,
			capture.Stdout(), capture.Stderr(), capture.Interleaved(),
		))
	}

	return allSucceeded
}

func protocolFor(jobID string, s *job.CommandStage) *iocapture.Capture {
	if s.Protocol != nil {
		return s.Protocol(jobID, s.Label())
	}
	return nil
}

// runCommand dispatches a Command stage's child process, returning its
// exit code, or 1 if it could not even be started/observed.
func (r *Runtime) runCommand(ctx context.Context, jobID string, s *job.CommandStage, capture *iocapture.Capture) int {
	if capture == nil {
		capture = iocapture.New(jobID, s.Label(), r.queue, nil)
	}

	cmd := &execwrap.Command{
		Name:       s.Argv[0],
		Args:       s.Argv[1:],
		Dir:        s.Cwd,
		Env:        s.Env,
		InheritEnv: s.InheritEnv,
	}
	if s.InheritJobServer && r.js != nil {
		cmd.ExtraFiles = r.js.JobServerFiles()
		cmd.Args = append(append([]string{}, cmd.Args...), r.js.MakeArgs()...)
	}
	if s.StderrToStdout {
		cmd.CombinedOutput = capture.StdoutWriter()
	} else {
		cmd.Stdout = capture.StdoutWriter()
		cmd.Stderr = capture.StderrWriter()
	}

	runCtx := ctx
	if s.Retry != nil {
		runCtx = execwrap.WithRetryContext(ctx, s.Retry)
	}

	err := execwrap.Run(runCtx, cmd)
	if err == nil {
		return 0
	}

	sklog.Debugf("job %s: stage %q failed: %v", jobID, s.Label(), err)
	capture.Err([]byte(err.Error()))

	var exitErr *goexec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode()
	}
	return 1
}

// runFunction dispatches a Function stage on the bounded worker pool,
// converting a panic into retcode 1 the same way the Python original
// converts an uncaught exception into one.
func (r *Runtime) runFunction(ctx context.Context, s *job.FunctionStage, capture *iocapture.Capture) int {
	if err := r.pool.Acquire(ctx, 1); err != nil {
		sklog.Errorf("function stage %q: failed to acquire worker slot: %v", s.Label(), err)
		return 1
	}
	defer r.pool.Release(1)

	result := make(chan int, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				sklog.Errorf("function stage %q: panic: %v", s.Label(), rec)
				capture.Err([]byte("panic: function stage did not complete"))
				result <- 1
			}
		}()
		result <- s.Fn(capture)
	}()

	select {
	case rc := <-result:
		return rc
	case <-ctx.Done():
		sklog.Errorf("function stage %q: context cancelled while running", s.Label())
		return 1
	}
}
