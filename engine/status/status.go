// Package status implements C7: an observer that drains the shared event
// queue and renders a continuously-updated status line (interactive mode)
// or a plain append-only log (quiet mode), followed by a final summary.
package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"

	"github.com/jbohren-forks/catkin-tools/engine/event"
	"github.com/jbohren-forks/catkin-tools/go/config"
	"github.com/jbohren-forks/catkin-tools/go/human"
)

// RunningJobsFunc reports the jobserver's current checked-out token count,
// for the "N/M jobs" segment of the status line. Optional.
type RunningJobsFunc func() int

// Summary is the terminal result of one Run, returned for both human
// display and programmatic inspection (e.g. a non-zero process exit code).
type Summary struct {
	TotalJobs int
	Completed map[string]bool
	Failed    []string
	Warned    []string
	Abandoned []string
	Runtime   time.Duration
}

// AllSucceeded reports whether the run had no failures and no abandonments.
func (s Summary) AllSucceeded() bool {
	return len(s.Failed) == 0 && len(s.Abandoned) == 0
}

type stageStart struct {
	label string
	start time.Time
}

// Observer consumes an event.Queue until it sees the nil sentinel (or a
// JOB_STATUS event reporting every partition empty) and renders progress
// as it goes.
type Observer struct {
	queue *event.Queue
	out   io.Writer
	label string
	jobsN int

	display     config.Display
	interactive bool
	limiter     *rate.Limiter
	runningJobs RunningJobsFunc
	maxJobs     int
}

// Option configures optional Observer behavior.
type Option func(*Observer)

// WithRunningJobs wires the jobserver's live token accounting into the
// status line's "[N/M jobs]" segment.
func WithRunningJobs(maxJobs int, fn RunningJobsFunc) Option {
	return func(o *Observer) {
		o.maxJobs = maxJobs
		o.runningJobs = fn
	}
}

// New creates an Observer for a run of totalJobs jobs labeled label (e.g.
// "build", "clean"), rendering to out.
func New(queue *event.Queue, out io.Writer, label string, totalJobs int, display config.Display, opts ...Option) *Observer {
	o := &Observer{
		queue:       queue,
		out:         out,
		label:       label,
		jobsN:       totalJobs,
		display:     display,
		interactive: resolveInteractive(display.ForceMode, out),
	}
	rateHz := display.TickRate
	if rateHz <= 0 {
		rateHz = 20.0
	}
	o.limiter = rate.NewLimiter(rate.Limit(rateHz), 1)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func resolveInteractive(forceMode string, out io.Writer) bool {
	switch forceMode {
	case "interactive":
		return true
	case "quiet":
		return false
	}
	if f, ok := out.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Run drains the event queue until termination, returning the final
// Summary. It blocks until the queue is terminated or ctx is cancelled.
func (o *Observer) Run(ctx context.Context) Summary {
	startTime := time.Now()

	completed := map[string]bool{}
	abandoned := []string{}
	failed := []string{}
	warned := []string{}
	startTimes := map[string]time.Time{}
	endTimes := map[string]time.Time{}
	activeStages := map[string]stageStart{}
	activeCount := 0

	recordWarned := func(jid string) {
		for _, w := range warned {
			if w == jid {
				return
			}
		}
		warned = append(warned, jid)
	}

	done := false
	for !done {
		var e event.Event
		if o.interactive {
			select {
			case <-ctx.Done():
				done = true
				continue
			case e = <-o.queue.C():
			default:
				o.renderStatusLine(startTime, len(completed), activeCount, activeStages)
				_ = o.limiter.Wait(ctx)
				continue
			}
		} else {
			select {
			case <-ctx.Done():
				done = true
				continue
			case e = <-o.queue.C():
			}
		}

		if e == nil {
			done = true
			continue
		}

		switch ev := e.(type) {
		case *event.JobStatus:
			activeCount = len(ev.Active)
			if len(ev.Pending) == 0 && len(ev.Queued) == 0 && len(ev.Active) == 0 {
				done = true
			}
		case *event.StartedJob:
			startTimes[ev.JobID] = ev.Time()
			o.printf("Starting >>> %s\n", ev.JobID)
		case *event.FinishedJob:
			endTimes[ev.JobID] = ev.Time()
			completed[ev.JobID] = ev.Succeeded
			duration := human.Duration(endTimes[ev.JobID].Sub(startTimes[ev.JobID]))
			if ev.Succeeded {
				o.printf("Finished <<< %s [ %s ]\n", ev.JobID, duration)
			} else {
				failed = append(failed, ev.JobID)
				o.printf("Failed <<< %s [ %s ]\n", ev.JobID, duration)
			}
		case *event.AbandonedJob:
			abandoned = append(abandoned, ev.JobID)
			o.printf("Abandoned <<< %s [ %s ]\n", ev.JobID, abandonReason(ev))
		case *event.StartedStage:
			activeStages[ev.JobID] = stageStart{label: ev.Label, start: ev.Time()}
			if o.display.ShowStageEvents {
				o.printf("Starting >> %s:%s\n", ev.JobID, ev.Label)
			}
		case *event.FinishedStage:
			delete(activeStages, ev.JobID)
			if len(ev.Interleaved) > 0 && o.display.ShowBufferedStdout {
				o.printf("Output << %s:%s\n", ev.JobID, ev.Label)
				o.write(ev.Interleaved)
			}
			if len(ev.Stderr) > 0 {
				if ev.Succeeded {
					recordWarned(ev.JobID)
					if o.display.ShowBufferedStderr {
						o.printf("Warnings << %s:%s\n", ev.JobID, ev.Label)
					}
				} else if o.display.ShowBufferedStderr {
					o.printf("Errors << %s:%s\n", ev.JobID, ev.Label)
				}
				if o.display.ShowBufferedStderr {
					o.write(ev.Stderr)
				}
			}
			if ev.Succeeded {
				if o.display.ShowStageEvents {
					o.printf("Finished << %s:%s\n", ev.JobID, ev.Label)
				}
			} else {
				o.printf("Failed << %s:%s [ Exited with code %d ]\n", ev.JobID, ev.Label, ev.Retcode)
			}
		case *event.Stderr:
			if o.display.ShowLiveStderr {
				o.writePrefixedLines(ev.JobID, ev.Label, ev.Data)
			}
		case *event.Stdout:
			if o.display.ShowLiveStdout {
				o.writePrefixedLines(ev.JobID, ev.Label, ev.Data)
			}
		}
	}

	runtime := time.Since(startTime)
	summary := Summary{
		TotalJobs: o.jobsN,
		Completed: completed,
		Failed:    failed,
		Warned:    warned,
		Abandoned: abandoned,
		Runtime:   runtime,
	}
	o.printSummary(summary)
	return summary
}

func abandonReason(ev *event.AbandonedJob) string {
	switch ev.Reason {
	case event.DepFailed:
		if ev.DepJobID == ev.DirectDepJobID {
			return fmt.Sprintf("Depends on failed job %s", ev.DepJobID)
		}
		return fmt.Sprintf("Depends on failed job %s via %s", ev.DepJobID, ev.DirectDepJobID)
	case event.PeerFailed:
		return "Unrelated job failed"
	case event.MissingDeps:
		return fmt.Sprintf("Depends on unknown jobs: %s", strings.Join(ev.DepIDs, ", "))
	default:
		return string(ev.Reason)
	}
}

func (o *Observer) renderStatusLine(startTime time.Time, numCompleted, numActive int, activeStages map[string]stageStart) {
	running := numActive
	maxJobs := o.maxJobs
	if o.runningJobs != nil {
		running = o.runningJobs()
	}

	line := fmt.Sprintf("[%s %s s] [%d/%d complete] [%d/%d jobs]",
		o.label, human.Short(time.Since(startTime)), numCompleted, o.jobsN, running, maxJobs)

	if len(activeStages) == 0 {
		line += " Waiting for jobs..."
	} else {
		jids := make([]string, 0, len(activeStages))
		for jid := range activeStages {
			jids = append(jids, jid)
		}
		sort.Strings(jids)
		var parts []string
		for _, jid := range jids {
			st := activeStages[jid]
			parts = append(parts, fmt.Sprintf("[%s:%s - %s]", jid, st.label, human.Short(time.Since(st.start))))
		}
		line += " " + strings.Join(parts, ", ")
	}

	fmt.Fprintf(o.out, "\r%s\r", line)
}

func (o *Observer) printf(format string, args ...interface{}) {
	fmt.Fprintf(o.out, format, args...)
}

func (o *Observer) write(data []byte) {
	o.out.Write(data)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(o.out)
	}
}

func (o *Observer) writePrefixedLines(jobID, label string, data []byte) {
	prefix := fmt.Sprintf("[%s:%s] ", jobID, label)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for _, l := range lines {
		o.printf("%s%s\n", prefix, l)
	}
}

func (o *Observer) printSummary(s Summary) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	o.printf("[%s] Runtime: %s total.\n", o.label, human.Duration(s.Runtime))

	succeededCount := 0
	for _, ok := range s.Completed {
		if ok {
			succeededCount++
		}
	}
	if len(s.Failed) == 0 && len(s.Abandoned) == 0 {
		bold.Fprintf(o.out, "[%s] Summary: All %d jobs completed successfully!\n", o.label, s.TotalJobs)
	} else {
		o.printf("[%s] Summary: %d of %d jobs completed successfully.\n", o.label, succeededCount, s.TotalJobs)
	}

	if len(s.Failed) == 0 {
		o.printf("[%s] Failed: No jobs failed.\n", o.label)
	} else {
		red.Fprintf(o.out, "[%s] Failed: %d jobs failed.\n", o.label, len(s.Failed))
		if o.display.ShowFullSummary {
			for _, jid := range s.Failed {
				o.printf("[%s]  - %s\n", o.label, jid)
			}
		}
	}

	if len(s.Abandoned) == 0 {
		o.printf("[%s] Abandoned: No jobs were abandoned.\n", o.label)
	} else {
		red.Fprintf(o.out, "[%s] Abandoned: %d jobs were abandoned.\n", o.label, len(s.Abandoned))
		if o.display.ShowFullSummary {
			for _, jid := range s.Abandoned {
				o.printf("[%s]  - %s\n", o.label, jid)
			}
		}
	}

	if len(s.Warned) == 0 {
		o.printf("[%s] Warnings: No completed jobs produced warnings.\n", o.label)
	} else {
		yellow.Fprintf(o.out, "[%s] Warnings: %d completed jobs produced warnings.\n", o.label, len(s.Warned))
		if o.display.ShowFullSummary {
			for _, jid := range s.Warned {
				o.printf("[%s]  - %s\n", o.label, jid)
			}
		}
	}
}
