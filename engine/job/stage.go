// Package job defines the Stage and Job types of C4: the static
// description of work a Scheduler dispatches, as distinct from the
// runtime (C5) that actually executes it.
package job

import (
	"github.com/jbohren-forks/catkin-tools/engine/iocapture"
	goexec "github.com/jbohren-forks/catkin-tools/go/exec"
	"github.com/jbohren-forks/catkin-tools/go/skerr"
)

// Stage is one serially-executed step of a Job. Stages are stateless
// descriptions of what to do, never of how far along a particular run is.
type Stage interface {
	Label() string
}

// ProtocolFactory builds the output sink a Command stage's subprocess
// writes through. Swappable so tests and decorators (e.g. colorization)
// can be injected without changing the stage.
type ProtocolFactory func(jobID string, label string) *iocapture.Capture

// CommandStage is a Stage that runs a child process via argv directly
// (never through a shell).
type CommandStage struct {
	label string

	Argv           []string
	Cwd            string
	Env            []string
	InheritEnv     bool
	EmulateTTY     bool
	StderrToStdout bool
	Protocol       ProtocolFactory

	// Retry is optional (D11); nil means the stage runs exactly once.
	Retry goexec.Retrier

	// InheritJobServer marks this stage as a recursive build tool (e.g. a
	// nested `make`) that should share the Scheduler's own jobserver token
	// pool rather than being throttled only by its own single token. The
	// runtime wires the pool's pipe fds as ExtraFiles and appends
	// jobserver.MakeArgs() to argv when this is set.
	InheritJobServer bool
}

func (c *CommandStage) Label() string { return c.label }

// NewCommandStage validates argv is non-empty before constructing the
// stage, matching the distilled spec's Command-stage invariant.
func NewCommandStage(label string, argv []string, opts ...CommandStageOption) (*CommandStage, error) {
	if len(argv) == 0 {
		return nil, skerr.Fmt("command stage %q: argv must be non-empty", label)
	}
	for _, a := range argv {
		if a == "" {
			return nil, skerr.Fmt("command stage %q: argv elements must be non-empty strings", label)
		}
	}

	cs := &CommandStage{
		label:      label,
		Argv:       append([]string{}, argv...),
		EmulateTTY: true,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs, nil
}

// CommandStageOption configures optional CommandStage fields.
type CommandStageOption func(*CommandStage)

func WithCwd(cwd string) CommandStageOption { return func(c *CommandStage) { c.Cwd = cwd } }

func WithEnv(env []string) CommandStageOption {
	return func(c *CommandStage) { c.Env = append([]string{}, env...) }
}

func WithInheritEnv(inherit bool) CommandStageOption {
	return func(c *CommandStage) { c.InheritEnv = inherit }
}

func WithEmulateTTY(emulate bool) CommandStageOption {
	return func(c *CommandStage) { c.EmulateTTY = emulate }
}

func WithStderrToStdout(fold bool) CommandStageOption {
	return func(c *CommandStage) { c.StderrToStdout = fold }
}

func WithProtocolFactory(f ProtocolFactory) CommandStageOption {
	return func(c *CommandStage) { c.Protocol = f }
}

func WithRetry(r goexec.Retrier) CommandStageOption {
	return func(c *CommandStage) { c.Retry = r }
}

func WithInheritJobServer(inherit bool) CommandStageOption {
	return func(c *CommandStage) { c.InheritJobServer = inherit }
}

// FunctionFunc is the signature a Function stage's work must satisfy: it
// receives an output sink and returns 0 on success, matching the distilled
// spec's "a callable returning an integer return code" contract.
type FunctionFunc func(logger *iocapture.Capture) int

// FunctionStage is a Stage that runs an in-process Go function instead of
// a child process.
type FunctionStage struct {
	label string
	Fn    FunctionFunc
}

func (f *FunctionStage) Label() string { return f.label }

// NewFunctionStage validates fn is non-nil before constructing the stage.
func NewFunctionStage(label string, fn FunctionFunc) (*FunctionStage, error) {
	if fn == nil {
		return nil, skerr.Fmt("function stage %q: function must be non-nil", label)
	}
	return &FunctionStage{label: label, Fn: fn}, nil
}
