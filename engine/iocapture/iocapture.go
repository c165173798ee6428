// Package iocapture implements C3: per-stage output capture. A Capture
// accumulates three monotonically-growing buffers (stdout, stderr,
// interleaved) for one Job/Stage, and emits a raw STDOUT or STDERR event to
// the shared event.Queue for every chunk it sees. Buffers are safe to read
// only after the stage that owns the Capture has finished.
package iocapture

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/jbohren-forks/catkin-tools/engine/event"
)

// Decorator transforms a chunk of output before it is buffered and emitted,
// e.g. to strip CMake/colcon color codes or recolorize compiler output. A
// nil Decorator passes data through unchanged.
type Decorator func([]byte) []byte

// Capture is the subprocess-protocol-and-in-process-logger union described
// in §4.2: a Command stage writes to it via StdoutWriter/StderrWriter (raw
// OS-delivered chunks), and a Function stage writes to it via Out/Err
// (single application-level lines).
type Capture struct {
	jobID     string
	label     string
	queue     *event.Queue
	decorator Decorator

	mu          sync.Mutex
	stdout      bytes.Buffer
	stderr      bytes.Buffer
	interleaved bytes.Buffer
}

// New creates a Capture for one stage's output. queue may be nil, in which
// case chunks are still buffered but no events are emitted (useful for
// tests that only care about final buffer contents).
func New(jobID, label string, queue *event.Queue, decorator Decorator) *Capture {
	return &Capture{jobID: jobID, label: label, queue: queue, decorator: decorator}
}

func (c *Capture) apply(data []byte) []byte {
	if c.decorator == nil {
		return data
	}
	return c.decorator(data)
}

// StdoutWriter returns an io.Writer that a Command stage wires to its
// subprocess's stdout pipe.
func (c *Capture) StdoutWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		c.writeRaw(&c.stdout, p, true)
		return len(p), nil
	})
}

// StderrWriter returns an io.Writer that a Command stage wires to its
// subprocess's stderr pipe (unless stderr_to_stdout folds it into stdout
// upstream, in which case it is never constructed).
func (c *Capture) StderrWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		c.writeRaw(&c.stderr, p, false)
		return len(p), nil
	})
}

func (c *Capture) writeRaw(dst *bytes.Buffer, p []byte, isStdout bool) {
	c.mu.Lock()
	data := c.apply(append([]byte{}, p...))
	dst.Write(data)
	c.interleaved.Write(data)
	c.mu.Unlock()

	if c.queue == nil {
		return
	}
	if isStdout {
		c.queue.Send(event.NewStdout(time.Now(), c.jobID, c.label, data))
	} else {
		c.queue.Send(event.NewStderr(time.Now(), c.jobID, c.label, data))
	}
}

// Out is called by a Function stage in place of writing to os.Stdout. The
// line is right-trimmed of whitespace and newline-terminated before being
// buffered, matching the in-process logger's line-oriented contract; the
// emitted event still carries the caller's original, untrimmed data.
func (c *Capture) Out(data []byte) {
	c.writeLine(&c.stdout, data, true)
}

// Err is the Function-stage counterpart of Out for standard error.
func (c *Capture) Err(data []byte) {
	c.writeLine(&c.stderr, data, false)
}

func (c *Capture) writeLine(dst *bytes.Buffer, data []byte, isStdout bool) {
	line := append(bytes.TrimRight(append([]byte{}, data...), " \t\r\n"), '\n')

	c.mu.Lock()
	dst.Write(line)
	c.interleaved.Write(line)
	c.mu.Unlock()

	if c.queue == nil {
		return
	}
	if isStdout {
		c.queue.Send(event.NewStdout(time.Now(), c.jobID, c.label, data))
	} else {
		c.queue.Send(event.NewStderr(time.Now(), c.jobID, c.label, data))
	}
}

// Stdout returns a copy of the accumulated standard output buffer. Only
// safe to call once the owning stage has finished.
func (c *Capture) Stdout() []byte { return c.snapshot(&c.stdout) }

// Stderr returns a copy of the accumulated standard error buffer.
func (c *Capture) Stderr() []byte { return c.snapshot(&c.stderr) }

// Interleaved returns a copy of the combined, arrival-ordered buffer.
func (c *Capture) Interleaved() []byte { return c.snapshot(&c.interleaved) }

func (c *Capture) snapshot(buf *bytes.Buffer) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
