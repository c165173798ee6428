package iocapture_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jbohren-forks/catkin-tools/engine/event"
	"github.com/jbohren-forks/catkin-tools/engine/iocapture"
)

func TestStdoutWriter_BuffersAndEmitsRawChunks(t *testing.T) {
	q := event.NewQueue(8)
	c := iocapture.New("jobA", "build", q, nil)

	n, err := c.StdoutWriter().Write([]byte("hello "))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	_, err = c.StdoutWriter().Write([]byte("world"))
	require.NoError(t, err)

	require.Equal(t, "hello world", string(c.Stdout()))
	require.Equal(t, "hello world", string(c.Interleaved()))
	require.Empty(t, c.Stderr())

	q.Terminate()
	first := <-q.C()
	stdoutEv, ok := first.(*event.Stdout)
	require.True(t, ok)
	require.Equal(t, "hello ", string(stdoutEv.Data))

	second := <-q.C()
	stdoutEv2, ok := second.(*event.Stdout)
	require.True(t, ok)
	require.Equal(t, "world", string(stdoutEv2.Data))
}

func TestStdoutAndStderr_InterleaveInArrivalOrder(t *testing.T) {
	c := iocapture.New("jobA", "build", nil, nil)

	_, _ = c.StdoutWriter().Write([]byte("out1"))
	_, _ = c.StderrWriter().Write([]byte("err1"))
	_, _ = c.StdoutWriter().Write([]byte("out2"))

	require.Equal(t, "out1out2", string(c.Stdout()))
	require.Equal(t, "err1", string(c.Stderr()))
	require.Equal(t, "out1err1out2", string(c.Interleaved()))
}

func TestDecorator_AppliedBeforeBufferingAndEmit(t *testing.T) {
	upper := func(b []byte) []byte { return bytes.ToUpper(b) }
	q := event.NewQueue(4)
	c := iocapture.New("jobA", "build", q, upper)

	_, _ = c.StdoutWriter().Write([]byte("quiet"))
	require.Equal(t, "QUIET", string(c.Stdout()))

	ev := (<-q.C()).(*event.Stdout)
	require.Equal(t, "QUIET", string(ev.Data))
}

func TestOutErr_FunctionStageLogger_TrimsAndNewlineTerminates(t *testing.T) {
	c := iocapture.New("jobA", "configure", nil, nil)

	c.Out([]byte("line one   \n"))
	c.Err([]byte("oops\t"))

	require.Equal(t, "line one\n", string(c.Stdout()))
	require.Equal(t, "oops\n", string(c.Stderr()))
	require.True(t, strings.HasPrefix(string(c.Interleaved()), "line one\n"))
}

func TestOut_EmitsEventWithOriginalUntrimmedData(t *testing.T) {
	q := event.NewQueue(4)
	c := iocapture.New("jobA", "configure", q, nil)

	c.Out([]byte("padded   \n"))
	ev := (<-q.C()).(*event.Stdout)
	require.Equal(t, "padded   \n", string(ev.Data))
}

func TestNilQueue_DoesNotPanicOnEmit(t *testing.T) {
	c := iocapture.New("jobA", "build", nil, nil)
	require.NotPanics(t, func() {
		_, _ = c.StdoutWriter().Write([]byte("x"))
		c.Out([]byte("y"))
	})
}
