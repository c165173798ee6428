package jobserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_PrimesMaxJobsTokens(t *testing.T) {
	js, err := New(3)
	require.NoError(t, err)
	defer js.Close()

	require.Equal(t, 3, js.MaxJobs())
	running, err := js.RunningJobs()
	require.NoError(t, err)
	require.Equal(t, 0, running)

	for i := 0; i < 3; i++ {
		ok, err := js.TryAcquire()
		require.NoError(t, err)
		require.True(t, ok, "token %d", i)
	}

	ok, err := js.TryAcquire()
	require.NoError(t, err)
	require.False(t, ok, "pool should be exhausted")

	running, err = js.RunningJobs()
	require.NoError(t, err)
	require.Equal(t, 3, running)
}

func TestRelease_ReturnsTokenForReuse(t *testing.T) {
	js, err := New(1)
	require.NoError(t, err)
	defer js.Close()

	ok, err := js.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = js.TryAcquire()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, js.Release())

	ok, err = js.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTryAcquire_PredicateBlocksAdmission(t *testing.T) {
	blocked := true
	js, err := New(2, func() (bool, error) {
		return !blocked, nil
	})
	require.NoError(t, err)
	defer js.Close()

	ok, err := js.TryAcquire()
	require.NoError(t, err)
	require.False(t, ok)

	blocked = false
	ok, err = js.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTryAcquire_PredicateError_Propagates(t *testing.T) {
	sentinel := errors.New("predicate exploded")
	js, err := New(1, func() (bool, error) {
		return false, sentinel
	})
	require.NoError(t, err)
	defer js.Close()

	_, err = js.TryAcquire()
	require.ErrorIs(t, err, sentinel)
}

func TestWaitAcquire_BlocksThenSucceedsOncePredicateClears(t *testing.T) {
	blocked := true
	js, err := New(1, func() (bool, error) {
		return !blocked, nil
	})
	require.NoError(t, err)
	defer js.Close()

	go func() {
		time.Sleep(25 * time.Millisecond)
		blocked = false
	}()

	start := time.Now()
	require.NoError(t, js.WaitAcquire(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitAcquire_RespectsContextCancellation(t *testing.T) {
	js, err := New(1, func() (bool, error) { return false, nil })
	require.NoError(t, err)
	defer js.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	err = js.WaitAcquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMakeArgs_ReflectsGNUMakeSupport(t *testing.T) {
	js, err := New(2)
	require.NoError(t, err)
	defer js.Close()

	js.gnuMakeSupported = true
	args := js.MakeArgs()
	require.Equal(t, []string{"--jobserver-fds=3,4", "-j"}, args)

	js.gnuMakeSupported = false
	require.Nil(t, js.MakeArgs())
}

func TestNew_RejectsNonPositiveMaxJobs(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}

func TestJobServerFiles_ReturnsReadAndWriteEndsWithoutDisturbingThePool(t *testing.T) {
	js, err := New(2)
	require.NoError(t, err)
	defer js.Close()

	files := js.JobServerFiles()
	require.Len(t, files, 2)
	require.NotNil(t, files[0])
	require.NotNil(t, files[1])

	// Retrieving the files for handoff to a child must not consume a token
	// or otherwise disturb the pool's own bookkeeping.
	ok, err := js.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = js.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
}
