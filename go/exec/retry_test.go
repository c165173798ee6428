package exec

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestWithRetryContext_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	ctx := NewContext(context.Background(), func(_ context.Context, cmd *Command) error {
		attempts++
		if attempts >= 3 {
			return nil
		}
		return assertErr{}
	})
	ctx = WithRetryContext(ctx, &backoff.ZeroBackOff{})

	require.NoError(t, Run(ctx, &Command{Name: "irrelevant"}))
	require.Equal(t, 3, attempts)
}

func TestWithRetryContext_StopsOnBackoffStop(t *testing.T) {
	attempts := 0
	ctx := NewContext(context.Background(), func(_ context.Context, cmd *Command) error {
		attempts++
		return assertErr{}
	})
	b := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	ctx = WithRetryContext(ctx, b)

	err := Run(ctx, &Command{Name: "irrelevant"})
	require.Error(t, err)
	// 1 initial attempt + 2 retries.
	require.Equal(t, 3, attempts)
}

func TestWithRetryContext_SleepsBetweenAttempts(t *testing.T) {
	attempts := 0
	ctx := NewContext(context.Background(), func(_ context.Context, cmd *Command) error {
		attempts++
		if attempts >= 2 {
			return nil
		}
		return assertErr{}
	})
	constant := backoff.NewConstantBackOff(10 * time.Millisecond)
	ctx = WithRetryContext(ctx, constant)

	start := time.Now()
	require.NoError(t, Run(ctx, &Command{Name: "irrelevant"}))
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated failure" }
