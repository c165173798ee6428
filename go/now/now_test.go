package now_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbohren-forks/catkin-tools/go/now"
)

func TestNow_ConstValue_Success(t *testing.T) {
	mockTime := time.Unix(12, 11).UTC()
	background := context.Background()
	ctx := context.WithValue(background, now.ContextKey, mockTime)

	require.NotEqual(t, mockTime, now.Now(background))
	require.Equal(t, mockTime, now.Now(ctx))
}

func TestNow_NowProvider_Success(t *testing.T) {
	var monotonic int64
	provider := func() time.Time {
		monotonic++
		return time.Unix(monotonic, 0).UTC()
	}
	background := context.Background()
	ctx := context.WithValue(background, now.ContextKey, now.NowProvider(provider))

	require.Equal(t, int64(1), now.Now(ctx).Unix())
	require.Equal(t, int64(2), now.Now(ctx).Unix())
	require.Equal(t, int64(2), monotonic)

	require.NotEqual(t, int64(2), now.Now(background).Unix())
	require.Equal(t, int64(2), monotonic)
}

func TestNow_InvalidValue_Panics(t *testing.T) {
	ctx := context.WithValue(context.Background(), now.ContextKey, "not a valid clock value")
	require.Panics(t, func() { now.Now(ctx) })
}

func TestTravelingContext_SetTime_ChangesWhatNowReturns(t *testing.T) {
	first := time.Date(2021, time.September, 1, 10, 0, 0, 0, time.UTC)
	second := time.Date(2021, time.September, 1, 10, 1, 0, 0, time.UTC)

	ctx := now.TimeTravelingContext(first)

	assert.Equal(t, first, now.Now(ctx))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, first, now.Now(ctx))

	ctx.SetTime(second)
	assert.Equal(t, second, now.Now(ctx))
}

func TestTravelingContext_WithContext_PreservesParentValues(t *testing.T) {
	first := time.Date(2021, time.September, 1, 10, 0, 0, 0, time.UTC)
	second := time.Date(2021, time.August, 20, 4, 0, 0, 0, time.UTC)

	base := context.WithValue(context.Background(), "foo", "bar")
	ctx := now.TimeTravelingContext(first).WithContext(base)

	assert.Equal(t, first, now.Now(ctx))
	ctx.SetTime(second)
	assert.Equal(t, second, now.Now(ctx))
	assert.Equal(t, "bar", ctx.Value("foo"))
}
