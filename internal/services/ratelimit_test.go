package rewards

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(clock, 0)
	ctx := context.Background()

	for _, remaining := range []int{2, 1, 0} {
		dec, err := l.Check(ctx, "order-submit:b", 3, time.Minute)
		require.NoError(t, err)
		require.False(t, dec.Limited)
		require.Equal(t, remaining, dec.Remaining)
	}

	clock.Advance(20 * time.Second)
	dec, err := l.Check(ctx, "order-submit:b", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, dec.Limited)
	require.Equal(t, 0, dec.Remaining)
	require.Equal(t, 40*time.Second, dec.ResetIn)

	// другой ключ считается отдельно
	dec, err = l.Check(ctx, "order-submit:c", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, dec.Limited)

	clock.Advance(40 * time.Second)
	dec, err = l.Check(ctx, "order-submit:b", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, dec.Limited)
	require.Equal(t, 2, dec.Remaining)
	require.Equal(t, time.Minute, dec.ResetIn)
}

func TestRateLimiterReset(t *testing.T) {
	l := NewRateLimiter(newFakeClock(), 0)
	ctx := context.Background()

	dec, err := l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, dec.Limited)
	dec, err = l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, dec.Limited)

	require.NoError(t, l.Reset(ctx, "k"))
	dec, err = l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, dec.Limited)
}

func TestRateLimiterZeroAttempts(t *testing.T) {
	l := NewRateLimiter(newFakeClock(), 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		dec, err := l.Check(ctx, "k", 0, time.Minute)
		require.NoError(t, err)
		require.True(t, dec.Limited)
		require.Equal(t, 0, dec.Remaining)
		require.Equal(t, time.Minute, dec.ResetIn)
	}
}

func TestRateLimiterBounded(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(clock, 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := l.Check(ctx, fmt.Sprintf("k%d", i), 1, time.Minute)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	require.Equal(t, 10, l.Len())

	// нет истекших окон - уходит самое старое
	_, err := l.Check(ctx, "new", 1, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 10, l.Len())
	dec, err := l.Check(ctx, "k0", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, dec.Limited)

	// истекшие окна удаляются все разом
	clock.Advance(time.Hour)
	_, err = l.Check(ctx, "fresh", 1, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())

	for i := 0; i < 1000; i++ {
		_, err := l.Check(ctx, fmt.Sprintf("flood%d", i), 1, time.Minute)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, l.Len(), 10)
}
