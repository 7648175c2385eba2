package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTime is a clock whose sleeps advance time instantly and are recorded.
type fakeTime struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2025, 12, 16, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time { return f.now }

func (f *fakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func (f *fakeTime) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestLimiter(perSecond float64, perHour int) (*Limiter, *fakeTime) {
	ft := newFakeTime()
	return New(perSecond, perHour, WithClock(ft), WithSleeper(ft.Sleep)), ft
}

func TestLimiter_FirstRequestDoesNotWait(t *testing.T) {
	l, ft := newTestLimiter(1, 200)

	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, ft.sleeps)
	assert.Equal(t, 1, l.Status().RequestsThisHour)
}

func TestLimiter_Spacing(t *testing.T) {
	tests := []struct {
		name      string
		gap       time.Duration
		wantSleep time.Duration
	}{
		{name: "second call 0.3s later waits the remainder", gap: 300 * time.Millisecond, wantSleep: 700 * time.Millisecond},
		{name: "second call exactly 1s later does not wait", gap: time.Second},
		{name: "second call 2s later does not wait", gap: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, ft := newTestLimiter(1, 200)
			ctx := context.Background()

			require.NoError(t, l.Wait(ctx))
			ft.Advance(tt.gap)
			require.NoError(t, l.Wait(ctx))

			if tt.wantSleep == 0 {
				assert.Empty(t, ft.sleeps)
			} else {
				require.Len(t, ft.sleeps, 1)
				assert.InDelta(t, tt.wantSleep.Seconds(), ft.sleeps[0].Seconds(), 0.001)
			}
			assert.Equal(t, 2, l.Status().RequestsThisHour)
		})
	}
}

func TestLimiter_HourlyQuotaStalls(t *testing.T) {
	l, ft := newTestLimiter(1000, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
		ft.Advance(time.Second)
	}
	assert.Empty(t, ft.sleeps, "first three calls fit in the quota")

	// 3s into the window: stall for the rest of the hour plus the buffer.
	require.NoError(t, l.Wait(ctx))
	require.Len(t, ft.sleeps, 1)
	assert.Equal(t, Window-3*time.Second+time.Second, ft.sleeps[0])

	status := l.Status()
	assert.Equal(t, 1, status.RequestsThisHour, "counter restarts in the new window")
	assert.Equal(t, 2, status.RequestsRemaining)
	assert.Equal(t, Window, status.ResetsIn)
}

func TestLimiter_WindowResetsAfterAnHour(t *testing.T) {
	l, ft := newTestLimiter(1000, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	ft.Advance(Window)

	require.NoError(t, l.Wait(ctx))
	assert.Empty(t, ft.sleeps)
	assert.Equal(t, 1, l.Status().RequestsThisHour)
}

func TestLimiter_CountsEveryCall(t *testing.T) {
	l, ft := newTestLimiter(1, 200)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Equal(t, 10, l.Status().RequestsThisHour)
	assert.Equal(t, 190, l.Status().RequestsRemaining)
	assert.Len(t, ft.sleeps, 9, "each call after the first waits out the spacing")
}

func TestLimiter_Status(t *testing.T) {
	t.Run("before first request", func(t *testing.T) {
		l, _ := newTestLimiter(1, 200)
		assert.Equal(t, Status{RequestsRemaining: 200}, l.Status())
	})

	t.Run("reports time until reset", func(t *testing.T) {
		l, ft := newTestLimiter(1, 200)
		require.NoError(t, l.Wait(context.Background()))
		ft.Advance(10 * time.Minute)

		s := l.Status()
		assert.Equal(t, 50*time.Minute, s.ResetsIn)
		assert.Equal(t, 199, s.RequestsRemaining)
	})

	t.Run("lapsed window reads as fresh", func(t *testing.T) {
		l, ft := newTestLimiter(1, 200)
		require.NoError(t, l.Wait(context.Background()))
		ft.Advance(2 * Window)

		s := l.Status()
		assert.Equal(t, 0, s.RequestsThisHour)
		assert.Equal(t, 200, s.RequestsRemaining)
	})
}

func TestLimiter_CancelledDuringStall(t *testing.T) {
	l, ft := newTestLimiter(1000, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx))
	cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ft.sleeps)
	assert.Equal(t, 1, l.Status().RequestsThisHour, "cancelled call is not counted")
}

func TestLimiter_Unlimited(t *testing.T) {
	l, ft := newTestLimiter(0, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Empty(t, ft.sleeps)
	assert.Equal(t, 5, l.Status().RequestsThisHour)
}

func TestSleep_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
