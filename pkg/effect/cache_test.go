package effect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	A, B int
}

func TestCall_Memoizes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	sum := Define("sum", func(_ context.Context, in pair) (int, error) {
		calls.Add(1)
		return in.A + in.B, nil
	})

	c := NewCache(nil)
	ctx := context.Background()

	for range 3 {
		got, err := Call(ctx, c, sum, pair{A: 1, B: 2})
		require.NoError(t, err)
		require.Equal(t, 3, got)
	}

	got, err := Call(ctx, c, sum, pair{A: 2, B: 2})
	require.NoError(t, err)
	require.Equal(t, 4, got)

	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, 2, c.Len())
}

func TestCall_SameInputDifferentEffects(t *testing.T) {
	t.Parallel()

	double := Define("double", func(_ context.Context, in int) (int, error) { return in * 2, nil })
	square := Define("square", func(_ context.Context, in int) (int, error) { return in * in, nil })

	c := NewCache(nil)

	d, err := Call(context.Background(), c, double, 3)
	require.NoError(t, err)
	s, err := Call(context.Background(), c, square, 3)
	require.NoError(t, err)

	require.Equal(t, 6, d)
	require.Equal(t, 9, s)
}

func TestCall_SharesInFlight(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	slow := Define("slow", func(_ context.Context, in string) (string, error) {
		calls.Add(1)
		<-release
		return "v:" + in, nil
	})

	c := NewCache(nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)

	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Call(context.Background(), c, slow, "x")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Equal(t, "v:x", r)
	}
}

func TestCall_SharedCallSurvivesCancelledCaller(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	slow := Define("slow", func(ctx context.Context, in string) (string, error) {
		calls.Add(1)
		close(started)
		select {
		case <-release:
			return "v:" + in, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	c := NewCache(nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := Call(first, c, slow, "x")
		firstErr <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		v, err := Call(context.Background(), c, slow, "x")
		assert.NoError(t, err)
		second <- v
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.Equal(t, "v:x", <-second)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1, c.Len())
}

func TestCall_SiteTimeoutBoundsOnlyItsCaller(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	slow := Define("slow", func(ctx context.Context, in int) (int, error) {
		calls.Add(1)
		close(started)
		select {
		case <-release:
			return in * 2, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})

	c := NewCache(nil)

	second := make(chan int, 1)
	go func() {
		<-started
		v, err := Call(context.Background(), c, slow, 4)
		assert.NoError(t, err)
		second <- v
	}()

	_, err := Call(context.Background(), c, slow, 4, WithTimeout(20*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Equal(t, 8, <-second)
	require.Equal(t, int32(1), calls.Load())
}

func TestCall_FailuresAreNotCached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	boom := errors.New("boom")
	flaky := Define("flaky", func(_ context.Context, _ int) (int, error) {
		if calls.Add(1) == 1 {
			return 0, boom
		}
		return 42, nil
	})

	c := NewCache(nil)

	_, err := Call(context.Background(), c, flaky, 1)
	require.ErrorIs(t, err, boom)

	var effErr *EffectError
	require.ErrorAs(t, err, &effErr)
	require.Equal(t, "flaky", effErr.Name)
	require.Equal(t, 0, c.Len())

	got, err := Call(context.Background(), c, flaky, 1)
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, int32(2), calls.Load())
}

func TestCall_Timeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	hang := Define("hang", func(ctx context.Context, _ int) (int, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 7, nil
	}, WithTimeout(20*time.Millisecond))

	c := NewCache(nil)

	_, err := Call(context.Background(), c, hang, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, c.Len())

	got, err := Call(context.Background(), c, hang, 1)
	require.NoError(t, err)
	require.Equal(t, 7, got)
}

func TestCall_TimeoutIgnoringContext(t *testing.T) {
	t.Parallel()

	stuck := Define("stuck", func(_ context.Context, _ int) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 1, nil
	}, WithTimeout(10*time.Millisecond))

	c := NewCache(nil)

	start := time.Now()
	_, err := Call(context.Background(), c, stuck, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestCall_RateLimit(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var stamps []time.Time
	limited := Define("limited", func(_ context.Context, in int) (int, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return in, nil
	}, WithRateLimit(1, 50*time.Millisecond), WithoutCache())

	c := NewCache(nil)

	start := time.Now()
	for i := range 3 {
		_, err := Call(context.Background(), c, limited, i)
		require.NoError(t, err)
	}

	// one burst token, then two waits of ~50ms
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	require.Len(t, stamps, 3)
}

func TestCall_RateLimitWaitRespectsTimeout(t *testing.T) {
	t.Parallel()

	limited := Define("tight", func(_ context.Context, in int) (int, error) {
		return in, nil
	}, WithRateLimit(1, time.Hour), WithTimeout(20*time.Millisecond))

	c := NewCache(nil)

	_, err := Call(context.Background(), c, limited, 1)
	require.NoError(t, err)

	_, err = Call(context.Background(), c, limited, 2)
	require.Error(t, err)

	var effErr *EffectError
	require.ErrorAs(t, err, &effErr)
}

func TestCall_CachedHitSkipsRateLimit(t *testing.T) {
	t.Parallel()

	limited := Define("hourly", func(_ context.Context, in int) (int, error) {
		return in + 1, nil
	}, WithRateLimit(1, time.Hour), WithTimeout(20*time.Millisecond))

	c := NewCache(nil)

	for range 5 {
		got, err := Call(context.Background(), c, limited, 1)
		require.NoError(t, err)
		require.Equal(t, 2, got)
	}
}

func TestConfigure_StricterWins(t *testing.T) {
	t.Parallel()

	loose := Define("configured", func(_ context.Context, in int) (int, error) {
		return in, nil
	}, WithRateLimit(1000, time.Second), WithoutCache())

	c := NewCache(nil)
	c.Configure("configured", Options{
		RateLimit: &RateLimit{Calls: 1, Per: time.Hour},
		Timeout:   20 * time.Millisecond,
	})

	_, err := Call(context.Background(), c, loose, 1)
	require.NoError(t, err)

	_, err = Call(context.Background(), c, loose, 2)
	require.Error(t, err)
}

func TestCall_CancelledContext(t *testing.T) {
	t.Parallel()

	fn := Define("never", func(ctx context.Context, _ int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	c := NewCache(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, c, fn, 1)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, c.Len())
}

func TestCall_UnserializableInput(t *testing.T) {
	t.Parallel()

	fn := Define("chan", func(_ context.Context, _ chan int) (int, error) { return 0, nil })

	_, err := Call(context.Background(), NewCache(nil), fn, make(chan int))
	require.Error(t, err)
}

func TestReset(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := Define("counted", func(_ context.Context, in int) (int, error) {
		calls.Add(1)
		return in, nil
	})

	c := NewCache(nil)

	_, err := Call(context.Background(), c, fn, 1)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Reset()
	require.Equal(t, 0, c.Len())

	_, err = Call(context.Background(), c, fn, 1)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestStricter(t *testing.T) {
	t.Parallel()

	fast := &RateLimit{Calls: 10, Per: time.Second}
	slow := &RateLimit{Calls: 1, Per: time.Second}

	tests := []struct {
		name string
		a, b *RateLimit
		want *RateLimit
	}{
		{name: "both nil", want: nil},
		{name: "only a", a: fast, want: fast},
		{name: "only b", b: slow, want: slow},
		{name: "b stricter", a: fast, b: slow, want: slow},
		{name: "a stricter", a: slow, b: fast, want: slow},
		{name: "invalid ignored", a: &RateLimit{}, b: fast, want: fast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, stricter(tt.a, tt.b))
		})
	}
}
