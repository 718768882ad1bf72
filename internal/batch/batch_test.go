package batch

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

func testOptions() Options {
	return Options{
		Concurrency:     2,
		ItemTimeout:     time.Second,
		MaxRetries:      3,
		RetryDelay:      time.Millisecond,
		ContinueOnError: true,
	}
}

func TestRun_AllSucceed(t *testing.T) {
	p := New[int](testOptions(), nil)
	var sum atomic.Int64

	report, err := p.Run(context.Background(), []int{1, 2, 3, 4}, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, int64(10), sum.Load())
	for i, r := range report.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, 1, r.Attempts)
		assert.NoError(t, r.Err)
	}
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	p := New[string](testOptions(), nil)
	var calls atomic.Int32

	report, err := p.Run(context.Background(), []string{"flaky"}, func(_ context.Context, _ string) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 3, report.Results[0].Attempts)
	assert.NoError(t, report.Results[0].Err)
}

func TestRun_ExhaustsRetries(t *testing.T) {
	p := New[string](testOptions(), nil)
	var calls atomic.Int32
	boom := errors.New("persistent")

	report, err := p.Run(context.Background(), []string{"bad"}, func(_ context.Context, _ string) error {
		calls.Add(1)
		return boom
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int32(3), calls.Load())
	assert.ErrorIs(t, report.Results[0].Err, boom)
}

func TestRun_FailureDoesNotStopOthers(t *testing.T) {
	p := New[int](testOptions(), nil)

	report, err := p.Run(context.Background(), []int{0, 1, 2}, func(_ context.Context, n int) error {
		if n == 1 {
			return errors.New("item failed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Error(t, report.Results[1].Err)
	assert.NoError(t, report.Results[0].Err)
	assert.NoError(t, report.Results[2].Err)
}

func TestRun_StopsDispatchAfterFailure(t *testing.T) {
	p := New[int](Options{Concurrency: 1, ItemTimeout: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond}, nil)
	var calls atomic.Int32

	report, err := p.Run(context.Background(), []int{0, 1, 2}, func(_ context.Context, n int) error {
		calls.Add(1)
		if n == 0 {
			return errors.New("first item failed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 3, report.Failed)
	assert.ErrorIs(t, report.Results[1].Err, ErrAborted)
	assert.ErrorIs(t, report.Results[2].Err, ErrAborted)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	p := New[int](Options{Concurrency: 2, MaxRetries: 1, ItemTimeout: time.Second, RetryDelay: time.Millisecond}, nil)

	var mu sync.Mutex
	inFlight, peak := 0, 0

	_, err := p.Run(context.Background(), []int{1, 2, 3, 4, 5, 6}, func(_ context.Context, _ int) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestRun_ItemTimeoutCancelsAttempt(t *testing.T) {
	opts := Options{Concurrency: 1, ItemTimeout: 20 * time.Millisecond, MaxRetries: 1, RetryDelay: time.Millisecond}
	p := New[string](opts, nil)

	report, err := p.Run(context.Background(), []string{"slow"}, func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Results[0].Err, context.DeadlineExceeded)
}

func TestRun_CancelledContextSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New[int](Options{Concurrency: 1, ItemTimeout: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond}, nil)

	report, err := p.Run(ctx, []int{1, 2, 3}, func(_ context.Context, n int) error {
		if n == 1 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, report)
	assert.Error(t, report.Results[2].Err)
}

func TestRun_EmptyInput(t *testing.T) {
	p := New[int](testOptions(), nil)
	report, err := p.Run(context.Background(), nil, func(_ context.Context, _ int) error {
		t.Fatal("work function must not run")
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Zero(t, report.Succeeded)
}

func TestProgress_Snapshot(t *testing.T) {
	p := New[int](testOptions(), nil)

	snap := p.Progress().Snapshot()
	assert.Equal(t, string(StatusIdle), snap.Status)

	_, err := p.Run(context.Background(), []int{1, 2}, func(_ context.Context, n int) error {
		if n == 2 {
			return errors.New("fail")
		}
		return nil
	})
	require.NoError(t, err)

	snap = p.Progress().Snapshot()
	assert.Equal(t, string(StatusDone), snap.Status)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 100.0, snap.ProgressPct, 0.001)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultConcurrency, o.Concurrency)
	assert.Equal(t, DefaultItemTimeout, o.ItemTimeout)
	assert.Equal(t, DefaultMaxRetries, o.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, o.RetryDelay)
	assert.Equal(t, uint64(DefaultMemoryWatermark), o.MemoryWatermark)
	assert.False(t, o.ContinueOnError)
}
