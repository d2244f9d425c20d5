package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError int

func (e statusError) Error() string   { return fmt.Sprintf("http %d", int(e)) }
func (e statusError) StatusCode() int { return int(e) }

func fastSchedule() Option {
	return WithRetrySchedule([]time.Duration{0, time.Millisecond, 2 * time.Millisecond})
}

func TestExecuteKeyFormat(t *testing.T) {
	c := New(models.CoordinatorConfig{})
	var seen string
	r := c.Execute(context.Background(), "withdrawal", "player-1", "submit", func(_ context.Context, key string) (any, error) {
		seen = key
		return "ok", nil
	})

	require.Equal(t, StatusDone, r.Status)
	assert.Equal(t, seen, r.Key)
	assert.Equal(t, "ok", r.Value)
	assert.Equal(t, 1, r.Attempts)

	e, ok := c.Entry("withdrawal", "player-1", "submit")
	require.True(t, ok)
	assert.Equal(t, BuildKey("withdrawal", "player-1", "submit", e.Nonce), seen)
}

func TestConcurrentCallersShareOneAttempt(t *testing.T) {
	c := New(models.CoordinatorConfig{})
	var calls atomic.Int32
	release := make(chan struct{})

	work := func(_ context.Context, key string) (any, error) {
		calls.Add(1)
		<-release
		return key, nil
	}

	const n = 10
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Execute(context.Background(), "deposit", "player-1", "create", work)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, StatusDone, r.Status)
		assert.Equal(t, results[0].Key, r.Key)
	}
}

func TestTerminalEntryGetsFreshNonce(t *testing.T) {
	c := New(models.CoordinatorConfig{})
	ok := func(_ context.Context, key string) (any, error) { return nil, nil }

	first := c.Execute(context.Background(), "withdrawal", "player-1", "submit", ok)
	second := c.Execute(context.Background(), "withdrawal", "player-1", "submit", ok)

	assert.Equal(t, StatusDone, first.Status)
	assert.Equal(t, StatusDone, second.Status)
	assert.NotEqual(t, first.Key, second.Key)
}

func TestRetryableErrorsReuseKey(t *testing.T) {
	c := New(models.CoordinatorConfig{}, fastSchedule())
	var keys []string

	r := c.Execute(context.Background(), "withdrawal", "w-1", "payout", func(_ context.Context, key string) (any, error) {
		keys = append(keys, key)
		if len(keys) < 3 {
			return nil, fmt.Errorf("provider: %w", store.ErrProviderTransient)
		}
		return "paid", nil
	})

	require.Equal(t, StatusDone, r.Status)
	assert.Equal(t, 3, r.Attempts)
	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])
}

func TestRetriesExhausted(t *testing.T) {
	c := New(models.CoordinatorConfig{}, fastSchedule())
	var attempts int
	r := c.Execute(context.Background(), "withdrawal", "w-1", "payout", func(context.Context, string) (any, error) {
		attempts++
		return nil, statusError(503)
	})

	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, r.Attempts)
}

func TestBusinessErrorAbortsImmediately(t *testing.T) {
	c := New(models.CoordinatorConfig{}, fastSchedule())
	var attempts int
	r := c.Execute(context.Background(), "withdrawal", "player-1", "submit", func(context.Context, string) (any, error) {
		attempts++
		return nil, fmt.Errorf("hold: %w", store.ErrInsufficientFunds)
	})

	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, r.Err, store.ErrInsufficientFunds)
}

func TestCancelledBackoffKeepsNonce(t *testing.T) {
	c := New(models.CoordinatorConfig{RetrySchedule: []time.Duration{0, time.Hour}})
	ctx, cancel := context.WithCancel(context.Background())

	r := c.Execute(ctx, "withdrawal", "w-1", "payout", func(context.Context, string) (any, error) {
		cancel()
		return nil, store.ErrProviderTransient
	})
	assert.Equal(t, StatusInFlight, r.Status)
	assert.ErrorIs(t, r.Err, context.Canceled)

	e, ok := c.Entry("withdrawal", "w-1", "payout")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, e.Status)

	again := c.Execute(context.Background(), "withdrawal", "w-1", "payout", func(context.Context, string) (any, error) {
		return nil, nil
	})
	assert.Equal(t, StatusDone, again.Status)
	assert.Equal(t, r.Key, again.Key)
}

func TestTryExecuteReportsInFlight(t *testing.T) {
	c := New(models.CoordinatorConfig{})
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan Result)
	go func() {
		done <- c.Execute(context.Background(), "withdrawal", "w-1", "payout", func(context.Context, string) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	r := c.TryExecute(context.Background(), "withdrawal", "w-1", "payout", func(context.Context, string) (any, error) {
		t.Error("work must not run while an attempt is in flight")
		return nil, nil
	})
	assert.Equal(t, StatusInFlight, r.Status)

	close(release)
	first := <-done
	assert.Equal(t, StatusDone, first.Status)
	assert.Equal(t, first.Key, r.Key)
}

func TestObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []Transition
	c := New(models.CoordinatorConfig{}, fastSchedule(), WithObserver(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr)
	}))

	var n int
	c.Execute(context.Background(), "deposit", "player-1", "create", func(context.Context, string) (any, error) {
		n++
		if n == 1 {
			return nil, statusError(502)
		}
		return nil, nil
	})

	require.Len(t, seen, 3)
	assert.Equal(t, StatusIdle, seen[0].From)
	assert.Equal(t, StatusInFlight, seen[0].To)
	assert.Equal(t, StatusInFlight, seen[1].To)
	assert.Equal(t, 2, seen[1].Entry.Attempts)
	assert.Equal(t, StatusDone, seen[2].To)
}

func TestCacheIsBounded(t *testing.T) {
	c := New(models.CoordinatorConfig{CacheSize: 2})
	ok := func(context.Context, string) (any, error) { return nil, nil }
	for _, subject := range []string{"a", "b", "c"} {
		c.Execute(context.Background(), "deposit", subject, "create", ok)
	}
	assert.Equal(t, 2, c.Len())
	_, found := c.Entry("deposit", "a", "create")
	assert.False(t, found)
}

func TestFullCacheKeepsInFlightEntry(t *testing.T) {
	c := New(models.CoordinatorConfig{CacheSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	blocking := func(_ context.Context, key string) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return key, nil
	}

	first := make(chan Result, 1)
	go func() {
		first <- c.Execute(context.Background(), "s", "p1", "withdraw", blocking)
	}()
	<-started

	other := c.Execute(context.Background(), "s", "p2", "deposit", func(context.Context, string) (any, error) {
		return nil, nil
	})
	require.Equal(t, StatusDone, other.Status)

	e, ok := c.Entry("s", "p1", "withdraw")
	require.True(t, ok, "running entry must survive a full cache")
	assert.Equal(t, StatusInFlight, e.Status)

	r := c.TryExecute(context.Background(), "s", "p1", "withdraw", blocking)
	assert.Equal(t, StatusInFlight, r.Status)
	assert.Equal(t, e.Key(), r.Key)

	close(release)
	done := <-first
	assert.Equal(t, StatusDone, done.Status)
	assert.Equal(t, e.Key(), done.Key)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFullCacheKeepsSuspendedNonce(t *testing.T) {
	c := New(models.CoordinatorConfig{CacheSize: 1, RetrySchedule: []time.Duration{0, time.Hour}})
	ctx, cancel := context.WithCancel(context.Background())

	r := c.Execute(ctx, "s", "p1", "withdraw", func(context.Context, string) (any, error) {
		cancel()
		return nil, store.ErrProviderTransient
	})
	require.Equal(t, StatusInFlight, r.Status)

	for _, subject := range []string{"p2", "p3"} {
		c.Execute(context.Background(), "s", subject, "deposit", func(context.Context, string) (any, error) { return nil, nil })
	}

	again := c.Execute(context.Background(), "s", "p1", "withdraw", func(context.Context, string) (any, error) { return nil, nil })
	assert.Equal(t, StatusDone, again.Status)
	assert.Equal(t, r.Key, again.Key)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	var _ net.Error = timeoutErr{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"provider transient", fmt.Errorf("x: %w", store.ErrProviderTransient), true},
		{"network", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"500", statusError(500), true},
		{"502", statusError(502), true},
		{"503", statusError(503), true},
		{"504", statusError(504), true},
		{"501", statusError(501), false},
		{"409", statusError(409), false},
		{"422", statusError(422), false},
		{"business", store.ErrInsufficientFunds, false},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestPoll(t *testing.T) {
	var checks int
	err := Poll(context.Background(), PollConfig{Interval: time.Millisecond, Multiplier: 2, MaxInterval: 4 * time.Millisecond, MaxAttempts: 10},
		func(context.Context) (bool, error) {
			checks++
			return checks == 4, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 4, checks)
}

func TestPollExhausted(t *testing.T) {
	var checks int
	err := Poll(context.Background(), PollConfig{Interval: time.Millisecond, MaxAttempts: 3},
		func(context.Context) (bool, error) {
			checks++
			return false, nil
		})
	assert.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, 3, checks)
}

func TestPollCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Poll(ctx, PollConfig{Interval: time.Hour}, func(context.Context) (bool, error) {
		cancel()
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollBackoff(t *testing.T) {
	cfg := PollConfig{Interval: time.Second, Multiplier: 2, MaxInterval: 5 * time.Second}
	assert.Equal(t, 2*time.Second, next(time.Second, cfg))
	assert.Equal(t, 5*time.Second, next(4*time.Second, cfg))
	assert.Equal(t, time.Second, next(time.Second, PollConfig{Interval: time.Second}))
}
