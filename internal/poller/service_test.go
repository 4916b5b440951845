package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghbridge/internal/bridge"
	"ghbridge/pkg/logx"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
	panic bool
	delay time.Duration
}

func (r *countingRunner) RunCycle(ctx context.Context) bridge.Result {
	n := r.calls.Add(1)
	if r.panic && n == 1 {
		panic("first cycle blew up")
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return bridge.Result{StartedAt: time.Now(), Fetched: int(n), Err: r.err}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestFirstCycleRunsImmediately(t *testing.T) {
	r := &countingRunner{}
	s := New(r, Config{Interval: time.Hour}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return r.calls.Load() == 1 })
	st := s.Status()
	assert.True(t, st.Running)
	assert.EqualValues(t, 1, st.Cycles)
	assert.Equal(t, "1h0m0s", st.Interval)
}

func TestRunsEveryInterval(t *testing.T) {
	r := &countingRunner{}
	s := New(r, Config{Interval: 10 * time.Millisecond}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return r.calls.Load() >= 4 })
}

func TestAfterCycleHook(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	r := &countingRunner{}
	s := New(r, Config{Interval: time.Hour, AfterCycle: func(res bridge.Result) {
		mu.Lock()
		seen = append(seen, res.Fetched)
		mu.Unlock()
	}}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})
}

func TestSetIntervalWakesSleeper(t *testing.T) {
	r := &countingRunner{}
	s := New(r, Config{Interval: time.Hour}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return r.calls.Load() == 1 })
	s.SetInterval(5 * time.Millisecond)
	waitFor(t, func() bool { return r.calls.Load() >= 3 })
	assert.Equal(t, 5*time.Millisecond, s.Interval())
}

func TestSetIntervalIgnoresNonPositive(t *testing.T) {
	s := New(&countingRunner{}, Config{Interval: time.Minute}, logx.Nop())
	s.SetInterval(0)
	assert.Equal(t, time.Minute, s.Interval())
}

func TestFailedCycleRecorded(t *testing.T) {
	r := &countingRunner{err: errors.New("github down")}
	s := New(r, Config{Interval: time.Hour}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return s.Status().Cycles == 1 })
	st := s.Status()
	assert.EqualValues(t, 1, st.Failures)
	assert.Equal(t, "github down", st.LastError)
	require.NotNil(t, st.LastResult)
}

func TestPanicRestartsLoop(t *testing.T) {
	r := &countingRunner{panic: true}
	s := New(r, Config{Interval: time.Hour}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// Restart backoff starts at one second.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && r.calls.Load() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, r.calls.Load(), int32(2))
}

func TestStopWaitsForCycle(t *testing.T) {
	r := &countingRunner{delay: 50 * time.Millisecond}
	s := New(r, Config{Interval: time.Hour}, logx.Nop())
	s.Start(context.Background())
	waitFor(t, func() bool { return r.calls.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.False(t, s.Status().Running)
}
