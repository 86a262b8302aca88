package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// recorder is a fake upstream. It records calls, can hold requests named
// "gate" until released and answers "<req>#<attempt>".
type recorder struct {
	mu       sync.Mutex
	calls    []string
	attempts map[string]int

	gateStarted chan struct{}
	gateRelease chan struct{}
	startOnce   sync.Once
}

func newRecorder() *recorder {
	return &recorder{
		attempts:    make(map[string]int),
		gateStarted: make(chan struct{}),
		gateRelease: make(chan struct{}),
	}
}

func (r *recorder) do(ctx context.Context, req string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.attempts[req]++
	n := r.attempts[req]
	r.mu.Unlock()

	if req == "gate" {
		r.startOnce.Do(func() { close(r.gateStarted) })
		select {
		case <-r.gateRelease:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if req == "broken" {
		return "", errors.New("connection reset")
	}
	return fmt.Sprintf("%s#%d", req, n), nil
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func acceptAll(string) Verdict { return Verdict{Accepted: true} }

func newTestDispatcher(t *testing.T, r *recorder, verify func(string) Verdict) *Dispatcher[string, string] {
	t.Helper()
	d := New(Options[string, string]{
		Name:   "test",
		Do:     r.do,
		Verify: verify,
		Logger: testr.New(t),
	})
	t.Cleanup(d.Close)
	return d
}

func waitStarted(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.gateStarted:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for gate request to start")
	}
}

func TestDispatcher_ConcurrentSubmitsNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight int32
	d := New(Options[int, int]{
		Do: func(ctx context.Context, req int) (int, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			if req%7 == 0 {
				return 0, errors.New("transport failure")
			}
			return req * 2, nil
		},
		Verify: func(int) Verdict { return Verdict{Accepted: true} },
	})
	defer d.Close()

	const k = 40
	var wg sync.WaitGroup
	var completed, failed int32
	for i := 1; i <= k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := d.Do(context.Background(), i)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				return
			}
			assert.Equal(t, i*2, got)
			atomic.AddInt32(&completed, 1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(k), completed+failed)
	assert.Equal(t, int32(5), failed) // 7, 14, 21, 28, 35
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight), "at most one request may be in flight")

	require.Eventually(t, func() bool {
		return d.Snapshot().State == StateIdle
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_RejectedTaskMovesToBack(t *testing.T) {
	r := newRecorder()
	var rejections int32
	d := newTestDispatcher(t, r, func(resp string) Verdict {
		if resp == "a#1" {
			atomic.AddInt32(&rejections, 1)
			return Verdict{Accepted: false}
		}
		return Verdict{Accepted: true}
	})

	gate := d.Submit("gate")
	waitStarted(t, r)

	fa := d.Submit("a")
	fb := d.Submit("b")
	fc := d.Submit("c")

	snap := d.Snapshot()
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, 3, snap.Pending)
	assert.True(t, snap.InFlight)

	close(r.gateRelease)

	ctx := context.Background()
	_, err := gate.Wait(ctx)
	require.NoError(t, err)

	b, err := fb.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b#1", b)

	c, err := fc.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c#1", c)

	a, err := fa.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a#2", a, "rejected attempt must not fulfil the future")

	assert.Equal(t, []string{"gate", "a", "b", "c", "a"}, r.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&rejections))
}

func TestDispatcher_RetryNotBeforeDelaysNextTask(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	delay := 80 * time.Millisecond

	d := New(Options[string, string]{
		Do: func(ctx context.Context, req string) (string, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return req, nil
		},
		Verify: func(resp string) Verdict {
			if resp == "first" {
				return Verdict{Accepted: true, RetryNotBefore: time.Now().Add(delay)}
			}
			return Verdict{Accepted: true}
		},
	})
	defer d.Close()

	ctx := context.Background()
	_, err := d.Do(ctx, "first")
	require.NoError(t, err)

	second := d.Submit("second")
	require.Eventually(t, func() bool {
		return d.Snapshot().State == StateDelayed
	}, delay, 2*time.Millisecond)

	_, err = second.Wait(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), delay-10*time.Millisecond)
}

func TestDispatcher_TransportErrorIsNotRetried(t *testing.T) {
	r := newRecorder()
	d := newTestDispatcher(t, r, acceptAll)

	ctx := context.Background()
	_, err := d.Do(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	got, err := d.Do(ctx, "next")
	require.NoError(t, err)
	assert.Equal(t, "next#1", got)
	assert.Equal(t, []string{"broken", "next"}, r.Calls())
}

func TestDispatcher_MaxAttempts(t *testing.T) {
	r := newRecorder()
	var discarded int32
	d := New(Options[string, string]{
		Do:          r.do,
		Verify:      func(string) Verdict { return Verdict{Accepted: false} },
		Discard:     func(string) { atomic.AddInt32(&discarded, 1) },
		MaxAttempts: 3,
	})
	defer d.Close()

	_, err := d.Do(context.Background(), "x")
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, []string{"x", "x", "x"}, r.Calls())
	assert.Equal(t, int32(3), atomic.LoadInt32(&discarded))
}

func TestDispatcher_WaitCancellationKeepsTaskQueued(t *testing.T) {
	r := newRecorder()
	d := newTestDispatcher(t, r, acceptAll)

	d.Submit("gate")
	waitStarted(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	f := d.Submit("late")
	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(r.gateRelease)

	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late#1", got)
	assert.Equal(t, []string{"gate", "late"}, r.Calls())
}

func TestDispatcher_CloseFailsPendingTasks(t *testing.T) {
	r := newRecorder()
	d := New(Options[string, string]{Do: r.do, Verify: acceptAll})

	gate := d.Submit("gate")
	waitStarted(t, r)
	a := d.Submit("a")
	b := d.Submit("b")

	d.Close()

	ctx := context.Background()
	_, err := gate.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = a.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = d.Do(ctx, "after")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []string{"gate"}, r.Calls())
}

func TestDispatcher_RecordsStats(t *testing.T) {
	r := newRecorder()
	stats := NewMemoryStatsStore()
	d := New(Options[string, string]{
		Name: "jira",
		Do:   r.do,
		Verify: func(resp string) Verdict {
			return Verdict{Accepted: resp != "a#1"}
		},
		Stats: stats,
	})
	defer d.Close()

	ctx := context.Background()
	_, err := d.Do(ctx, "a")
	require.NoError(t, err)
	_, err = d.Do(ctx, "broken")
	require.Error(t, err)

	assert.Equal(t, Counters{Accepted: 1, Rejected: 1, Failed: 1}, stats.Total())
	assert.Equal(t, Counters{Accepted: 1, Rejected: 1, Failed: 1}, stats.ByDispatcher()["jira"])
}

func TestDispatcher_LimiterPacesRequests(t *testing.T) {
	r := newRecorder()
	d := New(Options[string, string]{
		Do:      r.do,
		Verify:  acceptAll,
		Limiter: rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
	})
	defer d.Close()

	start := time.Now()
	futures := []*Future[string]{d.Submit("a"), d.Submit("b"), d.Submit("c")}
	for _, f := range futures {
		_, err := f.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestNew_RequiresFunctions(t *testing.T) {
	assert.Panics(t, func() {
		New(Options[string, string]{Verify: acceptAll})
	})
}

func TestRedisStatsStore_NilClientIsNoop(t *testing.T) {
	s := NewRedisStatsStore(nil, WithStatsPrefix(":custom:"), WithStatsTTL(time.Minute))
	assert.Equal(t, "custom", s.Prefix())
	assert.NoError(t, s.Record(context.Background(), StatsEvent{Outcome: OutcomeAccepted}))
}

func TestMultiStats(t *testing.T) {
	a, b := NewMemoryStatsStore(), NewMemoryStatsStore()
	m := MultiStats{a, nil, b}
	require.NoError(t, m.Record(context.Background(), StatsEvent{Dispatcher: "x", Outcome: OutcomeFailed}))
	assert.Equal(t, int64(1), a.Total().Failed)
	assert.Equal(t, int64(1), b.Total().Failed)
}
