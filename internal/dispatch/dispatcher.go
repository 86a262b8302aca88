package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
)

var (
	// ErrClosed is returned for tasks that were still queued when the dispatcher closed.
	ErrClosed = errors.New("dispatch: dispatcher closed")
	// ErrRetriesExhausted is returned when a task was rejected MaxAttempts times.
	ErrRetriesExhausted = errors.New("dispatch: retries exhausted")
)

// State is the scheduling state of a dispatcher.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDelayed State = "delayed"
)

// Verdict is the outcome of verifying a raw response.
type Verdict struct {
	// Accepted responses fulfil the task. Rejected ones re-queue it.
	Accepted bool
	// RetryNotBefore holds back the next task until that instant. Zero means no delay.
	RetryNotBefore time.Time
}

// Options configure a Dispatcher. Do and Verify are required.
type Options[Req, Resp any] struct {
	// Name identifies the dispatcher in logs and statistics.
	Name string
	// Do performs one attempt. Errors are transport failures and are not retried.
	Do func(ctx context.Context, req Req) (Resp, error)
	// Verify inspects a response and tells whether it was accepted.
	Verify func(resp Resp) Verdict
	// Discard releases a rejected response (e.g., closes an HTTP body).
	Discard func(resp Resp)
	// MaxAttempts caps attempts per task. Zero or less means unlimited.
	MaxAttempts int
	// Limiter optionally paces attempts on the client side.
	Limiter *rate.Limiter
	// Stats optionally records every attempt outcome.
	Stats StatsStore
	Logger logr.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type task[Req, Resp any] struct {
	req      Req
	future   *Future[Resp]
	attempts int
}

// Snapshot is a point-in-time view of the dispatcher state.
type Snapshot struct {
	State          State
	Pending        int
	InFlight       bool
	RetryNotBefore time.Time
}

// Dispatcher runs at most one request at a time, in submission order,
// re-queueing rejected requests at the back of the backlog.
type Dispatcher[Req, Resp any] struct {
	opts   Options[Req, Resp]
	log    logr.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          State
	current        *task[Req, Resp]
	queue          []*task[Req, Resp]
	retryNotBefore time.Time
	closed         bool

	wg sync.WaitGroup
}

// New creates an idle dispatcher. It panics if Do or Verify is missing.
func New[Req, Resp any](opts Options[Req, Resp]) *Dispatcher[Req, Resp] {
	if opts.Do == nil || opts.Verify == nil {
		panic("dispatch: Options.Do and Options.Verify are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher[Req, Resp]{
		opts:   opts,
		log:    log.WithValues("dispatcher", opts.Name),
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
	}
}

// Submit queues req and returns its future.
func (d *Dispatcher[Req, Resp]) Submit(req Req) *Future[Resp] {
	f := newFuture[Resp]()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		f.fail(ErrClosed)
		return f
	}

	d.queue = append(d.queue, &task[Req, Resp]{req: req, future: f})
	if d.state == StateIdle {
		d.state = StateRunning
		d.wg.Add(1)
		go d.loop()
	}
	return f
}

// Do submits req and waits for its result.
func (d *Dispatcher[Req, Resp]) Do(ctx context.Context, req Req) (Resp, error) {
	return d.Submit(req).Wait(ctx)
}

// Snapshot reports the current state.
func (d *Dispatcher[Req, Resp]) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		State:          d.state,
		Pending:        len(d.queue),
		InFlight:       d.current != nil,
		RetryNotBefore: d.retryNotBefore,
	}
}

// Close fails every queued task with ErrClosed, aborts the in-flight one and
// waits for the processing goroutine to exit.
func (d *Dispatcher[Req, Resp]) Close() {
	d.mu.Lock()
	d.closed = true
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	d.cancel()
	for _, t := range pending {
		t.future.fail(ErrClosed)
	}
	d.wg.Wait()
}

func (d *Dispatcher[Req, Resp]) loop() {
	defer d.wg.Done()

	for {
		t, wait, ok := d.next()
		if !ok {
			return
		}

		if wait > 0 {
			d.log.V(1).Info("holding next request", "wait", wait)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-d.ctx.Done():
				timer.Stop()
				d.finish(t)
				t.future.fail(ErrClosed)
				continue
			}
			d.mu.Lock()
			d.state = StateRunning
			d.mu.Unlock()
		}

		d.run(t)
	}
}

// next dequeues the head of the backlog, or moves to Idle when it is empty.
func (d *Dispatcher[Req, Resp]) next() (*task[Req, Resp], time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || len(d.queue) == 0 {
		d.state = StateIdle
		d.current = nil
		return nil, 0, false
	}

	t := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.current = t

	var wait time.Duration
	if !d.retryNotBefore.IsZero() {
		wait = d.retryNotBefore.Sub(d.opts.Now())
	}
	if wait > 0 {
		d.state = StateDelayed
	} else {
		d.state = StateRunning
	}
	return t, wait, true
}

func (d *Dispatcher[Req, Resp]) finish(t *task[Req, Resp]) {
	d.mu.Lock()
	if d.current == t {
		d.current = nil
	}
	d.mu.Unlock()
}

func (d *Dispatcher[Req, Resp]) run(t *task[Req, Resp]) {
	if d.opts.Limiter != nil {
		if err := d.opts.Limiter.Wait(d.ctx); err != nil {
			d.finish(t)
			t.future.fail(fmt.Errorf("dispatch: pacing: %w", err))
			return
		}
	}

	t.attempts++
	resp, err := d.opts.Do(d.ctx, t.req)
	if err != nil {
		d.finish(t)
		d.record(OutcomeFailed, t.attempts)
		d.log.V(1).Info("request failed", "attempt", t.attempts, "error", err.Error())
		t.future.fail(err)
		return
	}

	verdict := d.opts.Verify(resp)
	exhausted := !verdict.Accepted && d.opts.MaxAttempts > 0 && t.attempts >= d.opts.MaxAttempts

	d.mu.Lock()
	d.retryNotBefore = verdict.RetryNotBefore
	d.current = nil
	requeue := !verdict.Accepted && !exhausted && !d.closed
	if requeue {
		d.queue = append(d.queue, t)
	}
	closed := d.closed
	d.mu.Unlock()

	switch {
	case verdict.Accepted:
		d.record(OutcomeAccepted, t.attempts)
		t.future.resolve(resp)
	case requeue:
		d.record(OutcomeRejected, t.attempts)
		d.discard(resp)
		d.log.Info("request rejected by upstream, re-queued", "attempt", t.attempts, "retryNotBefore", verdict.RetryNotBefore)
	case exhausted:
		d.record(OutcomeRejected, t.attempts)
		d.discard(resp)
		t.future.fail(fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, t.attempts))
	case closed:
		d.discard(resp)
		t.future.fail(ErrClosed)
	}
}

func (d *Dispatcher[Req, Resp]) discard(resp Resp) {
	if d.opts.Discard != nil {
		d.opts.Discard(resp)
	}
}

func (d *Dispatcher[Req, Resp]) record(outcome Outcome, attempt int) {
	if d.opts.Stats == nil {
		return
	}
	ev := StatsEvent{Dispatcher: d.opts.Name, Outcome: outcome, Attempt: attempt, At: d.opts.Now()}
	if err := d.opts.Stats.Record(d.ctx, ev); err != nil {
		d.log.V(1).Info("failed to record stats", "error", err.Error())
	}
}
