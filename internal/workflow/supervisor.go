package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Supervisor runs background jobs whose outcome nobody awaits directly.
// Failures and panics are logged; Wait lets the process drain on shutdown.
type Supervisor struct {
	log logr.Logger
	wg  sync.WaitGroup

	mu      sync.Mutex
	running map[string]int
}

// NewSupervisor creates a Supervisor that logs through log.
func NewSupervisor(log logr.Logger) *Supervisor {
	return &Supervisor{log: log, running: make(map[string]int)}
}

// Go starts fn in its own goroutine under name.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	s.track(name, 1)

	go func() {
		defer s.wg.Done()
		defer s.track(name, -1)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error(fmt.Errorf("panic: %v", r), "background job panicked", "job", name, "stack", string(debug.Stack()))
			}
		}()

		start := time.Now()
		s.log.V(1).Info("background job started", "job", name)
		if err := fn(ctx); err != nil {
			s.log.Error(err, "background job failed", "job", name, "duration", time.Since(start))
			return
		}
		s.log.V(1).Info("background job finished", "job", name, "duration", time.Since(start))
	}()
}

// Running returns the number of jobs still in flight.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.running {
		n += c
	}
	return n
}

// Wait blocks until every job has returned or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed waiting for %d background job(s): %w", s.Running(), ctx.Err())
	}
}

func (s *Supervisor) track(name string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] += delta
	if s.running[name] <= 0 {
		delete(s.running, name)
	}
}
