package dispatch

import (
	"context"
	"sync"
	"time"
)

// Outcome classifies a single attempt.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// StatsEvent describes one attempt made by a dispatcher.
type StatsEvent struct {
	Dispatcher string
	Outcome    Outcome
	Attempt    int
	At         time.Time
}

// StatsStore persists attempt statistics. Recording is best-effort: errors
// are logged by the dispatcher and never affect the task.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Counters tallies outcomes.
type Counters struct {
	Accepted int64
	Rejected int64
	Failed   int64
}

func (c *Counters) add(o Outcome) {
	switch o {
	case OutcomeAccepted:
		c.Accepted++
	case OutcomeRejected:
		c.Rejected++
	case OutcomeFailed:
		c.Failed++
	}
}

// MemoryStatsStore keeps counters in memory. Useful for tests and the CLI summary.
type MemoryStatsStore struct {
	mu     sync.Mutex
	total  Counters
	byName map[string]Counters
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{byName: make(map[string]Counters)}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	c := s.byName[ev.Dispatcher]
	c.add(ev.Outcome)
	s.byName[ev.Dispatcher] = c
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByDispatcher() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byName))
	for k, v := range s.byName {
		out[k] = v
	}
	return out
}

// MultiStats fans a record out to several stores, returning the first error.
type MultiStats []StatsStore

func (m MultiStats) Record(ctx context.Context, ev StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
