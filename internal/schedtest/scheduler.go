// Package schedtest provides a hand-driven clock and scheduler for tests
package schedtest

import (
	"sync"
	"time"
)

type task struct {
	at  time.Time
	seq int
	f   func()
}

// Scheduler runs deferred callbacks only when the test advances its clock.
// Callbacks fire in due-time order, ties in scheduling order.
type Scheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []task
}

// New returns a scheduler whose clock starts at start
func New(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

// Now returns the scheduler's current time
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc queues f to run once the clock has moved d forward
func (s *Scheduler) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.tasks = append(s.tasks, task{at: s.now.Add(d), seq: s.seq, f: f})
}

// Pending returns the number of queued callbacks
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance moves the clock forward by d, running every callback that falls
// due on the way, including ones queued by earlier callbacks.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for s.runNext(target) {
	}

	s.mu.Lock()
	if target.After(s.now) {
		s.now = target
	}
	s.mu.Unlock()
}

// RunAll runs callbacks until none are left, moving the clock as needed
func (s *Scheduler) RunAll() {
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.tasks[s.earliest()].at
		s.mu.Unlock()

		s.runNext(next)
	}
}

func (s *Scheduler) runNext(deadline time.Time) bool {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	i := s.earliest()
	t := s.tasks[i]
	if t.at.After(deadline) {
		s.mu.Unlock()
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	if t.at.After(s.now) {
		s.now = t.at
	}
	s.mu.Unlock()

	t.f()
	return true
}

// earliest must be called with mu held and at least one task queued
func (s *Scheduler) earliest() int {
	best := 0
	for i, t := range s.tasks[1:] {
		b := s.tasks[best]
		if t.at.Before(b.at) || (t.at.Equal(b.at) && t.seq < b.seq) {
			best = i + 1
		}
	}
	return best
}
