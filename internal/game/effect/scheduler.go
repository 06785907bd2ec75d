// Package effect provides timed continuations and the transient visual effects
// built on them.
package effect

import (
	"sort"
	"sync"
	"time"
)

// Task is a scheduled continuation.
type Task interface {
	// Stop prevents the continuation from running. It reports whether the call
	// stopped a pending continuation. Safe to call multiple times.
	Stop() bool
}

// Scheduler runs fn once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task
}

// TimerScheduler schedules continuations on wall-clock timers. Continuations
// run on their own goroutine.
type TimerScheduler struct{}

// AfterFunc starts a timer that calls fn after d unless the returned Task is stopped.
//
// Precondition: fn must not be nil.
// Postcondition: fn will not be called after Stop returns true.
func (TimerScheduler) AfterFunc(d time.Duration, fn func()) Task {
	t := &timerTask{}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		fn()
	})
	return t
}

type timerTask struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	fired   bool
}

func (t *timerTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

// DeferredScheduler queues continuations against a virtual clock that only moves
// when the owning loop calls Advance. Continuations run on the caller of Advance,
// which keeps every state mutation on the simulation thread.
//
// DeferredScheduler is not safe for concurrent use.
type DeferredScheduler struct {
	now     time.Duration
	seq     uint64
	pending []*deferredTask
}

// NewDeferredScheduler returns a scheduler whose clock starts at zero.
func NewDeferredScheduler() *DeferredScheduler {
	return &DeferredScheduler{}
}

type deferredTask struct {
	due     time.Duration
	seq     uint64
	fn      func()
	stopped bool
	done    bool
}

func (t *deferredTask) Stop() bool {
	if t.stopped || t.done {
		return false
	}
	t.stopped = true
	return true
}

// AfterFunc queues fn to run once the clock reaches Now()+d.
//
// Precondition: fn must not be nil; negative d is treated as zero.
func (s *DeferredScheduler) AfterFunc(d time.Duration, fn func()) Task {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &deferredTask{due: s.now + d, seq: s.seq, fn: fn}
	s.pending = append(s.pending, t)
	return t
}

// Now returns the virtual time elapsed since creation.
func (s *DeferredScheduler) Now() time.Duration {
	return s.now
}

// Pending returns the number of continuations that have neither run nor been stopped.
func (s *DeferredScheduler) Pending() int {
	n := 0
	for _, t := range s.pending {
		if !t.stopped && !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and runs every due continuation in
// due-time order, ties broken by scheduling order. Continuations scheduled by a
// running continuation run in the same call if they fall due.
//
// Postcondition: Returns the number of continuations run.
func (s *DeferredScheduler) Advance(d time.Duration) int {
	if d > 0 {
		s.now += d
	}
	ran := 0
	for {
		next := s.popDue()
		if next == nil {
			return ran
		}
		next.done = true
		next.fn()
		ran++
	}
}

func (s *DeferredScheduler) popDue() *deferredTask {
	live := s.pending[:0]
	for _, t := range s.pending {
		if !t.stopped && !t.done {
			live = append(live, t)
		}
	}
	s.pending = live
	if len(s.pending) == 0 {
		return nil
	}
	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].due != s.pending[j].due {
			return s.pending[i].due < s.pending[j].due
		}
		return s.pending[i].seq < s.pending[j].seq
	})
	if s.pending[0].due > s.now {
		return nil
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	return t
}
