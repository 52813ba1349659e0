package planner

import (
	"sync"
	"time"
)

// saveScheduler coalesces rapid successive mutations into a single
// trailing-edge write. Every Schedule resets the timer; the ids
// accumulated since the last fire are delivered together.
type saveScheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending map[string]struct{}
	fire    func(ids []string)
	closed  bool
}

func newSaveScheduler(delay time.Duration, fire func(ids []string)) *saveScheduler {
	return &saveScheduler{
		delay:   delay,
		pending: make(map[string]struct{}),
		fire:    fire,
	}
}

// Schedule marks id dirty and restarts the countdown.
func (s *saveScheduler) Schedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[id] = struct{}{}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.flushNow)
}

// MarkDirty re-adds id to the pending set without restarting the
// countdown. Used when a write fails: the id rides along with the next
// debounced save instead of triggering an immediate retry.
func (s *saveScheduler) MarkDirty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[id] = struct{}{}
}

func (s *saveScheduler) flushNow() {
	s.mu.Lock()
	ids := s.take()
	s.mu.Unlock()
	if len(ids) > 0 {
		s.fire(ids)
	}
}

// Flush fires immediately with whatever is pending.
func (s *saveScheduler) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	ids := s.take()
	s.mu.Unlock()
	if len(ids) > 0 {
		s.fire(ids)
	}
}

// Close cancels the pending timer and flushes outstanding writes once.
// An already in-flight write is not interrupted; persistence at
// teardown is best-effort.
func (s *saveScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	ids := s.take()
	s.mu.Unlock()
	if len(ids) > 0 {
		s.fire(ids)
	}
}

// take must be called with the lock held.
func (s *saveScheduler) take() []string {
	if len(s.pending) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = make(map[string]struct{})
	return ids
}
