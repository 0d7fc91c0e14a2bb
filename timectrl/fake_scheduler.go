package timectrl

import (
	"fmt"
	"sync"
	"time"
)

// FakeEventScheduler keeps its own notion of time that tests move forward
// explicitly with AdvanceTo or Advance. Due callbacks run synchronously on
// the caller's goroutine, which makes animation timing deterministic.
type FakeEventScheduler struct {
	mu      sync.Mutex
	now     time.Time
	counter uint64

	events []*scheduledEvent // earliest first
	index  map[string]*scheduledEvent
}

// NewFakeEventScheduler starts a fake scheduler at the given time.
func NewFakeEventScheduler(start time.Time) *FakeEventScheduler {
	return &FakeEventScheduler{
		now:   start,
		index: make(map[string]*scheduledEvent),
	}
}

// Now returns the fake time.
func (s *FakeEventScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback to run at the given fake time.
func (s *FakeEventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("fake-ev-%d", s.counter)
	ev := &scheduledEvent{id: id, when: at, f: f}

	inserted := false
	for i, existing := range s.events {
		if at.Before(existing.when) {
			s.events = append(s.events[:i], append([]*scheduledEvent{ev}, s.events[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		s.events = append(s.events, ev)
	}
	s.index[id] = ev
	return id
}

// Cancel withdraws a scheduled callback.
func (s *FakeEventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
}

// Pending reports how many callbacks are waiting.
func (s *FakeEventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// RunDue executes all callbacks whose time is <= the fake now.
func (s *FakeEventScheduler) RunDue() {
	for {
		s.mu.Lock()
		if len(s.events) == 0 || s.events[0].when.After(s.now) {
			s.mu.Unlock()
			return
		}
		ev := s.events[0]
		s.events = s.events[1:]
		if ev.cancelled {
			s.mu.Unlock()
			continue
		}
		delete(s.index, ev.id)
		callback := ev.f
		s.mu.Unlock()

		if callback != nil {
			callback()
		}
	}
}

// AdvanceTo moves fake time to t and runs everything due. Time never moves
// backwards.
func (s *FakeEventScheduler) AdvanceTo(t time.Time) {
	s.mu.Lock()
	if t.Before(s.now) {
		s.mu.Unlock()
		return
	}
	s.now = t
	s.mu.Unlock()

	s.RunDue()
}

// Advance moves fake time forward by d.
func (s *FakeEventScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}
