package timectrl

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventScheduler runs callbacks at given frame times. The frame loop calls
// RunDue after every advance of the clock; reveal cooldowns and other
// delayed work register through Schedule and may be withdrawn with Cancel.
type EventScheduler interface {
	// Schedule registers f to run at frame time 'at' and returns an opaque
	// ID usable with Cancel.
	Schedule(at time.Time, f func()) (id string)

	// Cancel withdraws a scheduled callback. Unknown or already-run IDs are
	// ignored.
	Cancel(id string)

	// Now returns the current frame time.
	Now() time.Time

	// RunDue executes every callback whose time is <= Now(), earliest first.
	// Calling it repeatedly never runs a callback twice.
	RunDue()

	// Pending reports how many callbacks are still waiting.
	Pending() int
}

type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// eventScheduler orders events by time and reads the current time from a
// SimClock.
type eventScheduler struct {
	clock SimClock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // earliest first
	index   map[string]*scheduledEvent
}

// NewEventScheduler creates a scheduler backed by clock, usually the
// TimeController driving the frame loop.
func NewEventScheduler(clock SimClock) EventScheduler {
	return &eventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

func (s *eventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)
	ev := &scheduledEvent{id: id, when: at, f: f}

	// Equal times keep insertion order.
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(at)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev

	s.index[id] = ev
	return id
}

func (s *eventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	// Removal from s.events is lazy; RunDue skips cancelled entries.
	ev.cancelled = true
	delete(s.index, id)
}

func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *eventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// popDueLocked removes and returns the earliest live event due at now, or
// nil. Caller must hold s.mu.
func (s *eventScheduler) popDueLocked(now time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		return ev
	}
	return nil
}

func (s *eventScheduler) RunDue() {
	now := s.clock.Now()
	for {
		s.mu.Lock()
		ev := s.popDueLocked(now)
		s.mu.Unlock()
		if ev == nil {
			return
		}
		// Outside the lock so callbacks may schedule or cancel.
		if ev.f != nil {
			ev.f()
		}
	}
}
