package timectrl

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SimClock gives components access to frame time without tying them to a
// concrete controller, so tests can substitute a fake.
type SimClock interface {
	// Now returns the current frame time.
	Now() time.Time
	// After returns a channel that receives the frame time once d has
	// elapsed in frame time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances frame time.
type Mode int

const (
	// RealTime advances by Tick on every wall-clock tick.
	RealTime Mode = iota
	// Accelerated advances by Tick as fast as the loop runs.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// TimeController drives the render loop: every tick it advances frame time
// and invokes the registered listeners in order. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	clock       clock.Clock
	currentTime time.Time
	timers      []timer

	listeners []func(time.Time)
}

// Option customises a TimeController.
type Option func(*TimeController)

// WithClock replaces the wall clock that paces RealTime ticks, typically
// with clock.NewMock() in tests.
func WithClock(c clock.Clock) Option {
	return func(tc *TimeController) { tc.clock = c }
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode, opts ...Option) *TimeController {
	tc := &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		clock:       clock.New(),
		currentTime: start,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Now returns the current frame time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps frame time to t and fires any timers now due.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	due := tc.takeDueLocked(t)
	tc.mu.Unlock()
	fire(due, t)
}

// After returns a channel that receives the frame time once d has elapsed in
// frame time. Implements SimClock.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	at := tc.currentTime.Add(d)
	if d <= 0 {
		now := tc.currentTime
		tc.mu.Unlock()
		ch <- now
		return ch
	}
	tc.timers = append(tc.timers, timer{at: at, ch: ch})
	tc.mu.Unlock()
	return ch
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration in a separate
// goroutine; a duration of zero runs until stop is closed. It returns a
// channel that is closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		frameTime := tc.StartTime
		tc.currentTime = frameTime
		tc.mu.Unlock()

		elapsed := time.Duration(0)

		var tick <-chan time.Time
		if tc.Mode == RealTime {
			ticker := tc.clock.Ticker(tc.Tick)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if tick != nil {
				select {
				case <-stop:
					return
				case <-tick:
				}
			} else {
				select {
				case <-stop:
					return
				default:
				}
			}
			frameTime = frameTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = frameTime
			due := tc.takeDueLocked(frameTime)
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.Unlock()

			fire(due, frameTime)
			for _, fn := range listeners {
				fn(frameTime)
			}
		}
	}()
	return done
}

// takeDueLocked removes and returns timers whose deadline is <= now.
// Caller must hold tc.mu.
func (tc *TimeController) takeDueLocked(now time.Time) []timer {
	var due []timer
	kept := tc.timers[:0]
	for _, t := range tc.timers {
		if !t.at.After(now) {
			due = append(due, t)
		} else {
			kept = append(kept, t)
		}
	}
	tc.timers = kept
	return due
}

func fire(due []timer, now time.Time) {
	for _, t := range due {
		t.ch <- now
	}
}
