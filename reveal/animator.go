package reveal

import (
	"fmt"
	"math"
	"time"
)

// Phase is the reveal state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFilling
	PhaseDraining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseFilling:
		return "FILLING"
	case PhaseDraining:
		return "DRAINING"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Policy decides what happens once a reveal has fully drained.
type Policy int

const (
	// PolicyTerminate leaves the mesh undrawn.
	PolicyTerminate Policy = iota
	// PolicyRepeat rebuilds the arc for the same endpoints after a cooldown.
	PolicyRepeat
)

func (p Policy) String() string {
	if p == PolicyRepeat {
		return "repeat"
	}
	return "terminate"
}

// ParsePolicy accepts "terminate" or "repeat".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "terminate", "":
		return PolicyTerminate, nil
	case "repeat":
		return PolicyRepeat, nil
	default:
		return PolicyTerminate, fmt.Errorf("reveal: unknown policy %q", s)
	}
}

// DrawRanger is the slice of a mesh the animator drives.
type DrawRanger interface {
	SetDrawRange(start, end int)
	IndexCount() int
}

// Config holds the timing shared by both phases.
type Config struct {
	Delay    time.Duration
	Duration time.Duration
	Ease     Ease
}

// DefaultConfig waits 1s, then animates each phase over 2s with SineInOut.
func DefaultConfig() Config {
	return Config{Delay: time.Second, Duration: 2 * time.Second, Ease: SineInOut}
}

// Option customises an Animator.
type Option func(*Animator)

// OnPhase registers a callback invoked on every phase change.
func OnPhase(fn func(Phase)) Option {
	return func(a *Animator) { a.onPhase = append(a.onPhase, fn) }
}

// OnComplete registers a callback invoked once DRAINING finishes.
func OnComplete(fn func()) Option {
	return func(a *Animator) { a.onComplete = append(a.onComplete, fn) }
}

// Animator is the fill-then-drain state machine for one mesh. It owns no
// timers; Advance must be called with the current frame time, always from
// the same goroutine.
type Animator struct {
	target DrawRanger
	cfg    Config

	phase    Phase
	progress float64
	total    int
	tween    Tween
	// completedAt is the drain tween's end, set on entering DONE.
	completedAt time.Time

	onPhase    []func(Phase)
	onComplete []func()
}

// New creates an idle animator for target.
func New(target DrawRanger, cfg Config, opts ...Option) *Animator {
	if cfg.Ease == nil {
		cfg.Ease = SineInOut
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Duration < 0 {
		cfg.Duration = 0
	}
	a := &Animator{target: target, cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start begins FILLING at now. Calling it while a reveal is in flight does
// nothing; calling it after DONE replays the reveal on the same mesh.
func (a *Animator) Start(now time.Time) {
	if a.phase == PhaseFilling || a.phase == PhaseDraining {
		return
	}
	a.total = a.target.IndexCount()
	a.completedAt = time.Time{}
	a.target.SetDrawRange(0, 0)
	a.enter(PhaseFilling, now)
}

// Advance samples the active tween at now, updates the draw range and
// performs any phase transitions that are due. A single call may cross
// both transitions when now is far past the last sample.
func (a *Animator) Advance(now time.Time) {
	for {
		switch a.phase {
		case PhaseFilling:
			a.sample(now)
			a.target.SetDrawRange(0, a.floor())
			if !a.tween.Done(now) {
				return
			}
			a.target.SetDrawRange(0, a.total)
			// The drain tween is anchored to the fill end, not to now.
			a.enter(PhaseDraining, a.tween.End())
		case PhaseDraining:
			a.sample(now)
			a.target.SetDrawRange(a.floor(), a.total)
			if !a.tween.Done(now) {
				return
			}
			a.target.SetDrawRange(a.total, a.total)
			a.completedAt = a.tween.End()
			a.enter(PhaseDone, a.completedAt)
			for _, fn := range a.onComplete {
				fn()
			}
			return
		default:
			return
		}
	}
}

// Phase returns the current state.
func (a *Animator) Phase() Phase { return a.phase }

// Progress returns progress within the current phase, in [0, total].
func (a *Animator) Progress() float64 { return a.progress }

// Total is the index count captured at Start.
func (a *Animator) Total() int { return a.total }

// CompletedAt returns when the drain tween ended. It is zero until the
// animator reaches DONE and does not depend on how late Advance noticed.
func (a *Animator) CompletedAt() time.Time { return a.completedAt }

// Done reports whether the reveal has finished draining.
func (a *Animator) Done() bool { return a.phase == PhaseDone }

func (a *Animator) enter(p Phase, from time.Time) {
	a.phase = p
	a.progress = 0
	if p == PhaseFilling || p == PhaseDraining {
		a.tween = NewTween(0, float64(a.total), from, a.cfg.Delay, a.cfg.Duration, a.cfg.Ease)
	}
	if p == PhaseDone {
		a.progress = float64(a.total)
	}
	for _, fn := range a.onPhase {
		fn(p)
	}
}

// sample moves progress forward only; a frame time earlier than the last
// one leaves it unchanged.
func (a *Animator) sample(now time.Time) {
	v := a.tween.Value(now)
	if v > a.progress {
		a.progress = v
	}
}

func (a *Animator) floor() int {
	n := int(math.Floor(a.progress))
	if n > a.total {
		return a.total
	}
	return n
}
