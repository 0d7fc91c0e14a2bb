package reveal

import "time"

// Tween interpolates a scalar between From and To over Duration, beginning
// at StartAt. It holds no timers: callers sample it with explicit instants.
type Tween struct {
	From, To float64
	StartAt  time.Time
	Duration time.Duration
	Ease     Ease
}

// NewTween builds a tween that begins after delay from now.
func NewTween(from, to float64, now time.Time, delay, duration time.Duration, ease Ease) Tween {
	if ease == nil {
		ease = SineInOut
	}
	return Tween{From: from, To: to, StartAt: now.Add(delay), Duration: duration, Ease: ease}
}

// Fraction returns normalised elapsed time at now, clamped to [0,1].
func (tw Tween) Fraction(now time.Time) float64 {
	if now.Before(tw.StartAt) {
		return 0
	}
	if tw.Duration <= 0 {
		return 1
	}
	x := float64(now.Sub(tw.StartAt)) / float64(tw.Duration)
	if x > 1 {
		return 1
	}
	return x
}

// Value returns the eased value at now.
func (tw Tween) Value(now time.Time) float64 {
	x := tw.Fraction(now)
	if x >= 1 {
		return tw.To
	}
	ease := tw.Ease
	if ease == nil {
		ease = SineInOut
	}
	return tw.From + (tw.To-tw.From)*ease(x)
}

// Done reports whether the tween has reached its end at now.
func (tw Tween) Done(now time.Time) bool {
	return !now.Before(tw.End())
}

// End is the instant the tween completes.
func (tw Tween) End() time.Time {
	return tw.StartAt.Add(tw.Duration)
}
