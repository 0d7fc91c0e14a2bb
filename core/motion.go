package core

import (
	"math/rand/v2"
	"time"
)

// MotionModel yields the depth scale of a marker at a given time.
type MotionModel interface {
	ScaleAt(t time.Time) float64
}

// StaticMotionModel never pulses.
type StaticMotionModel struct{}

// ScaleAt always returns 1.
func (StaticMotionModel) ScaleAt(time.Time) float64 { return 1 }

const (
	defaultPulsePeriod = 2 * time.Second
	defaultPulseScale  = 1.4
	maxPulseOffset     = time.Second
)

// YoyoPulse scales linearly From -> To over Period, then back, forever. The
// pulse starts Offset after Start; before that the scale is From.
type YoyoPulse struct {
	Start  time.Time
	Offset time.Duration
	Period time.Duration
	From   float64
	To     float64
}

// NewYoyoPulse returns the default marker pulse (1 -> 1.4 over 2s) with a
// random start offset in [0, 1s) so neighbouring markers do not beat in
// step. A nil rng uses the global source.
func NewYoyoPulse(start time.Time, rng *rand.Rand) *YoyoPulse {
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	return &YoyoPulse{
		Start:  start,
		Offset: time.Duration(f * float64(maxPulseOffset)),
		Period: defaultPulsePeriod,
		From:   1,
		To:     defaultPulseScale,
	}
}

// ScaleAt implements MotionModel.
func (p *YoyoPulse) ScaleAt(t time.Time) float64 {
	elapsed := t.Sub(p.Start) - p.Offset
	if elapsed <= 0 || p.Period <= 0 {
		return p.From
	}
	cycle := elapsed % (2 * p.Period)
	x := float64(cycle) / float64(p.Period)
	if x > 1 {
		x = 2 - x
	}
	return p.From + (p.To-p.From)*x
}

// NewMotionModel picks the pulse for a marker placed at start, or a static
// model when pulsing is disabled.
func NewMotionModel(pulse bool, start time.Time, rng *rand.Rand) MotionModel {
	if pulse {
		return NewYoyoPulse(start, rng)
	}
	return StaticMotionModel{}
}
