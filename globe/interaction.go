package globe

import (
	"sync"
	"time"

	"github.com/signalsfoundry/visitor-globe/reveal"
)

const (
	// rotationGain maps a normalised pointer offset to radians of group
	// rotation.
	rotationGain     = 1.8
	rotationEaseTime = 2 * time.Second
)

// Rotation is the globe group orientation in radians about X and Y.
type Rotation struct {
	X, Y float64
}

// Interaction holds pointer state and eases the globe rotation towards it.
// PointerMove may be called from the input goroutine; Step runs per frame.
type Interaction struct {
	mu sync.Mutex

	width, height float64
	hasPointer    bool
	px, py        float64

	target Rotation
	tx, ty reveal.Tween
	ease   reveal.Ease
}

// NewInteraction tracks a viewport of the given size in pixels.
func NewInteraction(width, height float64) *Interaction {
	return &Interaction{width: width, height: height, ease: reveal.QuadOut}
}

// Resize updates the viewport size.
func (in *Interaction) Resize(width, height float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.width, in.height = width, height
}

// PointerMove records a pointer position in pixels and retargets the
// rotation tween from the current rotation at now.
func (in *Interaction) PointerMove(clientX, clientY float64, now time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.width <= 0 || in.height <= 0 {
		return
	}
	in.px = clamp1(clientX/in.width*2 - 1)
	in.py = clamp1(-(clientY/in.height)*2 + 1)

	current := in.rotationLocked(now)
	in.target = Rotation{X: -in.py * rotationGain, Y: in.px * rotationGain}
	in.tx = reveal.NewTween(current.X, in.target.X, now, 0, rotationEaseTime, in.ease)
	in.ty = reveal.NewTween(current.Y, in.target.Y, now, 0, rotationEaseTime, in.ease)
	in.hasPointer = true
}

// Pointer returns the last normalised pointer position in [-1, 1].
func (in *Interaction) Pointer() (x, y float64, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.px, in.py, in.hasPointer
}

// Target is the rotation the globe eases towards.
func (in *Interaction) Target() Rotation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.target
}

// Step returns the group rotation at frame time now. Until the pointer
// first moves the globe stays at rest.
func (in *Interaction) Step(now time.Time) Rotation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.rotationLocked(now)
}

func (in *Interaction) rotationLocked(now time.Time) Rotation {
	if !in.hasPointer {
		return Rotation{}
	}
	return Rotation{X: in.tx.Value(now), Y: in.ty.Value(now)}
}

func clamp1(v float64) float64 {
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}
