package globe

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/visitor-globe/core"
	"github.com/signalsfoundry/visitor-globe/reveal"
)

// DedupePolicy decides what happens when an event arrives for a key that
// already has an arc on the globe.
type DedupePolicy int

const (
	// DedupeStack lets arcs for the same key pile up independently.
	DedupeStack DedupePolicy = iota
	// DedupeReplace detaches the older arc and cancels its pending repeat.
	DedupeReplace
)

func (d DedupePolicy) String() string {
	if d == DedupeReplace {
		return "replace"
	}
	return "stack"
}

// ParseDedupe accepts "stack" or "replace".
func ParseDedupe(s string) (DedupePolicy, error) {
	switch s {
	case "stack", "":
		return DedupeStack, nil
	case "replace":
		return DedupeReplace, nil
	default:
		return DedupeStack, fmt.Errorf("globe: unknown dedupe policy %q", s)
	}
}

// Config holds everything the engine needs to turn events into arcs.
type Config struct {
	Radius float64

	// AutoAltitude derives the altitude from the geodesic distance scaled by
	// AltitudeAutoScale; otherwise Altitude is used as is.
	AutoAltitude      bool
	Altitude          float64
	AltitudeAutoScale float64

	TubularSegments int
	RadialSegments  int
	TubeRadius      float64

	Reveal   reveal.Config
	Policy   reveal.Policy
	Cooldown time.Duration
	Dedupe   DedupePolicy

	MarkerSize  core.MarkerSize
	MarkerPulse bool
}

// DefaultConfig mirrors the stock globe: radius 5, auto altitude, 50x9
// tubes of radius 0.01, a 1s+2s reveal per phase, no repeat.
func DefaultConfig() Config {
	return Config{
		Radius:            core.DefaultGlobeRadius,
		AutoAltitude:      true,
		AltitudeAutoScale: 1,
		TubularSegments:   50,
		RadialSegments:    9,
		TubeRadius:        0.01,
		Reveal:            reveal.DefaultConfig(),
		Policy:            reveal.PolicyTerminate,
		Cooldown:          5 * time.Second,
		Dedupe:            DedupeStack,
		MarkerSize:        core.DefaultMarkerSize,
		MarkerPulse:       true,
	}
}

func (c Config) arcOptions() []core.ArcOption {
	if c.AutoAltitude {
		return []core.ArcOption{core.WithAltitudeAutoScale(c.AltitudeAutoScale)}
	}
	return []core.ArcOption{core.WithAltitude(c.Altitude)}
}
