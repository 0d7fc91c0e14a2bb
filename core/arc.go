package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/visitor-globe/model"
)

// ArcKind selects how an arc is drawn.
type ArcKind int

const (
	// ArcGround hugs the sphere surface along the great circle.
	ArcGround ArcKind = iota
	// ArcRaised lifts off the surface as a cubic bezier.
	ArcRaised
)

func (k ArcKind) String() string {
	if k == ArcRaised {
		return "RAISED"
	}
	return "GROUND"
}

const (
	// controlPointLift scales the arc altitude for the two interior bezier
	// control points so the curve itself peaks near Altitude.
	controlPointLift = 1.5
	// groundLift keeps ground arcs just above the sphere to avoid z-fighting,
	// as a fraction of the radius.
	groundLift = 0.001
)

// Arc describes a curve between two geographic points. Altitude is the
// height above the sphere in scene units.
type Arc struct {
	Start    model.GeoPoint
	End      model.GeoPoint
	Altitude float64
	Kind     ArcKind
}

type arcOptions struct {
	altitude  *float64
	autoScale float64
}

// ArcOption customises NewArc.
type ArcOption func(*arcOptions)

// WithAltitude fixes the arc altitude instead of deriving it from distance.
// Zero produces a ground arc.
func WithAltitude(alt float64) ArcOption {
	return func(o *arcOptions) { o.altitude = &alt }
}

// WithAltitudeAutoScale sets the factor applied to the derived altitude.
func WithAltitudeAutoScale(scale float64) ArcOption {
	return func(o *arcOptions) { o.autoScale = scale }
}

// AutoAltitude returns the altitude used when none is given: half the
// angular distance between the endpoints, times scale, in units of radius.
// Nearby points get low arcs and antipodal points stay below ~1.6 radii.
func AutoAltitude(start, end model.GeoPoint, radius, scale float64) float64 {
	return AngularDistance(start, end) / 2 * scale * radius
}

// NewArc resolves the altitude and kind for an arc of a sphere with the given
// radius.
func NewArc(start, end model.GeoPoint, radius float64, opts ...ArcOption) (Arc, error) {
	o := arcOptions{autoScale: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if !(radius > 0) {
		return Arc{}, fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidArgument, radius)
	}
	if o.autoScale < 0 || math.IsNaN(o.autoScale) {
		return Arc{}, fmt.Errorf("%w: altitude auto scale must be >= 0, got %v", ErrInvalidArgument, o.autoScale)
	}

	var alt float64
	if o.altitude != nil {
		alt = *o.altitude
		if alt < 0 || math.IsNaN(alt) {
			return Arc{}, fmt.Errorf("%w: altitude must be >= 0, got %v", ErrInvalidArgument, alt)
		}
	} else {
		alt = AutoAltitude(start, end, radius, o.autoScale)
	}

	kind := ArcGround
	if alt > 0 {
		kind = ArcRaised
	}
	return Arc{Start: start, End: end, Altitude: alt, Kind: kind}, nil
}

// BuildCurve produces the 3D path for arc on a sphere of the given radius.
//
// Raised arcs are cubic beziers through the projected endpoints and two
// control points a quarter and three quarters along the great circle, lifted
// to 1.5x the altitude. Ground arcs, and raised arcs whose altitude is zero,
// slerp between the endpoints just above the surface.
func BuildCurve(arc Arc, radius float64) Curve {
	if arc.Kind == ArcRaised && arc.Altitude > 0 {
		along := Interpolate(arc.Start, arc.End)
		lift := arc.Altitude * controlPointLift
		return &BezierCurve{
			P0: ProjectPoint(arc.Start, radius, 0),
			P1: ProjectPoint(along(0.25), radius, lift),
			P2: ProjectPoint(along(0.75), radius, lift),
			P3: ProjectPoint(arc.End, radius, 0),
		}
	}
	alt := groundLift * radius
	return NewSphereArc(
		ProjectPoint(arc.Start, radius, alt),
		ProjectPoint(arc.End, radius, alt),
	)
}
