package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// Curve maps a parameter t in [0,1] onto a point in scene space.
type Curve interface {
	Point(t float64) r3.Vector
	// Tangent returns the unit direction of travel at t, or the zero vector
	// where the curve does not move.
	Tangent(t float64) r3.Vector
}

// Sample evaluates c at n+1 evenly spaced parameters from 0 to 1.
func Sample(c Curve, n int) []r3.Vector {
	if n <= 0 {
		return []r3.Vector{c.Point(0)}
	}
	pts := make([]r3.Vector, n+1)
	for i := range pts {
		pts[i] = c.Point(float64(i) / float64(n))
	}
	return pts
}

func toVec3(v r3.Vector) mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

func fromVec3(v mgl64.Vec3) r3.Vector { return r3.Vector{X: v[0], Y: v[1], Z: v[2]} }

// unit normalises v, leaving the zero vector alone.
func unit(v r3.Vector) r3.Vector {
	if v.Norm2() == 0 {
		return r3.Vector{}
	}
	return v.Normalize()
}

// BezierCurve is a cubic bezier through four control points.
type BezierCurve struct {
	P0, P1, P2, P3 r3.Vector
}

// Point implements Curve.
func (b *BezierCurve) Point(t float64) r3.Vector {
	return fromVec3(mgl64.CubicBezierCurve3D(t, toVec3(b.P0), toVec3(b.P1), toVec3(b.P2), toVec3(b.P3)))
}

// Tangent implements Curve using the analytic derivative.
func (b *BezierCurve) Tangent(t float64) r3.Vector {
	u := 1 - t
	d := b.P1.Sub(b.P0).Mul(3 * u * u).
		Add(b.P2.Sub(b.P1).Mul(6 * u * t)).
		Add(b.P3.Sub(b.P2).Mul(3 * t * t))
	return unit(d)
}

// antipodalEpsilon bounds sin(theta) below which two directions are treated
// as opposite and the closed-form slerp is no longer usable.
const antipodalEpsilon = 1e-9

// SphereArc moves along the great circle between two points at constant
// angular speed.
type SphereArc struct {
	start, end r3.Vector
	theta      float64
	sinTheta   float64
}

// NewSphereArc builds a slerp curve from start to end. Both points are
// expected to be the same distance from the origin.
func NewSphereArc(start, end r3.Vector) *SphereArc {
	theta := start.Angle(end).Radians()
	return &SphereArc{start: start, end: end, theta: theta, sinTheta: math.Sin(theta)}
}

// Angle returns the angle subtended by the arc in radians.
func (s *SphereArc) Angle() float64 { return s.theta }

func (s *SphereArc) antipodal() bool {
	return s.theta > math.Pi/2 && math.Abs(s.sinTheta) < antipodalEpsilon
}

// Point implements Curve.
func (s *SphereArc) Point(t float64) r3.Vector {
	if s.theta == 0 {
		return s.start
	}
	if s.antipodal() {
		r := s.start.Norm()*(1-t) + s.end.Norm()*t
		p := s2.Interpolate(t, s2.Point{Vector: unit(s.start)}, s2.Point{Vector: unit(s.end)})
		return p.Vector.Mul(r)
	}
	a := s.start.Mul(math.Sin((1 - t) * s.theta))
	b := s.end.Mul(math.Sin(t * s.theta))
	return a.Add(b).Mul(1 / s.sinTheta)
}

// Tangent implements Curve.
func (s *SphereArc) Tangent(t float64) r3.Vector {
	if s.theta == 0 {
		return r3.Vector{}
	}
	if s.antipodal() {
		const h = 1e-4
		lo, hi := math.Max(0, t-h), math.Min(1, t+h)
		return unit(s.Point(hi).Sub(s.Point(lo)))
	}
	a := s.start.Mul(-math.Cos((1 - t) * s.theta))
	b := s.end.Mul(math.Cos(t * s.theta))
	return unit(a.Add(b))
}
