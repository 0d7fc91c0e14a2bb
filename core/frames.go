package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// frames holds a rotation-minimising frame per curve sample.
type frames struct {
	tangents  []r3.Vector
	normals   []r3.Vector
	binormals []r3.Vector
}

// computeFrames samples n+1 frames along c. The first normal is seeded from
// the axis least aligned with the first tangent, then carried forward by
// parallel transport so the tube does not twist.
func computeFrames(c Curve, n int) frames {
	f := frames{
		tangents:  make([]r3.Vector, n+1),
		normals:   make([]r3.Vector, n+1),
		binormals: make([]r3.Vector, n+1),
	}
	for i := 0; i <= n; i++ {
		f.tangents[i] = c.Tangent(float64(i) / float64(n))
	}
	fillTangents(f.tangents, c.Point(0))

	t0 := f.tangents[0]
	seed := r3.Vector{Z: 1}
	tx, ty, tz := math.Abs(t0.X), math.Abs(t0.Y), math.Abs(t0.Z)
	switch {
	case tx <= ty && tx <= tz:
		seed = r3.Vector{X: 1}
	case ty <= tz:
		seed = r3.Vector{Y: 1}
	}
	v := unit(t0.Cross(seed))
	f.normals[0] = t0.Cross(v)
	f.binormals[0] = t0.Cross(f.normals[0])

	for i := 1; i <= n; i++ {
		prev, cur := f.tangents[i-1], f.tangents[i]
		normal := f.normals[i-1]
		axis := prev.Cross(cur)
		if axis.Norm() > 1e-12 {
			theta := math.Acos(clamp(prev.Dot(cur), -1, 1))
			q := mgl64.QuatRotate(theta, toVec3(axis.Normalize()))
			normal = fromVec3(q.Rotate(toVec3(normal)))
		}
		f.normals[i] = normal
		f.binormals[i] = cur.Cross(normal)
	}
	return f
}

// fillTangents replaces zero tangents so that stationary stretches of a
// curve still get a usable frame. Gaps take the nearest earlier tangent,
// leading gaps the first real one, and a curve that never moves gets an
// arbitrary direction orthogonal to where it sits.
func fillTangents(ts []r3.Vector, at r3.Vector) {
	first := -1
	for i, t := range ts {
		if t.Norm2() > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		dir := r3.Vector{Z: 1}
		if at.Norm2() > 0 {
			dir = at.Ortho()
		}
		for i := range ts {
			ts[i] = dir
		}
		return
	}
	for i := 0; i < first; i++ {
		ts[i] = ts[first]
	}
	for i := first + 1; i < len(ts); i++ {
		if ts[i].Norm2() == 0 {
			ts[i] = ts[i-1]
		}
	}
}
