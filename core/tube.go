package core

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/signalsfoundry/visitor-globe/model"
)

// DrawRange is the half-open interval [Start, End) of the index buffer that
// is currently rendered.
type DrawRange struct {
	Start int
	End   int
}

// Count returns the number of indices drawn.
func (r DrawRange) Count() int { return r.End - r.Start }

// TubeMesh is an open tube swept along a curve. Rings of RadialSegments+1
// vertices (the seam is duplicated) sit at TubularSegments+1 samples, and
// each quad between neighbouring rings is split into two triangles.
type TubeMesh struct {
	id string

	Vertices []r3.Vector
	Normals  []r3.Vector
	UVs      [][2]float64
	Indices  []uint32

	TubularSegments int
	RadialSegments  int
	Radius          float64

	payload   model.Payload
	drawRange DrawRange
}

// BuildTube sweeps a circle of the given radius along curve. The mesh starts
// fully hidden with a draw range of [0, 0].
func BuildTube(curve Curve, tubularSegments int, radius float64, radialSegments int) (*TubeMesh, error) {
	if curve == nil {
		return nil, fmt.Errorf("%w: nil curve", ErrInvalidArgument)
	}
	if tubularSegments <= 0 {
		return nil, fmt.Errorf("%w: tubular segments must be > 0, got %d", ErrInvalidArgument, tubularSegments)
	}
	if radialSegments < 3 {
		return nil, fmt.Errorf("%w: radial segments must be >= 3, got %d", ErrInvalidArgument, radialSegments)
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: tube radius must be positive, got %v", ErrInvalidArgument, radius)
	}

	fr := computeFrames(curve, tubularSegments)
	ring := radialSegments + 1
	nverts := (tubularSegments + 1) * ring

	m := &TubeMesh{
		id:              uuid.NewString(),
		Vertices:        make([]r3.Vector, 0, nverts),
		Normals:         make([]r3.Vector, 0, nverts),
		UVs:             make([][2]float64, 0, nverts),
		Indices:         make([]uint32, 0, 6*tubularSegments*radialSegments),
		TubularSegments: tubularSegments,
		RadialSegments:  radialSegments,
		Radius:          radius,
		payload:         model.Payload{Kind: model.PayloadArc},
	}

	for i := 0; i <= tubularSegments; i++ {
		u := float64(i) / float64(tubularSegments)
		p := curve.Point(u)
		n, b := fr.normals[i], fr.binormals[i]
		for j := 0; j <= radialSegments; j++ {
			v := float64(j) / float64(radialSegments)
			angle := v * 2 * math.Pi
			normal := unit(n.Mul(-math.Cos(angle)).Add(b.Mul(math.Sin(angle))))
			m.Normals = append(m.Normals, normal)
			m.Vertices = append(m.Vertices, p.Add(normal.Mul(radius)))
			m.UVs = append(m.UVs, [2]float64{u, v})
		}
	}

	for j := 1; j <= tubularSegments; j++ {
		for i := 1; i <= radialSegments; i++ {
			a := uint32(ring*(j-1) + (i - 1))
			b := uint32(ring*j + (i - 1))
			c := uint32(ring*j + i)
			d := uint32(ring*(j-1) + i)
			m.Indices = append(m.Indices, a, b, d, b, c, d)
		}
	}

	if len(m.Indices)%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices", ErrNotTriangulated, len(m.Indices))
	}
	return m, nil
}

// NodeID identifies the mesh in a scene.
func (m *TubeMesh) NodeID() string { return m.id }

// Payload returns the hit-test payload. Its Kind is always PayloadArc.
func (m *TubeMesh) Payload() model.Payload { return m.payload }

// SetLabel attaches the label and metric shown when the arc is picked.
func (m *TubeMesh) SetLabel(label string, metric float64) {
	m.payload.Label = label
	m.payload.Metric = metric
}

// IndexCount is the total number of indices, three per triangle.
func (m *TubeMesh) IndexCount() int { return len(m.Indices) }

// TriangleCount is IndexCount / 3.
func (m *TubeMesh) TriangleCount() int { return len(m.Indices) / 3 }

// DrawRange returns the currently visible index interval.
func (m *TubeMesh) DrawRange() DrawRange { return m.drawRange }

// SetDrawRange sets the visible interval. Both ends are clamped to
// [0, IndexCount] and End is raised to Start when they cross.
func (m *TubeMesh) SetDrawRange(start, end int) {
	total := len(m.Indices)
	start = min(max(start, 0), total)
	end = min(max(end, start), total)
	m.drawRange = DrawRange{Start: start, End: end}
}
