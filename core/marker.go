package core

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/signalsfoundry/visitor-globe/model"
)

// MarkerSize is the box extent of a marker. Depth runs along the surface
// normal.
type MarkerSize struct {
	Width  float64
	Height float64
	Depth  float64
}

// DefaultMarkerSize matches the visitor markers on the globe.
var DefaultMarkerSize = MarkerSize{Width: 0.1, Height: 0.1, Depth: 0.4}

// Marker is a small box standing on the sphere at a geographic point.
type Marker struct {
	id string

	Geo model.GeoPoint
	// Anchor is the projected surface point. The box grows outward from it.
	Anchor r3.Vector
	// Orientation rotates the box's local +Z onto the direction of the sphere
	// centre.
	Orientation mgl64.Quat
	Size        MarkerSize
	Motion      MotionModel

	payload model.Payload
}

// MarkerOption customises PlaceMarker.
type MarkerOption func(*Marker)

// WithMarkerSize overrides DefaultMarkerSize.
func WithMarkerSize(s MarkerSize) MarkerOption {
	return func(m *Marker) { m.Size = s }
}

// WithMotion attaches a pulse model.
func WithMotion(mm MotionModel) MarkerOption {
	return func(m *Marker) { m.Motion = mm }
}

// PlaceMarker projects (lat, lon) onto a sphere of the given radius and
// stands a box there facing the centre, tagged with label and metric.
func PlaceMarker(lat, lon, radius float64, label string, metric float64, opts ...MarkerOption) *Marker {
	anchor := Project(lat, lon, radius, 0)
	orient := mgl64.QuatIdent()
	if anchor.Norm2() > 0 {
		orient = mgl64.QuatBetweenVectors(mgl64.Vec3{0, 0, 1}, toVec3(anchor.Mul(-1).Normalize()))
	}
	m := &Marker{
		id:          uuid.NewString(),
		Geo:         model.GeoPoint{Latitude: lat, Longitude: lon},
		Anchor:      anchor,
		Orientation: orient,
		Size:        DefaultMarkerSize,
		Motion:      StaticMotionModel{},
		payload:     model.Payload{Kind: model.PayloadMarker, Label: label, Metric: metric},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NodeID identifies the marker in a scene.
func (m *Marker) NodeID() string { return m.id }

// Payload returns the hit-test payload. Its Kind is always PayloadMarker.
func (m *Marker) Payload() model.Payload { return m.payload }

// Outward returns the unit surface normal at the marker.
func (m *Marker) Outward() r3.Vector { return unit(m.Anchor) }

// Center returns the box centre with the depth scaled by scale. At scale 1
// the box sits half its depth above the surface, so none of it is buried.
func (m *Marker) Center(scale float64) r3.Vector {
	return m.Anchor.Add(m.Outward().Mul(m.Size.Depth * scale / 2))
}

// Corners returns the eight box corners in scene space for a depth scale.
func (m *Marker) Corners(scale float64) [8]r3.Vector {
	var out [8]r3.Vector
	hw, hh, d := m.Size.Width/2, m.Size.Height/2, m.Size.Depth*scale
	i := 0
	for _, x := range []float64{-hw, hw} {
		for _, y := range []float64{-hh, hh} {
			// Local +Z faces the centre, so the box occupies z in [-d, 0].
			for _, z := range []float64{-d, 0} {
				local := m.Orientation.Rotate(mgl64.Vec3{x, y, z})
				out[i] = m.Anchor.Add(fromVec3(local))
				i++
			}
		}
	}
	return out
}
