package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/visitor-globe/model"
)

func raisedCurve(t *testing.T) Curve {
	t.Helper()
	arc, err := NewArc(beijing, singapore, DefaultGlobeRadius, WithAltitude(0.5))
	if err != nil {
		t.Fatalf("NewArc: %v", err)
	}
	return BuildCurve(arc, DefaultGlobeRadius)
}

func TestBuildTube_Counts(t *testing.T) {
	m, err := BuildTube(raisedCurve(t), 50, 0.01, 9)
	if err != nil {
		t.Fatalf("BuildTube: %v", err)
	}
	if got, want := len(m.Vertices), 51*10; got != want {
		t.Fatalf("vertex count = %d, want %d", got, want)
	}
	if len(m.Normals) != len(m.Vertices) || len(m.UVs) != len(m.Vertices) {
		t.Fatalf("attribute lengths differ: %d normals, %d uvs, %d vertices", len(m.Normals), len(m.UVs), len(m.Vertices))
	}
	if got, want := m.IndexCount(), 6*50*9; got != want {
		t.Fatalf("index count = %d, want %d", got, want)
	}
	if m.IndexCount()%3 != 0 {
		t.Fatalf("index count %d not divisible by 3", m.IndexCount())
	}
	if m.TriangleCount() != 900 {
		t.Fatalf("triangle count = %d, want 900", m.TriangleCount())
	}
	for _, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			t.Fatalf("index %d out of range", idx)
		}
	}
}

func TestBuildTube_IndexCountAlwaysTriangles(t *testing.T) {
	c := raisedCurve(t)
	for _, tubular := range []int{1, 2, 7, 64} {
		for _, radial := range []int{3, 4, 9, 16} {
			m, err := BuildTube(c, tubular, 0.02, radial)
			if err != nil {
				t.Fatalf("BuildTube(%d,%d): %v", tubular, radial, err)
			}
			if m.IndexCount()%3 != 0 {
				t.Fatalf("BuildTube(%d,%d) index count %d", tubular, radial, m.IndexCount())
			}
		}
	}
}

func TestBuildTube_StartsHidden(t *testing.T) {
	m, err := BuildTube(raisedCurve(t), 10, 0.01, 3)
	if err != nil {
		t.Fatalf("BuildTube: %v", err)
	}
	if got := m.DrawRange(); got != (DrawRange{}) {
		t.Fatalf("initial draw range = %+v, want [0,0]", got)
	}
	if m.Payload().Kind != model.PayloadArc {
		t.Fatalf("payload kind = %v, want ARC", m.Payload().Kind)
	}
	if m.NodeID() == "" {
		t.Fatalf("mesh has no node id")
	}
}

func TestBuildTube_RingsSitAtRadius(t *testing.T) {
	c := raisedCurve(t)
	const radius = 0.05
	m, err := BuildTube(c, 20, radius, 8)
	if err != nil {
		t.Fatalf("BuildTube: %v", err)
	}
	ring := m.RadialSegments + 1
	for i := 0; i <= m.TubularSegments; i++ {
		u := float64(i) / float64(m.TubularSegments)
		center := c.Point(u)
		tangent := c.Tangent(u)
		for j := 0; j < ring; j++ {
			k := i*ring + j
			if d := m.Vertices[k].Sub(center).Norm(); !near(d, radius, 1e-9) {
				t.Fatalf("vertex %d is %v from the curve, want %v", k, d, radius)
			}
			if dot := m.Normals[k].Dot(tangent); math.Abs(dot) > 1e-6 {
				t.Fatalf("normal %d not perpendicular to tangent (dot=%v)", k, dot)
			}
		}
	}
}

func TestBuildTube_DegenerateCurveHasNoNaN(t *testing.T) {
	arc, _ := NewArc(singapore, singapore, DefaultGlobeRadius)
	m, err := BuildTube(BuildCurve(arc, DefaultGlobeRadius), 50, 0.01, 9)
	if err != nil {
		t.Fatalf("BuildTube: %v", err)
	}
	for i, v := range m.Vertices {
		if !finite(v) || !finite(m.Normals[i]) {
			t.Fatalf("vertex %d not finite: %v / %v", i, v, m.Normals[i])
		}
	}
}

func TestBuildTube_InvalidArguments(t *testing.T) {
	c := raisedCurve(t)
	cases := []struct {
		name    string
		curve   Curve
		tubular int
		radius  float64
		radial  int
	}{
		{"nil curve", nil, 10, 0.01, 3},
		{"zero tubular", c, 0, 0.01, 3},
		{"negative tubular", c, -5, 0.01, 3},
		{"two radial", c, 10, 0.01, 2},
		{"zero radius", c, 10, 0, 3},
		{"negative radius", c, 10, -0.01, 3},
		{"nan radius", c, 10, math.NaN(), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildTube(tc.curve, tc.tubular, tc.radius, tc.radial)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestTubeMesh_SetDrawRangeClamps(t *testing.T) {
	m, err := BuildTube(raisedCurve(t), 4, 0.01, 3)
	if err != nil {
		t.Fatalf("BuildTube: %v", err)
	}
	total := m.IndexCount()

	cases := []struct {
		start, end int
		want       DrawRange
	}{
		{0, 10, DrawRange{0, 10}},
		{-4, 10, DrawRange{0, 10}},
		{0, total + 100, DrawRange{0, total}},
		{12, 6, DrawRange{12, 12}},
		{total + 5, total + 9, DrawRange{total, total}},
	}
	for _, tc := range cases {
		m.SetDrawRange(tc.start, tc.end)
		if got := m.DrawRange(); got != tc.want {
			t.Fatalf("SetDrawRange(%d,%d) -> %+v, want %+v", tc.start, tc.end, got, tc.want)
		}
		if got := m.DrawRange(); got.Start > got.End {
			t.Fatalf("start > end: %+v", got)
		}
	}
}

func TestTubeMesh_SetLabel(t *testing.T) {
	m, err := BuildTube(raisedCurve(t), 4, 0.01, 3)
	if err != nil {
		t.Fatalf("BuildTube: %v", err)
	}
	m.SetLabel("Singapore", 12)
	p := m.Payload()
	if p.Kind != model.PayloadArc || p.Label != "Singapore" || p.Metric != 12 {
		t.Fatalf("payload = %+v", p)
	}
}
