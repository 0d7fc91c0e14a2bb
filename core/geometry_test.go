package core

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/signalsfoundry/visitor-globe/model"
)

const eps = 1e-9

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func vecNear(a, b r3.Vector, tol float64) bool {
	return a.Sub(b).Norm() <= tol
}

func TestProject_OriginMapsToPositiveZ(t *testing.T) {
	got := Project(0, 0, 5, 0)
	want := r3.Vector{Z: 5}
	if !vecNear(got, want, eps) {
		t.Fatalf("Project(0,0,5) = %v, want %v", got, want)
	}
	if !near(got.Norm(), 5, eps) {
		t.Fatalf("distance from origin = %v, want 5", got.Norm())
	}
}

func TestProject_Axes(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon float64
		want     r3.Vector
	}{
		{"north pole", 90, 0, r3.Vector{Y: 2}},
		{"south pole", -90, 0, r3.Vector{Y: -2}},
		{"90 east", 0, 90, r3.Vector{X: 2}},
		{"90 west", 0, -90, r3.Vector{X: -2}},
		{"antimeridian", 0, 180, r3.Vector{Z: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Project(tc.lat, tc.lon, 2, 0); !vecNear(got, tc.want, 1e-12) {
				t.Fatalf("Project(%v,%v) = %v, want %v", tc.lat, tc.lon, got, tc.want)
			}
		})
	}
}

func TestProject_MagnitudeEqualsRadius(t *testing.T) {
	for lat := -90.0; lat <= 90; lat += 7.5 {
		for lon := -180.0; lon <= 180; lon += 11.25 {
			if got := Project(lat, lon, DefaultGlobeRadius, 0).Norm(); !near(got, DefaultGlobeRadius, 1e-12) {
				t.Fatalf("|Project(%v,%v)| = %v, want %v", lat, lon, got, DefaultGlobeRadius)
			}
		}
	}
}

func TestProject_AltitudeAddsToRadius(t *testing.T) {
	got := Project(39.9042, 116.4074, 5, 0.5).Norm()
	if !near(got, 5.5, 1e-12) {
		t.Fatalf("|p| = %v, want 5.5", got)
	}
}

func TestProject_OutOfRangeIsNotClamped(t *testing.T) {
	// 100 deg latitude wraps over the pole instead of being clamped to 90.
	over := Project(100, 0, 1, 0)
	if !vecNear(over, Project(80, 180, 1, 0), 1e-12) {
		t.Fatalf("Project(100,0) = %v, expected it to match Project(80,180)", over)
	}
}

func TestUnprojectRoundTrip(t *testing.T) {
	p := model.LatLon(-14.235, -51.9235)
	geo, alt := Unproject(ProjectPoint(p, 5, 0.25), 5)
	if !near(geo.Latitude, p.Latitude, 1e-9) || !near(geo.Longitude, p.Longitude, 1e-9) {
		t.Fatalf("Unproject = %v, want %v", geo, p)
	}
	if !near(alt, 0.25, 1e-12) {
		t.Fatalf("altitude = %v, want 0.25", alt)
	}
}
