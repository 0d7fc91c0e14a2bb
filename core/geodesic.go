package core

import (
	"github.com/golang/geo/s2"

	"github.com/signalsfoundry/visitor-globe/model"
)

func toLatLng(p model.GeoPoint) s2.LatLng {
	return s2.LatLngFromDegrees(p.Latitude, p.Longitude)
}

func fromLatLng(ll s2.LatLng) model.GeoPoint {
	return model.GeoPoint{Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees()}
}

// AngularDistance returns the great-circle distance between a and b in
// radians, computed with the haversine formula.
func AngularDistance(a, b model.GeoPoint) float64 {
	return toLatLng(a).Distance(toLatLng(b)).Radians()
}

// Interpolate returns a function giving the point a fraction t of the way
// along the great circle from a to b. t=0 yields a and t=1 yields b.
//
// When a and b are antipodal every great circle through them is a shortest
// path. The one chosen is fixed by s2's robust cross product, so the same
// pair of points always produces the same path.
func Interpolate(a, b model.GeoPoint) func(t float64) model.GeoPoint {
	if a == b {
		return func(float64) model.GeoPoint { return a }
	}
	pa := s2.PointFromLatLng(toLatLng(a))
	pb := s2.PointFromLatLng(toLatLng(b))
	if pa.ApproxEqual(pb) {
		return func(float64) model.GeoPoint { return a }
	}
	return func(t float64) model.GeoPoint {
		switch t {
		case 0:
			return a
		case 1:
			return b
		}
		return fromLatLng(s2.LatLngFromPoint(s2.Interpolate(t, pa, pb)))
	}
}
