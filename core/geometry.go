package core

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/signalsfoundry/visitor-globe/model"
)

// DefaultGlobeRadius is the radius of the rendered globe in scene units.
const DefaultGlobeRadius = 5.0

// Project converts a latitude/longitude pair in degrees into a point on (or
// above, when altitude > 0) a sphere of the given radius.
//
// Latitude 0, longitude 0 maps onto +Z and the north pole onto +Y. Any
// rotation needed to line the sphere up with a texture is applied by the
// scene, not here. Inputs are not clamped.
func Project(lat, lon, radius, altitude float64) r3.Vector {
	phi := lat / 180 * math.Pi
	lambda := lon / 180 * math.Pi
	r := radius + altitude
	return r3.Vector{
		X: r * math.Cos(phi) * math.Sin(lambda),
		Y: r * math.Sin(phi),
		Z: r * math.Cos(phi) * math.Cos(lambda),
	}
}

// ProjectPoint is Project for a GeoPoint.
func ProjectPoint(p model.GeoPoint, radius, altitude float64) r3.Vector {
	return Project(p.Latitude, p.Longitude, radius, altitude)
}

// Unproject is the inverse of Project for points off the origin. It returns
// the geographic point under v and the height of v above the sphere.
func Unproject(v r3.Vector, radius float64) (model.GeoPoint, float64) {
	n := v.Norm()
	if n == 0 {
		return model.GeoPoint{}, -radius
	}
	lat := math.Asin(clamp(v.Y/n, -1, 1)) * 180 / math.Pi
	lon := math.Atan2(v.X, v.Z) * 180 / math.Pi
	return model.GeoPoint{Latitude: lat, Longitude: lon}, n - radius
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
