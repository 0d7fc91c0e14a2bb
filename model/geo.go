package model

import (
	"fmt"
	"math"
)

// GeoPoint is a location on the globe in degrees. Latitude is positive north
// of the equator and longitude positive east of Greenwich.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LatLon builds a GeoPoint from degrees.
func LatLon(lat, lon float64) GeoPoint {
	return GeoPoint{Latitude: lat, Longitude: lon}
}

// IsFinite reports whether both angles are real numbers. Out-of-range values
// are still finite; callers decide whether to reject them.
func (p GeoPoint) IsFinite() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		!math.IsInf(p.Latitude, 0) && !math.IsInf(p.Longitude, 0)
}

// InRange reports whether the point lies inside [-90,90] x [-180,180].
func (p GeoPoint) InRange() bool {
	return p.IsFinite() &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Latitude, p.Longitude)
}
