package model

import (
	"fmt"

	"github.com/google/uuid"
)

// routeNamespace seeds the deterministic keys of events that arrive without
// an ID of their own.
var routeNamespace = uuid.MustParse("6f1c2b9e-4d1a-4b8e-9a57-3c0d2f7e8a41")

// TrafficEvent is one visitor-traffic record from the analytics feed. Each
// event is rendered as a single arc from Start to End.
type TrafficEvent struct {
	ID             string  `json:"uuid,omitempty"`
	StartLatitude  float64 `json:"startLatitude" validate:"latitude"`
	StartLongitude float64 `json:"startLongitude" validate:"longitude"`
	EndLatitude    float64 `json:"endLatitude" validate:"latitude"`
	EndLongitude   float64 `json:"endLongitude" validate:"longitude"`
	Label          string  `json:"label"`
	Metric         float64 `json:"metric"`
}

// Start returns the origin of the event.
func (e TrafficEvent) Start() GeoPoint {
	return GeoPoint{Latitude: e.StartLatitude, Longitude: e.StartLongitude}
}

// End returns the destination of the event.
func (e TrafficEvent) End() GeoPoint {
	return GeoPoint{Latitude: e.EndLatitude, Longitude: e.EndLongitude}
}

// Key identifies the logical event for single-flight purposes. Events with an
// ID use it verbatim; the rest share a key per route, rounded to ~1e-4 deg.
func (e TrafficEvent) Key() string {
	if e.ID != "" {
		return e.ID
	}
	route := fmt.Sprintf("%.4f,%.4f->%.4f,%.4f",
		e.StartLatitude, e.StartLongitude, e.EndLatitude, e.EndLongitude)
	return uuid.NewSHA1(routeNamespace, []byte(route)).String()
}
