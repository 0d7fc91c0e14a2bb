package globe

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/visitor-globe/core"
	"github.com/signalsfoundry/visitor-globe/internal/logging"
	"github.com/signalsfoundry/visitor-globe/model"
)

// MarkerSpec describes a static marker.
type MarkerSpec struct {
	Label     string
	Latitude  float64
	Longitude float64
	Metric    float64
}

// PlaceMarkers stands a marker on the globe for every spec and attaches it
// to the scene. Specs with invalid coordinates are skipped and reported in
// the returned error; the rest are still placed.
func (e *Engine) PlaceMarkers(ctx context.Context, specs []MarkerSpec) ([]*core.Marker, error) {
	placed := make([]*core.Marker, 0, len(specs))
	var firstErr error
	for _, s := range specs {
		p := model.LatLon(s.Latitude, s.Longitude)
		if !p.InRange() {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: marker %q at %s", ErrInvalidEvent, s.Label, p)
			}
			e.log.Warn(ctx, "skipping marker", logging.String("label", s.Label), logging.String("at", p.String()))
			continue
		}
		motion := core.NewMotionModel(e.cfg.MarkerPulse, e.sched.Now(), e.rng)
		m := core.PlaceMarker(s.Latitude, s.Longitude, e.cfg.Radius, s.Label, s.Metric,
			core.WithMarkerSize(e.cfg.MarkerSize),
			core.WithMotion(motion),
		)
		if err := e.scene.Add(m); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("globe: attach marker %q: %w", s.Label, err)
			}
			continue
		}
		e.markers = append(e.markers, m)
		placed = append(placed, m)
	}
	e.metrics.SetMarkers(len(e.markers))
	e.log.Info(ctx, "markers placed", logging.Int("count", len(placed)))
	return placed, firstErr
}

// Markers returns every marker placed so far.
func (e *Engine) Markers() []*core.Marker {
	return append([]*core.Marker(nil), e.markers...)
}
