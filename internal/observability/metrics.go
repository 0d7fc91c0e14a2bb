package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GlobeCollector bundles Prometheus metrics for the arc engine: how many arcs
// are spawned, superseded and retired, and how long geometry takes to build.
type GlobeCollector struct {
	gatherer prometheus.Gatherer

	ArcsSpawned    *prometheus.CounterVec
	ArcsSuperseded prometheus.Counter
	ArcsCompleted  *prometheus.CounterVec
	EventsRejected prometheus.Counter
	ActiveArcs     prometheus.Gauge
	Markers        prometheus.Gauge
	ArcBuild       prometheus.Histogram
}

// NewGlobeCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewGlobeCollector(reg prometheus.Registerer) (*GlobeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	spawned, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_arcs_spawned_total",
		Help: "Arcs attached to the scene, labeled by arc kind (raised or ground).",
	}, []string{"kind"}), "globe_arcs_spawned_total")
	if err != nil {
		return nil, err
	}

	superseded, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_arcs_superseded_total",
		Help: "Arcs detached early because a newer arc arrived for the same key.",
	}), "globe_arcs_superseded_total")
	if err != nil {
		return nil, err
	}

	completed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_arcs_completed_total",
		Help: "Arcs whose reveal fully drained, labeled by completion policy.",
	}, []string{"policy"}), "globe_arcs_completed_total")
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_events_rejected_total",
		Help: "Traffic events refused at the engine boundary.",
	}), "globe_events_rejected_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_active_arcs",
		Help: "Arcs currently attached and animating.",
	}), "globe_active_arcs")
	if err != nil {
		return nil, err
	}

	markers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_markers",
		Help: "Markers currently attached to the globe.",
	}), "globe_markers")
	if err != nil {
		return nil, err
	}

	build, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globe_arc_build_duration_seconds",
		Help:    "Time to build the curve and tube mesh for one arc.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "globe_arc_build_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &GlobeCollector{
		gatherer:       gatherer,
		ArcsSpawned:    spawned,
		ArcsSuperseded: superseded,
		ArcsCompleted:  completed,
		EventsRejected: rejected,
		ActiveArcs:     active,
		Markers:        markers,
		ArcBuild:       build,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GlobeCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ArcSpawned counts an attached arc of the given kind.
func (c *GlobeCollector) ArcSpawned(kind string) {
	if c == nil || c.ArcsSpawned == nil {
		return
	}
	c.ArcsSpawned.WithLabelValues(kind).Inc()
}

// ArcSuperseded counts an arc replaced by a newer one for the same key.
func (c *GlobeCollector) ArcSuperseded() {
	if c == nil || c.ArcsSuperseded == nil {
		return
	}
	c.ArcsSuperseded.Inc()
}

// ArcCompleted counts a fully drained arc.
func (c *GlobeCollector) ArcCompleted(policy string) {
	if c == nil || c.ArcsCompleted == nil {
		return
	}
	c.ArcsCompleted.WithLabelValues(policy).Inc()
}

// EventRejected counts an event refused by the engine.
func (c *GlobeCollector) EventRejected() {
	if c == nil || c.EventsRejected == nil {
		return
	}
	c.EventsRejected.Inc()
}

// SetActiveArcs updates the active arc gauge.
func (c *GlobeCollector) SetActiveArcs(n int) {
	if c == nil || c.ActiveArcs == nil {
		return
	}
	c.ActiveArcs.Set(float64(n))
}

// SetMarkers updates the marker gauge.
func (c *GlobeCollector) SetMarkers(n int) {
	if c == nil || c.Markers == nil {
		return
	}
	c.Markers.Set(float64(n))
}

// ObserveArcBuild records how long geometry construction took.
func (c *GlobeCollector) ObserveArcBuild(d time.Duration) {
	if c == nil || c.ArcBuild == nil {
		return
	}
	c.ArcBuild.Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
