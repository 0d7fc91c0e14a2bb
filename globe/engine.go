// Package globe turns visitor-traffic events into animated arcs on the
// globe scene and keeps the static markers in place.
package globe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/visitor-globe/core"
	"github.com/signalsfoundry/visitor-globe/internal/logging"
	"github.com/signalsfoundry/visitor-globe/internal/observability"
	"github.com/signalsfoundry/visitor-globe/internal/telemetry"
	"github.com/signalsfoundry/visitor-globe/model"
	"github.com/signalsfoundry/visitor-globe/reveal"
	"github.com/signalsfoundry/visitor-globe/scene"
	"github.com/signalsfoundry/visitor-globe/timectrl"
)

// ErrInvalidEvent is returned for events whose coordinates are not finite
// or lie outside the valid latitude/longitude ranges.
var ErrInvalidEvent = errors.New("globe: invalid traffic event")

// Scene is the part of the scene graph the engine mutates.
type Scene interface {
	Add(n scene.Node) error
	Remove(id string) bool
}

// Metrics receives engine counters. *observability.GlobeCollector
// implements it.
type Metrics interface {
	ArcSpawned(kind string)
	ArcSuperseded()
	ArcCompleted(policy string)
	EventRejected()
	SetActiveArcs(n int)
	SetMarkers(n int)
	ObserveArcBuild(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ArcSpawned(string)             {}
func (noopMetrics) ArcSuperseded()                {}
func (noopMetrics) ArcCompleted(string)           {}
func (noopMetrics) EventRejected()                {}
func (noopMetrics) SetActiveArcs(int)             {}
func (noopMetrics) SetMarkers(int)                {}
func (noopMetrics) ObserveArcBuild(time.Duration) {}

// ArcHandle tracks one arc pipeline: the event it came from, its geometry
// and its reveal state.
type ArcHandle struct {
	Key      string
	Event    model.TrafficEvent
	Arc      core.Arc
	Mesh     *core.TubeMesh
	Animator *reveal.Animator

	ctx      context.Context
	detached bool
}

// Detached reports whether the mesh has left the scene.
func (h *ArcHandle) Detached() bool { return h.detached }

type submission struct {
	ctx context.Context
	ev  model.TrafficEvent
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithReporter sets the product analytics reporter.
func WithReporter(r telemetry.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithRand seeds marker pulse offsets.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// Engine owns every arc on the globe. Submit may be called from any
// goroutine; Spawn, Step, PlaceMarkers, Active and Shutdown must run on the
// frame goroutine.
type Engine struct {
	cfg   Config
	sched timectrl.EventScheduler
	scene Scene

	log      logging.Logger
	metrics  Metrics
	reporter telemetry.Reporter
	tracer   trace.Tracer
	rng      *rand.Rand

	mu    sync.Mutex
	inbox []submission

	// Frame goroutine only.
	now    time.Time
	arcs   []*ArcHandle
	latest map[string]*ArcHandle
	// repeats holds the scheduler ids of pending respawns per key. Stacked
	// arcs can share a key, so a key may own several.
	repeats map[string][]string
	markers []*core.Marker
}

// New builds an engine that attaches meshes to group and schedules repeat
// cooldowns on sched.
func New(cfg Config, sched timectrl.EventScheduler, group Scene, opts ...Option) (*Engine, error) {
	if sched == nil || group == nil {
		return nil, fmt.Errorf("%w: scheduler and scene are required", core.ErrInvalidArgument)
	}
	if cfg.Radius <= 0 {
		return nil, fmt.Errorf("%w: radius %v", core.ErrInvalidArgument, cfg.Radius)
	}
	e := &Engine{
		cfg:      cfg,
		sched:    sched,
		scene:    group,
		log:      logging.Noop(),
		metrics:  noopMetrics{},
		reporter: telemetry.Noop(),
		tracer:   otel.Tracer(observability.TracerName),
		now:      sched.Now(),
		latest:   make(map[string]*ArcHandle),
		repeats:  make(map[string][]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	e.log = e.log.With(logging.String("component", "globe"))
	return e, nil
}

// Submit queues an event for the next Step. It never blocks on geometry
// work and is safe to call from the feed goroutine.
func (e *Engine) Submit(ctx context.Context, ev model.TrafficEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	e.inbox = append(e.inbox, submission{ctx: ctx, ev: ev})
	e.mu.Unlock()
}

// SubmitBatch queues several events at once.
func (e *Engine) SubmitBatch(ctx context.Context, evs []model.TrafficEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	for _, ev := range evs {
		e.inbox = append(e.inbox, submission{ctx: ctx, ev: ev})
	}
	e.mu.Unlock()
}

// Pending returns how many submitted events wait for the next Step.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inbox)
}

// Spawn builds and attaches an arc for ev immediately, starting its reveal
// at the scheduler's current time.
func (e *Engine) Spawn(ctx context.Context, ev model.TrafficEvent) (*ArcHandle, error) {
	return e.spawn(ctx, ev, e.sched.Now())
}

func (e *Engine) spawn(ctx context.Context, ev model.TrafficEvent, now time.Time) (*ArcHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := ev.Key()
	ctx, span := e.tracer.Start(ctx, "globe.Spawn", trace.WithAttributes(
		attribute.String("arc.key", key),
		attribute.String("arc.label", ev.Label),
	))
	defer span.End()

	if err := validateEvent(ev); err != nil {
		e.metrics.EventRejected()
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid event")
		e.log.Warn(ctx, "rejecting traffic event", logging.String("key", key), logging.Err(err))
		return nil, err
	}

	built := time.Now()
	arc, err := core.NewArc(ev.Start(), ev.End(), e.cfg.Radius, e.cfg.arcOptions()...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("globe: build arc: %w", err)
	}
	mesh, err := core.BuildTube(core.BuildCurve(arc, e.cfg.Radius), e.cfg.TubularSegments, e.cfg.TubeRadius, e.cfg.RadialSegments)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("globe: build tube: %w", err)
	}
	mesh.SetLabel(ev.Label, ev.Metric)
	e.metrics.ObserveArcBuild(time.Since(built))

	if err := e.scene.Add(mesh); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("globe: attach mesh: %w", err)
	}
	if e.cfg.Dedupe == DedupeReplace {
		e.supersede(ctx, key)
	}

	h := &ArcHandle{Key: key, Event: ev, Arc: arc, Mesh: mesh, ctx: ctx}
	h.Animator = reveal.New(mesh, e.cfg.Reveal, reveal.OnComplete(func() { e.complete(h) }))
	h.Animator.Start(now)

	e.arcs = append(e.arcs, h)
	e.latest[key] = h

	kind := strings.ToLower(arc.Kind.String())
	span.SetAttributes(
		attribute.String("arc.kind", kind),
		attribute.Float64("arc.altitude", arc.Altitude),
		attribute.Int("mesh.indices", mesh.IndexCount()),
	)
	e.metrics.ArcSpawned(kind)
	e.metrics.SetActiveArcs(e.activeCount())
	e.log.Debug(ctx, "arc spawned",
		logging.String("key", key),
		logging.String("kind", kind),
		logging.Float64("altitude", arc.Altitude),
		logging.Int("indices", mesh.IndexCount()),
	)
	return h, nil
}

// supersede detaches the current arc for key and withdraws its repeat.
func (e *Engine) supersede(ctx context.Context, key string) {
	e.cancelRepeats(key)
	old, ok := e.latest[key]
	if !ok || old.detached {
		return
	}
	e.detach(old)
	delete(e.latest, key)
	e.metrics.ArcSuperseded()
	e.log.Debug(ctx, "arc superseded", logging.String("key", key))
}

func (e *Engine) detach(h *ArcHandle) {
	if h.detached {
		return
	}
	h.detached = true
	e.scene.Remove(h.Mesh.NodeID())
}

// complete runs from inside Animator.Advance once an arc has drained.
func (e *Engine) complete(h *ArcHandle) {
	policy := e.cfg.Policy
	e.metrics.ArcCompleted(policy.String())
	e.reporter.ArcRendered(h.ctx, telemetry.ArcRendered{
		Key:      h.Key,
		Label:    h.Event.Label,
		Metric:   h.Event.Metric,
		Kind:     strings.ToLower(h.Arc.Kind.String()),
		Altitude: h.Arc.Altitude,
		Policy:   policy.String(),
	})

	e.detach(h)
	if e.latest[h.Key] == h {
		delete(e.latest, h.Key)
	}

	if policy != reveal.PolicyRepeat {
		return
	}
	ev, key, ctx := h.Event, h.Key, h.ctx
	// Cooldown runs from the drain end, not from the frame that noticed it.
	at := h.Animator.CompletedAt().Add(e.cfg.Cooldown)
	var id string
	id = e.sched.Schedule(at, func() {
		e.forgetRepeat(key, id)
		if _, err := e.spawn(ctx, ev, at); err != nil {
			e.log.Error(ctx, "repeat spawn failed", logging.String("key", key), logging.Err(err))
		}
	})
	e.repeats[key] = append(e.repeats[key], id)
}

func (e *Engine) cancelRepeats(key string) {
	for _, id := range e.repeats[key] {
		e.sched.Cancel(id)
	}
	delete(e.repeats, key)
}

func (e *Engine) forgetRepeat(key, id string) {
	ids := slices.DeleteFunc(e.repeats[key], func(v string) bool { return v == id })
	if len(ids) == 0 {
		delete(e.repeats, key)
		return
	}
	e.repeats[key] = ids
}

// Step advances the engine to frame time now: queued events are spawned,
// due cooldowns fire and every reveal is sampled. Finished arcs are
// dropped from the active set.
func (e *Engine) Step(now time.Time) {
	e.now = now

	e.mu.Lock()
	inbox := e.inbox
	e.inbox = nil
	e.mu.Unlock()

	for _, sub := range inbox {
		if _, err := e.spawn(sub.ctx, sub.ev, now); err != nil && !errors.Is(err, ErrInvalidEvent) {
			e.log.Error(sub.ctx, "spawn failed", logging.String("key", sub.ev.Key()), logging.Err(err))
		}
	}

	e.sched.RunDue()

	arcs := append([]*ArcHandle(nil), e.arcs...)
	for _, h := range arcs {
		if h.detached {
			continue
		}
		h.Animator.Advance(now)
	}

	kept := e.arcs[:0]
	for _, h := range e.arcs {
		if !h.detached {
			kept = append(kept, h)
		}
	}
	for i := len(kept); i < len(e.arcs); i++ {
		e.arcs[i] = nil
	}
	e.arcs = kept
	e.metrics.SetActiveArcs(len(e.arcs))
}

// Active returns the arcs currently attached to the scene.
func (e *Engine) Active() []*ArcHandle {
	res := make([]*ArcHandle, 0, len(e.arcs))
	for _, h := range e.arcs {
		if !h.detached {
			res = append(res, h)
		}
	}
	return res
}

// PendingRepeats reports how many arcs wait out their cooldown.
func (e *Engine) PendingRepeats() int {
	n := 0
	for _, ids := range e.repeats {
		n += len(ids)
	}
	return n
}

// Shutdown detaches every arc and cancels all pending repeats.
func (e *Engine) Shutdown(ctx context.Context) {
	for key := range e.repeats {
		e.cancelRepeats(key)
	}
	for _, h := range e.arcs {
		e.detach(h)
	}
	e.arcs = nil
	clear(e.latest)
	e.metrics.SetActiveArcs(0)
	e.log.Info(ctx, "globe engine stopped")
}

func (e *Engine) activeCount() int {
	n := 0
	for _, h := range e.arcs {
		if !h.detached {
			n++
		}
	}
	return n
}

func validateEvent(ev model.TrafficEvent) error {
	if !ev.Start().InRange() {
		return fmt.Errorf("%w: start %s", ErrInvalidEvent, ev.Start())
	}
	if !ev.End().InRange() {
		return fmt.Errorf("%w: end %s", ErrInvalidEvent, ev.End())
	}
	return nil
}
