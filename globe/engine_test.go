package globe

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/visitor-globe/internal/observability"
	"github.com/signalsfoundry/visitor-globe/internal/telemetry"
	"github.com/signalsfoundry/visitor-globe/model"
	"github.com/signalsfoundry/visitor-globe/reveal"
	"github.com/signalsfoundry/visitor-globe/scene"
	"github.com/signalsfoundry/visitor-globe/timectrl"
)

var t0 = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

const frame = 16 * time.Millisecond

type fakeReporter struct {
	mu     sync.Mutex
	events []telemetry.ArcRendered
}

func (f *fakeReporter) ArcRendered(_ context.Context, ev telemetry.ArcRendered) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeReporter) Close() error { return nil }

type harness struct {
	engine   *Engine
	sched    *timectrl.FakeEventScheduler
	group    *scene.Group
	metrics  *observability.GlobeCollector
	reporter *fakeReporter
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	sched := timectrl.NewFakeEventScheduler(t0)
	group := scene.NewGroup()
	metrics, err := observability.NewGlobeCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewGlobeCollector: %v", err)
	}
	rep := &fakeReporter{}
	e, err := New(cfg, sched, group,
		WithMetrics(metrics),
		WithReporter(rep),
		WithRand(rand.New(rand.NewPCG(7, 7))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{engine: e, sched: sched, group: group, metrics: metrics, reporter: rep}
}

// runUntil steps the frame loop from the scheduler's current time to end.
func (h *harness) runUntil(end time.Time) {
	for now := h.sched.Now(); now.Before(end); now = now.Add(frame) {
		h.sched.AdvanceTo(now)
		h.engine.Step(now)
	}
	h.sched.AdvanceTo(end)
	h.engine.Step(end)
}

func sgToKL(id string) model.TrafficEvent {
	return model.TrafficEvent{
		ID:             id,
		StartLatitude:  1.3521,
		StartLongitude: 103.8198,
		EndLatitude:    3.1319,
		EndLongitude:   101.6841,
		Label:          "Singapore",
		Metric:         5.6,
	}
}

func TestEngine_SpawnAttachesArc(t *testing.T) {
	h := newHarness(t, nil)

	arc, err := h.engine.Spawn(context.Background(), sgToKL("v1"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if arc.Key != "v1" {
		t.Fatalf("key = %q, want v1", arc.Key)
	}
	arcs := h.group.Pick(model.PayloadArc)
	if len(arcs) != 1 || arcs[0].NodeID() != arc.Mesh.NodeID() {
		t.Fatalf("scene arcs = %v", arcs)
	}
	if p := arcs[0].Payload(); p.Label != "Singapore" || p.Metric != 5.6 {
		t.Fatalf("payload = %+v", p)
	}
	if got := arc.Mesh.DrawRange(); got.Start != 0 || got.End != 0 {
		t.Fatalf("fresh mesh draw range = %+v, want hidden", got)
	}
	if arc.Animator.Phase() != reveal.PhaseFilling {
		t.Fatalf("phase = %v, want FILLING", arc.Animator.Phase())
	}
	if got := testutil.ToFloat64(h.metrics.ArcsSpawned.WithLabelValues("raised")); got != 1 {
		t.Fatalf("globe_arcs_spawned_total{raised} = %v, want 1", got)
	}
}

func TestEngine_TerminateDetachesAfterReveal(t *testing.T) {
	h := newHarness(t, nil)
	arc, err := h.engine.Spawn(context.Background(), sgToKL("v1"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	h.runUntil(t0.Add(5 * time.Second))
	if len(h.engine.Active()) != 1 {
		t.Fatalf("arc retired before draining finished")
	}

	h.runUntil(t0.Add(6 * time.Second))
	total := arc.Mesh.IndexCount()
	if got := arc.Mesh.DrawRange(); got.Start != total || got.End != total {
		t.Fatalf("draw range = %+v, want [%d,%d]", got, total, total)
	}
	if !arc.Detached() || h.group.Len() != 0 || len(h.engine.Active()) != 0 {
		t.Fatalf("finished arc still attached")
	}
	if h.engine.PendingRepeats() != 0 {
		t.Fatalf("terminate policy scheduled a repeat")
	}
	if got := testutil.ToFloat64(h.metrics.ArcsCompleted.WithLabelValues("terminate")); got != 1 {
		t.Fatalf("globe_arcs_completed_total = %v, want 1", got)
	}
	if len(h.reporter.events) != 1 || h.reporter.events[0].Key != "v1" {
		t.Fatalf("reported = %+v", h.reporter.events)
	}
}

func TestEngine_RepeatRespawnsAfterCooldown(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy = reveal.PolicyRepeat })
	first, err := h.engine.Spawn(context.Background(), sgToKL("v1"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	h.runUntil(t0.Add(6 * time.Second))
	if !first.Detached() {
		t.Fatalf("drained arc not detached")
	}
	if h.engine.PendingRepeats() != 1 {
		t.Fatalf("PendingRepeats = %d, want 1", h.engine.PendingRepeats())
	}

	h.runUntil(t0.Add(10*time.Second + 900*time.Millisecond))
	if len(h.engine.Active()) != 0 {
		t.Fatalf("respawned before the cooldown elapsed")
	}

	h.runUntil(t0.Add(11*time.Second + 100*time.Millisecond))
	active := h.engine.Active()
	if len(active) != 1 {
		t.Fatalf("active arcs = %d, want 1 after cooldown", len(active))
	}
	second := active[0]
	if second == first || second.Mesh.NodeID() == first.Mesh.NodeID() {
		t.Fatalf("repeat reused the old mesh")
	}
	if second.Event != first.Event {
		t.Fatalf("repeat changed endpoints: %+v", second.Event)
	}
}

func TestEngine_DedupeReplace(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Dedupe = DedupeReplace })

	old, err := h.engine.Spawn(context.Background(), sgToKL("v1"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	h.runUntil(t0.Add(2 * time.Second))
	newer, err := h.engine.Spawn(context.Background(), sgToKL("v1"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if !old.Detached() || newer.Detached() {
		t.Fatalf("old detached=%v new detached=%v", old.Detached(), newer.Detached())
	}
	if got := len(h.group.Pick(model.PayloadArc)); got != 1 {
		t.Fatalf("scene arcs = %d, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.ArcsSuperseded); got != 1 {
		t.Fatalf("globe_arcs_superseded_total = %v, want 1", got)
	}

	// A different key is unaffected.
	if _, err := h.engine.Spawn(context.Background(), sgToKL("v2")); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	h.engine.Step(h.sched.Now())
	if got := len(h.engine.Active()); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}
}

func TestEngine_DedupeStackPilesUp(t *testing.T) {
	h := newHarness(t, nil)
	ev := sgToKL("")
	for range 3 {
		if _, err := h.engine.Spawn(context.Background(), ev); err != nil {
			t.Fatalf("Spawn: %v", err)
		}
	}
	if got := len(h.group.Pick(model.PayloadArc)); got != 3 {
		t.Fatalf("scene arcs = %d, want 3", got)
	}
}

func TestEngine_ReplaceCancelsPendingRepeat(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Dedupe = DedupeReplace
		c.Policy = reveal.PolicyRepeat
	})
	if _, err := h.engine.Spawn(context.Background(), sgToKL("v1")); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	h.runUntil(t0.Add(7 * time.Second))
	if h.engine.PendingRepeats() != 1 || h.sched.Pending() != 1 {
		t.Fatalf("repeat not pending: engine=%d sched=%d", h.engine.PendingRepeats(), h.sched.Pending())
	}

	if _, err := h.engine.Spawn(context.Background(), sgToKL("v1")); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if h.engine.PendingRepeats() != 0 || h.sched.Pending() != 0 {
		t.Fatalf("repeat survived replacement: engine=%d sched=%d", h.engine.PendingRepeats(), h.sched.Pending())
	}

	h.runUntil(t0.Add(12 * time.Second))
	if got := len(h.group.Pick(model.PayloadArc)); got > 1 {
		t.Fatalf("scene arcs = %d, cancelled repeat still fired", got)
	}
}

func TestEngine_RejectsInvalidEvents(t *testing.T) {
	h := newHarness(t, nil)
	bad := []model.TrafficEvent{
		{StartLatitude: math.NaN(), StartLongitude: 0, EndLatitude: 1, EndLongitude: 1},
		{StartLatitude: 0, StartLongitude: 0, EndLatitude: 91, EndLongitude: 1},
		{StartLatitude: 0, StartLongitude: math.Inf(1), EndLatitude: 1, EndLongitude: 1},
	}
	for _, ev := range bad {
		if _, err := h.engine.Spawn(context.Background(), ev); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("Spawn(%+v) err = %v, want ErrInvalidEvent", ev, err)
		}
	}

	h.engine.SubmitBatch(context.Background(), bad)
	h.engine.Step(t0)
	if h.group.Len() != 0 {
		t.Fatalf("invalid events reached the scene")
	}
	if got := testutil.ToFloat64(h.metrics.EventsRejected); got != 6 {
		t.Fatalf("globe_events_rejected_total = %v, want 6", got)
	}
}

func TestEngine_IdenticalEndpointsDoNotBreak(t *testing.T) {
	h := newHarness(t, nil)
	ev := model.TrafficEvent{StartLatitude: 10, StartLongitude: 20, EndLatitude: 10, EndLongitude: 20}
	arc, err := h.engine.Spawn(context.Background(), ev)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	for _, v := range arc.Mesh.Vertices {
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z) {
			t.Fatalf("degenerate arc produced NaN vertex")
		}
	}
	h.runUntil(t0.Add(7 * time.Second))
	if !arc.Animator.Done() {
		t.Fatalf("degenerate arc never finished")
	}
}

func TestEngine_SubmitFromManyGoroutines(t *testing.T) {
	h := newHarness(t, nil)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := sgToKL("")
			ev.Metric = float64(i)
			h.engine.Submit(context.Background(), ev)
		}(i)
	}
	wg.Wait()
	if h.engine.Pending() != 20 {
		t.Fatalf("Pending = %d, want 20", h.engine.Pending())
	}

	h.engine.Step(t0)
	if got := len(h.engine.Active()); got != 20 {
		t.Fatalf("active = %d, want 20", got)
	}
	if h.engine.Pending() != 0 {
		t.Fatalf("inbox not drained")
	}
}

func TestEngine_Shutdown(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy = reveal.PolicyRepeat })
	_, _ = h.engine.Spawn(context.Background(), sgToKL("a"))
	h.runUntil(t0.Add(6 * time.Second))
	_, _ = h.engine.Spawn(context.Background(), sgToKL("b"))

	h.engine.Shutdown(context.Background())
	if h.group.Len() != 0 || len(h.engine.Active()) != 0 {
		t.Fatalf("arcs left after shutdown")
	}
	if h.sched.Pending() != 0 || h.engine.PendingRepeats() != 0 {
		t.Fatalf("repeats left after shutdown")
	}
}

func TestEngine_PlaceMarkers(t *testing.T) {
	h := newHarness(t, nil)
	specs := []MarkerSpec{
		{Label: "Singapore", Latitude: 1.3521, Longitude: 103.8198},
		{Label: "Kuala Lumpur", Latitude: 3.1319, Longitude: 101.6841},
		{Label: "Mexico", Latitude: 23.6345, Longitude: -102.5528},
		{Label: "Brazil", Latitude: -14.235, Longitude: -51.9235},
		{Label: "Beijing", Latitude: 39.9042, Longitude: 116.4074},
		{Label: "Nowhere", Latitude: 123, Longitude: 0},
	}
	placed, err := h.engine.PlaceMarkers(context.Background(), specs)
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent for the bad spec", err)
	}
	if len(placed) != 5 || len(h.group.Pick(model.PayloadMarker)) != 5 {
		t.Fatalf("placed %d markers, want 5", len(placed))
	}
	if got := testutil.ToFloat64(h.metrics.Markers); got != 5 {
		t.Fatalf("globe_markers = %v, want 5", got)
	}
	for _, m := range placed {
		if s := m.Motion.ScaleAt(t0.Add(3 * time.Second)); s < 1 || s > 1.4 {
			t.Fatalf("marker pulse scale %v outside [1,1.4]", s)
		}
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, scene.NewGroup()); err == nil {
		t.Fatalf("expected error without scheduler")
	}
	cfg := DefaultConfig()
	cfg.Radius = 0
	if _, err := New(cfg, timectrl.NewFakeEventScheduler(t0), scene.NewGroup()); err == nil {
		t.Fatalf("expected error for zero radius")
	}
}

func TestParseDedupe(t *testing.T) {
	if d, err := ParseDedupe("replace"); err != nil || d != DedupeReplace {
		t.Fatalf("ParseDedupe(replace) = %v, %v", d, err)
	}
	if _, err := ParseDedupe("merge"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestEngine_StackRepeatCancelsEveryCooldownOnShutdown(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy = reveal.PolicyRepeat })
	for range 2 {
		if _, err := h.engine.Spawn(context.Background(), sgToKL("v1")); err != nil {
			t.Fatalf("Spawn: %v", err)
		}
	}
	h.runUntil(t0.Add(7 * time.Second))
	if h.engine.PendingRepeats() != 2 || h.sched.Pending() != 2 {
		t.Fatalf("pending repeats: engine=%d sched=%d, want 2/2", h.engine.PendingRepeats(), h.sched.Pending())
	}

	h.engine.Shutdown(context.Background())
	if h.engine.PendingRepeats() != 0 || h.sched.Pending() != 0 {
		t.Fatalf("after shutdown: engine=%d sched=%d", h.engine.PendingRepeats(), h.sched.Pending())
	}

	h.runUntil(t0.Add(13 * time.Second))
	if len(h.engine.Active()) != 0 || h.group.Len() != 0 {
		t.Fatalf("arc respawned after shutdown: active=%d nodes=%d", len(h.engine.Active()), h.group.Len())
	}
}

func TestEngine_StackRepeatTimersFireIndependently(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy = reveal.PolicyRepeat })
	if _, err := h.engine.Spawn(context.Background(), sgToKL("v1")); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	h.runUntil(t0.Add(500 * time.Millisecond))
	if _, err := h.engine.Spawn(context.Background(), sgToKL("v1")); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Drains end at 6s and 6.5s, so respawns land at 11s and 11.5s.
	h.runUntil(t0.Add(11*time.Second + 200*time.Millisecond))
	if got := len(h.engine.Active()); got != 1 {
		t.Fatalf("active = %d, want 1 after the first cooldown", got)
	}
	if h.engine.PendingRepeats() != 1 || h.sched.Pending() != 1 {
		t.Fatalf("second repeat lost: engine=%d sched=%d", h.engine.PendingRepeats(), h.sched.Pending())
	}

	h.runUntil(t0.Add(11*time.Second + 600*time.Millisecond))
	if got := len(h.engine.Active()); got != 2 {
		t.Fatalf("active = %d, want 2 after both cooldowns", got)
	}
	if h.engine.PendingRepeats() != 0 {
		t.Fatalf("PendingRepeats = %d, want 0", h.engine.PendingRepeats())
	}
}

func TestEngine_RepeatCooldownRunsFromDrainEnd(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy = reveal.PolicyRepeat })
	if _, err := h.engine.Spawn(context.Background(), sgToKL("v1")); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Coarse frames: the drain ends at 6s but is first seen at 6.3s.
	const coarse = 700 * time.Millisecond
	for k := 1; k <= 9; k++ {
		now := t0.Add(time.Duration(k) * coarse)
		h.sched.AdvanceTo(now)
		h.engine.Step(now)
	}
	if h.engine.PendingRepeats() != 1 {
		t.Fatalf("PendingRepeats = %d, want 1", h.engine.PendingRepeats())
	}

	at := t0.Add(11 * time.Second)
	h.sched.AdvanceTo(at)
	h.engine.Step(at)
	if got := len(h.engine.Active()); got != 1 {
		t.Fatalf("active = %d at drain end + cooldown, want 1", got)
	}
}

type flakyScene struct {
	*scene.Group
	fail bool
}

func (f *flakyScene) Add(n scene.Node) error {
	if f.fail {
		return errors.New("scene unavailable")
	}
	return f.Group.Add(n)
}

func TestEngine_ReplaceKeepsOldArcWhenAttachFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dedupe = DedupeReplace
	sched := timectrl.NewFakeEventScheduler(t0)
	sc := &flakyScene{Group: scene.NewGroup()}
	metrics, err := observability.NewGlobeCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewGlobeCollector: %v", err)
	}
	e, err := New(cfg, sched, sc, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	old, err := e.Spawn(context.Background(), sgToKL("v1"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	sc.fail = true
	if _, err := e.Spawn(context.Background(), sgToKL("v1")); err == nil {
		t.Fatalf("expected attach error")
	}

	if old.Detached() {
		t.Fatalf("old arc detached although its replacement never attached")
	}
	if got := len(sc.Pick(model.PayloadArc)); got != 1 {
		t.Fatalf("scene arcs = %d, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ArcsSuperseded); got != 0 {
		t.Fatalf("globe_arcs_superseded_total = %v, want 0", got)
	}
}
