package scene

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/visitor-globe/core"
	"github.com/signalsfoundry/visitor-globe/model"
)

type stubNode struct {
	id   string
	kind model.PayloadKind
}

func (s stubNode) NodeID() string         { return s.id }
func (s stubNode) Payload() model.Payload { return model.Payload{Kind: s.kind} }

func TestAddAndGet(t *testing.T) {
	g := NewGroup()
	m := core.PlaceMarker(1.3521, 103.8198, core.DefaultGlobeRadius, "Singapore", 5.6)
	if err := g.Add(m); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	got := g.Get(m.NodeID())
	if got == nil || got.Payload().Label != "Singapore" {
		t.Fatalf("Get returned %#v, want Singapore marker", got)
	}
}

func TestAddDuplicate(t *testing.T) {
	g := NewGroup()
	if err := g.Add(stubNode{id: "n1"}); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	err := g.Add(stubNode{id: "n1"})
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected ErrDuplicateNode, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	g := NewGroup()
	_ = g.Add(stubNode{id: "a"})
	_ = g.Add(stubNode{id: "b"})
	_ = g.Add(stubNode{id: "c"})

	if !g.Remove("b") {
		t.Fatalf("Remove(b) = false")
	}
	if g.Remove("b") {
		t.Fatalf("second Remove(b) = true")
	}
	list := g.List()
	if len(list) != 2 || list[0].NodeID() != "a" || list[1].NodeID() != "c" {
		t.Fatalf("List after remove = %v", list)
	}
}

func TestPickByKind(t *testing.T) {
	g := NewGroup()
	for i := range 3 {
		_ = g.Add(stubNode{id: fmt.Sprintf("m-%d", i), kind: model.PayloadMarker})
		_ = g.Add(stubNode{id: fmt.Sprintf("a-%d", i), kind: model.PayloadArc})
	}
	if got := len(g.Pick(model.PayloadMarker)); got != 3 {
		t.Fatalf("Pick(MARKER) len=%d, want 3", got)
	}
	if got := len(g.Pick(model.PayloadArc)); got != 3 {
		t.Fatalf("Pick(ARC) len=%d, want 3", got)
	}
	if got := len(g.Pick(model.PayloadUnknown)); got != 0 {
		t.Fatalf("Pick(UNKNOWN) len=%d, want 0", got)
	}
}

func TestSubscribe(t *testing.T) {
	g := NewGroup()
	var events []Event
	unsub := g.Subscribe(func(ev Event) { events = append(events, ev) })

	_ = g.Add(stubNode{id: "n1"})
	g.Remove("n1")
	if len(events) != 2 || events[0].Type != EventNodeAdded || events[1].Type != EventNodeRemoved {
		t.Fatalf("events = %v", events)
	}

	unsub()
	_ = g.Add(stubNode{id: "n2"})
	if len(events) != 2 {
		t.Fatalf("received event after unsubscribe")
	}
}

func TestSubscriberMayReenter(t *testing.T) {
	g := NewGroup()
	g.Subscribe(func(ev Event) {
		if ev.Type == EventNodeAdded {
			_ = g.Len()
		}
	})
	if err := g.Add(stubNode{id: "n1"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
}

func TestConcurrentAdd(t *testing.T) {
	g := NewGroup()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = g.Add(stubNode{id: fmt.Sprintf("n-%d", i)})
		}(i)
	}
	wg.Wait()
	if g.Len() != 50 {
		t.Fatalf("Len = %d, want 50", g.Len())
	}
}
