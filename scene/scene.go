package scene

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/signalsfoundry/visitor-globe/model"
)

// ErrDuplicateNode is returned by Add when a node with the same ID is
// already attached.
var ErrDuplicateNode = errors.New("scene: duplicate node")

// Node is anything that can hang off the globe group. The payload kind is
// what a hit-testing layer dispatches on.
type Node interface {
	NodeID() string
	Payload() model.Payload
}

// EventType indicates what kind of change happened in the group.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventNodeRemoved
)

func (e EventType) String() string {
	if e == EventNodeRemoved {
		return "removed"
	}
	return "added"
}

// Event is emitted to subscribers when the group changes.
type Event struct {
	Type EventType
	Node Node
}

// Group is an in-memory, thread-safe stand-in for the renderer's scene
// group. Insertion order is preserved for List and Pick.
type Group struct {
	mu sync.RWMutex

	nodes map[string]Node
	order []string

	subs   map[int]func(Event)
	nextID int
}

// NewGroup constructs an empty group.
func NewGroup() *Group {
	return &Group{
		nodes: make(map[string]Node),
		subs:  make(map[int]func(Event)),
	}
}

// Add attaches n. It returns ErrDuplicateNode if the ID is already present.
func (g *Group) Add(n Node) error {
	g.mu.Lock()
	id := n.NodeID()
	if _, exists := g.nodes[id]; exists {
		g.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateNode, id)
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	subs := g.snapshotSubsLocked()
	g.mu.Unlock()

	notify(subs, Event{Type: EventNodeAdded, Node: n})
	return nil
}

// Remove detaches the node with the given ID and reports whether it was
// present.
func (g *Group) Remove(id string) bool {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return false
	}
	delete(g.nodes, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	subs := g.snapshotSubsLocked()
	g.mu.Unlock()

	notify(subs, Event{Type: EventNodeRemoved, Node: n})
	return true
}

// Get returns the node with the given ID, or nil if not found.
func (g *Group) Get(id string) Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Len returns the number of attached nodes.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// List returns a snapshot of all nodes in insertion order.
func (g *Group) List() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	res := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		res = append(res, g.nodes[id])
	}
	return res
}

// Pick returns the nodes whose payload carries the given kind.
func (g *Group) Pick(kind model.PayloadKind) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var res []Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Payload().Kind == kind {
			res = append(res, n)
		}
	}
	return res
}

// Subscribe registers a callback for group events. It returns an
// unsubscribe function.
func (g *Group) Subscribe(fn func(Event)) (unsubscribe func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}

func (g *Group) snapshotSubsLocked() []func(Event) {
	ids := make([]int, 0, len(g.subs))
	for id := range g.subs {
		ids = append(ids, id)
	}
	// Deliver in subscription order.
	slices.Sort(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, g.subs[id])
	}
	return subs
}

// notify runs outside the lock so subscribers may call back into the group.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
