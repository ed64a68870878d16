package kb

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/linkstate-simulator/model"
	"github.com/signalsfoundry/linkstate-simulator/timectrl"
)

var (
	// ErrNodeNotFound indicates a referenced router does not exist.
	ErrNodeNotFound = errors.New("node not found")
	// ErrEdgeExists indicates the forward adjacency is already present.
	ErrEdgeExists = errors.New("edge already exists")
	// ErrEdgeNotFound indicates the adjacency to modify is absent.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrInvalidWeight indicates a non-positive or non-finite link weight.
	ErrInvalidWeight = errors.New("invalid edge weight")
	// ErrSelfLoop indicates an attempt to connect a router to itself.
	ErrSelfLoop = errors.New("self-loop not allowed")
)

// EventType indicates what kind of change happened in the topology.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventNodeRemoved
	EventEdgeAdded
	EventEdgeUpdated
	EventEdgeRemoved
)

func (e EventType) String() string {
	switch e {
	case EventNodeAdded:
		return "node_added"
	case EventNodeRemoved:
		return "node_removed"
	case EventEdgeAdded:
		return "edge_added"
	case EventEdgeUpdated:
		return "edge_updated"
	case EventEdgeRemoved:
		return "edge_removed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers after a topology mutation.
type Event struct {
	Type   EventType
	From   model.NodeID
	To     model.NodeID
	Weight float64
}

// Topology is the in-memory graph store: routers keyed by id plus their
// directed weighted adjacencies. It is not safe for concurrent use; callers
// that share it across goroutines must serialise access externally.
type Topology struct {
	nodes  map[model.NodeID]*Node
	order  []model.NodeID
	nextID model.NodeID
	clock  timectrl.SimClock

	subs   map[int]func(Event)
	subSeq int
}

// NewTopology constructs an empty topology. A nil clock falls back to the
// wall clock.
func NewTopology(clock timectrl.SimClock) *Topology {
	if clock == nil {
		clock = timectrl.WallClock{}
	}
	return &Topology{
		nodes:  make(map[model.NodeID]*Node),
		nextID: 1,
		clock:  clock,
		subs:   make(map[int]func(Event)),
	}
}

// SetClock swaps the time source used to stamp adjacency and LSA updates.
func (t *Topology) SetClock(clock timectrl.SimClock) {
	if clock != nil {
		t.clock = clock
	}
}

// Now returns the current time of the topology's clock.
func (t *Topology) Now() time.Time {
	return t.clock.Now()
}

// NextNodeID returns the id the next auto-assigned node will receive.
func (t *Topology) NextNodeID() model.NodeID {
	return t.nextID
}

// SetNextNodeID restores the auto-id counter, e.g. after an import. It never
// moves the counter onto an id already in use.
func (t *Topology) SetNextNodeID(id model.NodeID) {
	if id < 1 {
		id = 1
	}
	for _, existing := range t.order {
		if existing >= id {
			id = existing + 1
		}
	}
	t.nextID = id
}

// AddNode creates a router at pos. When explicitID is positive it is used
// verbatim and the auto-id counter is advanced past it; otherwise a fresh id
// is assigned. Explicit ids are trusted: an existing router with the same id
// is replaced.
func (t *Topology) AddNode(pos model.Position, explicitID model.NodeID) *Node {
	id := explicitID
	if id <= 0 {
		id = t.nextID
		t.nextID++
	} else if id >= t.nextID {
		t.nextID = id + 1
	}

	if _, exists := t.nodes[id]; !exists {
		t.order = append(t.order, id)
	}
	n := newNode(id, pos)
	t.nodes[id] = n
	t.publish(Event{Type: EventNodeAdded, From: id})
	return n
}

// Node returns the router with the given id, or nil if not found.
func (t *Topology) Node(id model.NodeID) *Node {
	return t.nodes[id]
}

// Has reports whether a router with the given id exists.
func (t *Topology) Has(id model.NodeID) bool {
	_, ok := t.nodes[id]
	return ok
}

// Len returns the number of routers.
func (t *Topology) Len() int {
	return len(t.nodes)
}

// IDs returns router ids in insertion order.
func (t *Topology) IDs() []model.NodeID {
	return append([]model.NodeID(nil), t.order...)
}

// Nodes returns a snapshot slice of all routers in insertion order.
func (t *Topology) Nodes() []*Node {
	res := make([]*Node, 0, len(t.order))
	for _, id := range t.order {
		res = append(res, t.nodes[id])
	}
	return res
}

// EdgeCount returns the number of directed adjacencies.
func (t *Topology) EdgeCount() int {
	count := 0
	for _, n := range t.nodes {
		count += len(n.Neighbors)
	}
	return count
}

// EdgeExists reports whether the directed adjacency a→b is present.
func (t *Topology) EdgeExists(a, b model.NodeID) bool {
	n := t.nodes[a]
	if n == nil {
		return false
	}
	_, ok := n.Neighbors[b]
	return ok
}

// ForEachNeighbor visits the outgoing adjacencies of id in ascending
// neighbor order.
func (t *Topology) ForEachNeighbor(id model.NodeID, fn func(nb model.NodeID, cost float64)) {
	n := t.nodes[id]
	if n == nil {
		return
	}
	for _, nb := range n.NeighborIDs() {
		fn(nb, n.Neighbors[nb].Weight)
	}
}

func (t *Topology) pair(a, b model.NodeID) (*Node, *Node, error) {
	na, nb := t.nodes[a], t.nodes[b]
	if na == nil || nb == nil {
		return nil, nil, fmt.Errorf("%w: %d, %d", ErrNodeNotFound, a, b)
	}
	return na, nb, nil
}

func validWeight(w float64) bool {
	return w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

// ConnectNodes adds the adjacency a→b, and b→a when bidirectional. It fails
// without mutation if either id is unknown or a→b already exists.
func (t *Topology) ConnectNodes(a, b model.NodeID, weight float64, bidirectional bool) error {
	na, nb, err := t.pair(a, b)
	if err != nil {
		return err
	}
	if a == b {
		return fmt.Errorf("%w: %d", ErrSelfLoop, a)
	}
	if !validWeight(weight) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
	}
	if _, exists := na.Neighbors[b]; exists {
		return fmt.Errorf("%w: %d -> %d", ErrEdgeExists, a, b)
	}

	now := t.clock.Now()
	na.Neighbors[b] = &model.Neighbor{Weight: weight}
	na.touch(now)
	if bidirectional {
		nb.Neighbors[a] = &model.Neighbor{Weight: weight}
		nb.touch(now)
	}
	t.publish(Event{Type: EventEdgeAdded, From: a, To: b, Weight: weight})
	return nil
}

// UpdateEdgeWeight changes the weight of a→b and mirrors it onto b→a only if
// that reverse adjacency already exists. It returns the previous weight.
func (t *Topology) UpdateEdgeWeight(a, b model.NodeID, weight float64) (float64, error) {
	na, nb, err := t.pair(a, b)
	if err != nil {
		return 0, err
	}
	if !validWeight(weight) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
	}
	fwd, ok := na.Neighbors[b]
	if !ok {
		return 0, fmt.Errorf("%w: %d -> %d", ErrEdgeNotFound, a, b)
	}

	now := t.clock.Now()
	old := fwd.Weight
	fwd.Weight = weight
	na.touch(now)
	if rev, ok := nb.Neighbors[a]; ok {
		rev.Weight = weight
		nb.touch(now)
	}
	t.publish(Event{Type: EventEdgeUpdated, From: a, To: b, Weight: weight})
	return old, nil
}

// DisconnectNodes removes a→b and mirrors the removal onto b→a if present.
// It fails if either id is unknown or neither direction exists.
func (t *Topology) DisconnectNodes(a, b model.NodeID) (removedWeight float64, bidirectional bool, err error) {
	na, nb, err := t.pair(a, b)
	if err != nil {
		return 0, false, err
	}
	fwd, hasFwd := na.Neighbors[b]
	_, hasRev := nb.Neighbors[a]
	if !hasFwd && !hasRev {
		return 0, false, fmt.Errorf("%w: %d -> %d", ErrEdgeNotFound, a, b)
	}

	now := t.clock.Now()
	if hasFwd {
		removedWeight = fwd.Weight
		delete(na.Neighbors, b)
		na.touch(now)
	}
	if hasRev {
		delete(nb.Neighbors, a)
		nb.touch(now)
	}
	t.publish(Event{Type: EventEdgeRemoved, From: a, To: b, Weight: removedWeight})
	return removedWeight, hasRev, nil
}

// RemoveNode deletes the router and every adjacency that points at it,
// regardless of direction. It returns the ids of routers that lost an
// adjacency.
func (t *Topology) RemoveNode(id model.NodeID) ([]model.NodeID, error) {
	n := t.nodes[id]
	if n == nil {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	now := t.clock.Now()
	var affected []model.NodeID
	for _, otherID := range t.order {
		if otherID == id {
			continue
		}
		other := t.nodes[otherID]
		if _, ok := other.Neighbors[id]; ok {
			delete(other.Neighbors, id)
			other.touch(now)
			affected = append(affected, otherID)
		}
	}

	delete(t.nodes, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.publish(Event{Type: EventNodeRemoved, From: id})
	return affected, nil
}

// SetNodeActive toggles whether a router takes part in Hello and LSA
// exchange.
func (t *Topology) SetNodeActive(id model.NodeID, active bool) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	n.IsActive = active
	return nil
}

// Reachable returns the ids reachable from start by breadth-first traversal.
// Only active routers are expanded; an inactive router is still included
// when an adjacency points at it. Ids with no router behind them are kept
// out of the result.
func (t *Topology) Reachable(start model.NodeID) map[model.NodeID]struct{} {
	visited := make(map[model.NodeID]struct{})
	if !t.Has(start) {
		return visited
	}
	visited[start] = struct{}{}
	queue := []model.NodeID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := t.nodes[cur]
		if n == nil || !n.IsActive {
			continue
		}
		for _, nb := range n.NeighborIDs() {
			if _, seen := visited[nb]; seen || !t.Has(nb) {
				continue
			}
			visited[nb] = struct{}{}
			queue = append(queue, nb)
		}
	}
	return visited
}

// Clear removes every router and resets the auto-id counter.
func (t *Topology) Clear() {
	for _, id := range t.IDs() {
		delete(t.nodes, id)
		t.publish(Event{Type: EventNodeRemoved, From: id})
	}
	t.order = nil
	t.nextID = 1
}

// Subscribe registers a callback for topology events. It returns an
// unsubscribe function.
func (t *Topology) Subscribe(fn func(Event)) (unsubscribe func()) {
	t.subSeq++
	id := t.subSeq
	t.subs[id] = fn
	return func() {
		delete(t.subs, id)
	}
}

func (t *Topology) publish(ev Event) {
	for _, sub := range t.subs {
		sub(ev)
	}
}
