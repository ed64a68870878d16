package kb

import (
	"slices"
	"time"

	"github.com/signalsfoundry/linkstate-simulator/model"
)

// Node is a simulated router together with its protocol state.
type Node struct {
	ID       model.NodeID
	Position model.Position

	// Neighbors holds the directed adjacencies from this router.
	Neighbors map[model.NodeID]*model.Neighbor

	// IsActive gates Hello emission and LSA acceptance.
	IsActive bool

	// LSASeq is bumped on every local topology change.
	LSASeq uint64

	// LSADB holds the most recently accepted advertisement per origin.
	LSADB map[model.NodeID]model.LSA

	// ReceivedLSAs is the set of advertisement instances already processed.
	ReceivedLSAs map[model.LSAKey]struct{}

	// FloodRecord tracks, per origin, which neighbors are known to hold that
	// origin's advertisement (sent to them, or received from them).
	FloodRecord map[model.NodeID]map[model.NodeID]struct{}

	RoutingTable model.RoutingTable
}

func newNode(id model.NodeID, pos model.Position) *Node {
	return &Node{
		ID:           id,
		Position:     pos,
		Neighbors:    make(map[model.NodeID]*model.Neighbor),
		IsActive:     true,
		LSADB:        make(map[model.NodeID]model.LSA),
		ReceivedLSAs: make(map[model.LSAKey]struct{}),
		FloodRecord:  make(map[model.NodeID]map[model.NodeID]struct{}),
		RoutingTable: make(model.RoutingTable),
	}
}

// IsIsolated reports whether the node has no outgoing adjacencies.
func (n *Node) IsIsolated() bool {
	return len(n.Neighbors) == 0
}

// NeighborIDs returns the adjacency keys in ascending order.
func (n *Node) NeighborIDs() []model.NodeID {
	ids := make([]model.NodeID, 0, len(n.Neighbors))
	for id := range n.Neighbors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Links snapshots the adjacency list with costs, ordered by neighbor id.
func (n *Node) Links() []model.LinkCost {
	out := make([]model.LinkCost, 0, len(n.Neighbors))
	for _, id := range n.NeighborIDs() {
		out = append(out, model.LinkCost{ID: id, Cost: n.Neighbors[id].Weight})
	}
	return out
}

// SelfLSA builds an advertisement of the node's current links.
func (n *Node) SelfLSA(seq uint64, now time.Time) model.LSA {
	return model.LSA{
		Origin:    n.ID,
		Sequence:  seq,
		Links:     n.Links(),
		Timestamp: now,
	}
}

// touch records a local topology change: it bumps the sequence counter and
// re-stamps the node's own entry in its link-state database.
func (n *Node) touch(now time.Time) {
	n.LSASeq++
	n.LSADB[n.ID] = n.SelfLSA(n.LSASeq, now)
}

// ProcessHello applies a delivered Hello from src. An existing adjacency
// toward src is refreshed and confirmed, and a database entry for src is
// seeded from the advertised links when none exists.
func (n *Node) ProcessHello(src model.NodeID, srcLinks []model.LinkCost, now time.Time) {
	nb, ok := n.Neighbors[src]
	if !ok {
		return
	}
	nb.LastUpdate = now
	nb.Confirmed = true
	if _, seeded := n.LSADB[src]; !seeded {
		n.LSADB[src] = model.LSA{
			Origin:    src,
			Sequence:  1,
			Links:     slices.Clone(srcLinks),
			Timestamp: now,
		}
	}
}

// ExpireNeighbors removes adjacencies not refreshed within timeout of now.
// Adjacencies confirmed in the current discovery round, and adjacencies
// never refreshed by a Hello, are kept.
func (n *Node) ExpireNeighbors(now time.Time, timeout time.Duration) []model.NodeID {
	if timeout <= 0 {
		return nil
	}
	var pruned []model.NodeID
	for _, id := range n.NeighborIDs() {
		nb := n.Neighbors[id]
		if nb.Confirmed || nb.LastUpdate.IsZero() {
			continue
		}
		if now.Sub(nb.LastUpdate) > timeout {
			delete(n.Neighbors, id)
			pruned = append(pruned, id)
		}
	}
	if len(pruned) > 0 {
		n.touch(now)
	}
	return pruned
}

// HasLSA reports whether the key was already processed.
func (n *Node) HasLSA(key model.LSAKey) bool {
	_, ok := n.ReceivedLSAs[key]
	return ok
}

// AcceptLSA records the advertisement unless it is a duplicate. It returns
// false for an instance that was already processed.
func (n *Node) AcceptLSA(lsa model.LSA) bool {
	key := lsa.Key()
	if n.HasLSA(key) {
		return false
	}
	n.ReceivedLSAs[key] = struct{}{}
	n.LSADB[lsa.Origin] = lsa
	return true
}

// MarkHolder notes that neighbor is known to hold origin's advertisement.
func (n *Node) MarkHolder(origin, neighbor model.NodeID) {
	set, ok := n.FloodRecord[origin]
	if !ok {
		set = make(map[model.NodeID]struct{})
		n.FloodRecord[origin] = set
	}
	set[neighbor] = struct{}{}
}

// KnownHolder reports whether neighbor is known to hold origin's advertisement.
func (n *Node) KnownHolder(origin, neighbor model.NodeID) bool {
	_, ok := n.FloodRecord[origin][neighbor]
	return ok
}

// ResetFloodState clears every piece of link-state flooding bookkeeping.
func (n *Node) ResetFloodState() {
	n.LSADB = make(map[model.NodeID]model.LSA)
	n.ReceivedLSAs = make(map[model.LSAKey]struct{})
	n.FloodRecord = make(map[model.NodeID]map[model.NodeID]struct{})
}

// ClearConfirmations starts a new discovery round for this node. Refresh
// times are kept so a neighbor that stays silent for a whole round can
// expire when the round ends.
func (n *Node) ClearConfirmations() {
	for _, nb := range n.Neighbors {
		nb.Confirmed = false
	}
}
