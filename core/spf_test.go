package core

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

// buildSquare returns the four-router square used throughout the tests:
// 1-2 (5), 2-4 (3), 1-3 (7), 3-4 (4), all bidirectional.
func buildSquare(t *testing.T, opts ...Option) *Network {
	t.Helper()
	n := NewNetwork(opts...)
	for i := 1; i <= 4; i++ {
		n.AddNode(float64(i*100), 0, model.NodeID(i))
	}
	for _, e := range []struct {
		a, b model.NodeID
		w    float64
	}{
		{1, 2, 5}, {2, 4, 3}, {1, 3, 7}, {3, 4, 4},
	} {
		if !n.ConnectNodes(e.a, e.b, e.w, true) {
			t.Fatalf("ConnectNodes(%d, %d) failed", e.a, e.b)
		}
	}
	return n
}

func TestComputeRoutes_Square(t *testing.T) {
	n := buildSquare(t)

	table := ComputeRoutes(n.Topology(), 1)
	r, ok := table[4]
	if !ok {
		t.Fatalf("expected a route 1 -> 4")
	}
	want := model.Route{Cost: 8, Path: []model.NodeID{1, 2, 4}, NextHop: 2}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Fatalf("route 1 -> 4 mismatch (-want +got):\n%s", diff)
	}
	if _, ok := table[1]; ok {
		t.Fatalf("routing table must not contain the source itself")
	}
	if got := table[3]; got.Cost != 7 || got.NextHop != 3 {
		t.Fatalf("route 1 -> 3 = %+v, want cost 7 via 3", got)
	}
}

func TestComputeRoutes_DisconnectedNodeHasNoEntry(t *testing.T) {
	n := buildSquare(t)
	for _, nb := range []model.NodeID{1, 4} {
		if !n.DisconnectNodes(2, nb) {
			t.Fatalf("DisconnectNodes(2, %d) failed", nb)
		}
	}

	table := n.CalculateShortestPaths(1)
	if _, ok := table[2]; ok {
		t.Fatalf("expected no route to isolated router 2, got %+v", table[2])
	}
	if r := table[4]; r.Cost != 11 {
		t.Fatalf("route 1 -> 4 cost = %v, want 11 via 3", r.Cost)
	}
	// The facade recomputed every table after the disconnect.
	if _, ok := n.RoutingTable(1)[2]; ok {
		t.Fatalf("stored table of router 1 still routes to 2")
	}
}

func TestComputeRoutes_TieBreakLowestID(t *testing.T) {
	// 1 reaches 4 through 2 or 3 at equal cost; 2 is settled first.
	n := NewNetwork()
	for i := 1; i <= 4; i++ {
		n.AddNode(0, 0, model.NodeID(i))
	}
	n.ConnectNodes(1, 3, 1, true)
	n.ConnectNodes(1, 2, 1, true)
	n.ConnectNodes(3, 4, 1, true)
	n.ConnectNodes(2, 4, 1, true)

	r := ComputeRoutes(n.Topology(), 1)[4]
	if diff := cmp.Diff([]model.NodeID{1, 2, 4}, r.Path); diff != "" {
		t.Fatalf("tie-broken path mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeRoutes_UnknownSource(t *testing.T) {
	n := buildSquare(t)
	if table := ComputeRoutes(n.Topology(), 42); len(table) != 0 {
		t.Fatalf("expected empty table for unknown source, got %v", table)
	}
}

func TestComputeRoutes_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 40; trial++ {
		n := NewNetwork()
		size := 3 + rng.Intn(4)
		for i := 1; i <= size; i++ {
			n.AddNode(0, 0, model.NodeID(i))
		}
		for a := 1; a <= size; a++ {
			for b := 1; b <= size; b++ {
				if a == b || rng.Float64() > 0.45 {
					continue
				}
				n.ConnectNodes(model.NodeID(a), model.NodeID(b), float64(1+rng.Intn(9)), false)
			}
		}

		for src := 1; src <= size; src++ {
			table := ComputeRoutes(n.Topology(), model.NodeID(src))
			for dst := 1; dst <= size; dst++ {
				if dst == src {
					continue
				}
				best := bruteForceCost(n, model.NodeID(src), model.NodeID(dst))
				r, ok := table[model.NodeID(dst)]
				if math.IsInf(best, 1) {
					if ok {
						t.Fatalf("trial %d: %d -> %d should be unreachable, got %+v", trial, src, dst, r)
					}
					continue
				}
				if !ok {
					t.Fatalf("trial %d: missing route %d -> %d (best %v)", trial, src, dst, best)
				}
				if r.Cost != best {
					t.Fatalf("trial %d: %d -> %d cost %v, brute force %v", trial, src, dst, r.Cost, best)
				}
				if sum := pathCost(t, n, r.Path); sum != r.Cost {
					t.Fatalf("trial %d: path %v sums to %v, route cost %v", trial, r.Path, sum, r.Cost)
				}
				if r.Path[0] != model.NodeID(src) || r.Path[len(r.Path)-1] != model.NodeID(dst) || r.NextHop != r.Path[1] {
					t.Fatalf("trial %d: malformed route %+v", trial, r)
				}
			}
		}
	}
}

func TestLSDBGraph_IgnoresLinksWithoutAdvertisement(t *testing.T) {
	now := time.Unix(0, 0)
	db := map[model.NodeID]model.LSA{
		1: {Origin: 1, Sequence: 1, Links: []model.LinkCost{{ID: 2, Cost: 1}, {ID: 3, Cost: 1}}, Timestamp: now},
		2: {Origin: 2, Sequence: 1, Links: []model.LinkCost{{ID: 1, Cost: 1}, {ID: 4, Cost: 2}}, Timestamp: now},
		4: {Origin: 4, Sequence: 1, Links: []model.LinkCost{{ID: 2, Cost: 2}}, Timestamp: now},
	}

	table := ComputeRoutes(NewLSDBGraph(1, db), 1)
	if _, ok := table[3]; ok {
		t.Fatalf("router 3 has no advertisement and must not be routable")
	}
	if r := table[4]; r.Cost != 3 || r.NextHop != 2 {
		t.Fatalf("route 1 -> 4 = %+v, want cost 3 via 2", r)
	}
}

func bruteForceCost(n *Network, src, dst model.NodeID) float64 {
	best := math.Inf(1)
	visited := map[model.NodeID]bool{src: true}
	var walk func(cur model.NodeID, cost float64)
	walk = func(cur model.NodeID, cost float64) {
		if cur == dst {
			best = math.Min(best, cost)
			return
		}
		n.Topology().ForEachNeighbor(cur, func(nb model.NodeID, w float64) {
			if visited[nb] {
				return
			}
			visited[nb] = true
			walk(nb, cost+w)
			visited[nb] = false
		})
	}
	walk(src, 0)
	return best
}

func pathCost(t *testing.T, n *Network, path []model.NodeID) float64 {
	t.Helper()
	sum := 0.0
	for i := 0; i+1 < len(path); i++ {
		nb, ok := n.Node(path[i]).Neighbors[path[i+1]]
		if !ok {
			t.Fatalf("path %v uses missing edge %d -> %d", path, path[i], path[i+1])
		}
		sum += nb.Weight
	}
	return sum
}
