package core

import (
	"io"
	"testing"

	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

func TestAddNode_ExplicitIDAdvancesCounter(t *testing.T) {
	n := NewNetwork()
	if id := n.AddNode(0, 0, 0); id != 1 {
		t.Fatalf("first auto id = %d, want 1", id)
	}
	if id := n.AddNode(0, 0, 10); id != 10 {
		t.Fatalf("explicit id = %d, want 10", id)
	}
	if id := n.AddNode(0, 0, 0); id != 11 {
		t.Fatalf("auto id after explicit 10 = %d, want 11", id)
	}
	// An explicit id below the counter leaves it alone.
	n.AddNode(0, 0, 5)
	if next := n.NextNodeID(); next != 12 {
		t.Fatalf("NextNodeID = %d, want 12", next)
	}
}

func TestConnectNodes_FailSoft(t *testing.T) {
	events := logging.NewEventLog(0)
	n := NewNetwork(WithLogger(logging.New(logging.Config{Output: io.Discard, Events: events})))
	a := n.AddNode(0, 0, 0)
	b := n.AddNode(100, 0, 0)

	if n.ConnectNodes(a, 99, 1, true) {
		t.Fatalf("connecting to an unknown router must fail")
	}
	if !n.ConnectNodes(a, b, 1, false) {
		t.Fatalf("first connect must succeed")
	}
	seq := n.Node(a).LSASeq
	if n.ConnectNodes(a, b, 2, true) {
		t.Fatalf("connecting an existing forward edge must fail")
	}
	if n.Node(a).Neighbors[b].Weight != 1 || n.EdgeExists(b, a) {
		t.Fatalf("failed connect must not mutate the topology")
	}
	if n.Node(a).LSASeq != seq {
		t.Fatalf("failed connect must not bump the sequence number")
	}
	if n.ConnectNodes(a, a, 1, false) {
		t.Fatalf("self-loops must be rejected")
	}
	if n.ConnectNodes(b, a, 0, false) {
		t.Fatalf("non-positive weights must be rejected")
	}

	if got := len(events.Events(logging.CategoryError)); got != 4 {
		t.Fatalf("expected 4 ERROR events, got %d", got)
	}
}

func TestConnectNodes_BumpsSequenceAndStampsDB(t *testing.T) {
	n := NewNetwork()
	a := n.AddNode(0, 0, 0)
	b := n.AddNode(100, 0, 0)
	c := n.AddNode(200, 0, 0)

	n.ConnectNodes(a, b, 4, true)
	n.ConnectNodes(a, c, 2, false)

	if got := n.Node(a).LSASeq; got != 2 {
		t.Fatalf("router a LSASeq = %d, want 2", got)
	}
	if got := n.Node(b).LSASeq; got != 1 {
		t.Fatalf("router b LSASeq = %d, want 1", got)
	}
	if got := n.Node(c).LSASeq; got != 0 {
		t.Fatalf("one-way target c must not be bumped, LSASeq = %d", got)
	}
	self := n.Node(a).LSADB[a]
	if self.Sequence != 2 || len(self.Links) != 2 {
		t.Fatalf("self advertisement = %+v, want seq 2 with 2 links", self)
	}
}

func TestUpdateEdgeWeight_Mirroring(t *testing.T) {
	n := buildSquare(t)

	// Bidirectional pair: both directions follow.
	if !n.UpdateEdgeWeight(1, 2, 9) {
		t.Fatalf("UpdateEdgeWeight(1, 2) failed")
	}
	if n.Node(1).Neighbors[2].Weight != 9 || n.Node(2).Neighbors[1].Weight != 9 {
		t.Fatalf("bidirectional update must mirror onto both directions")
	}
	if r := n.RoutingTable(1)[4]; r.Cost != 11 || r.NextHop != 3 {
		t.Fatalf("routing tables not recomputed after weight change: %+v", r)
	}

	// One-sided pair: only the forward direction changes and no reverse is
	// created.
	n.AddNode(500, 0, 5)
	n.ConnectNodes(4, 5, 2, false)
	if !n.UpdateEdgeWeight(4, 5, 6) {
		t.Fatalf("UpdateEdgeWeight(4, 5) failed")
	}
	if n.Node(4).Neighbors[5].Weight != 6 {
		t.Fatalf("forward weight not updated")
	}
	if n.EdgeExists(5, 4) {
		t.Fatalf("one-sided update must not create the reverse adjacency")
	}

	// Asymmetric pair: forward and reverse carry unrelated weights; the
	// reverse follows only because it exists.
	n.ConnectNodes(5, 4, 1, false)
	n.UpdateEdgeWeight(5, 4, 3)
	if n.Node(4).Neighbors[5].Weight != 3 {
		t.Fatalf("existing reverse adjacency should be mirrored")
	}

	if n.UpdateEdgeWeight(1, 4, 1) {
		t.Fatalf("updating a missing edge must fail")
	}
	if n.UpdateEdgeWeight(1, 99, 1) {
		t.Fatalf("updating toward an unknown router must fail")
	}
}

func TestDisconnectNodes(t *testing.T) {
	n := buildSquare(t)

	if !n.DisconnectNodes(1, 2) {
		t.Fatalf("DisconnectNodes(1, 2) failed")
	}
	if n.EdgeExists(1, 2) || n.EdgeExists(2, 1) {
		t.Fatalf("disconnect must remove both directions")
	}
	if n.DisconnectNodes(1, 2) {
		t.Fatalf("disconnecting an absent edge must fail")
	}
	if n.DisconnectNodes(1, 42) {
		t.Fatalf("disconnecting from an unknown router must fail")
	}

	// Only the reverse exists: disconnecting the pair still removes it.
	n.AddNode(0, 0, 5)
	n.ConnectNodes(5, 1, 1, false)
	if !n.DisconnectNodes(1, 5) || n.EdgeExists(5, 1) {
		t.Fatalf("disconnect must mirror onto the reverse adjacency")
	}
}

func TestRemoveNode_Cascade(t *testing.T) {
	n := buildSquare(t)
	n.AddNode(0, 0, 5)
	n.ConnectNodes(5, 2, 1, false) // incoming only

	n.StartHelloPhase()
	n.SimulationStep() // router 1 emits toward 2 and 3
	if len(n.HelloPackets()) != 2 {
		t.Fatalf("expected 2 Hellos in flight, got %d", len(n.HelloPackets()))
	}

	if !n.RemoveNode(2) {
		t.Fatalf("RemoveNode(2) failed")
	}
	if n.Node(2) != nil {
		t.Fatalf("router 2 still present")
	}
	for _, node := range n.Topology().Nodes() {
		if _, ok := node.Neighbors[2]; ok {
			t.Errorf("router %d still lists removed router 2", node.ID)
		}
		if _, ok := node.RoutingTable[2]; ok {
			t.Errorf("router %d still routes to removed router 2", node.ID)
		}
	}
	for _, p := range n.Packets() {
		if p.References(2) {
			t.Errorf("packet referencing router 2 survived: %+v", p)
		}
	}
	if got := len(n.HelloPackets()); got != 1 {
		t.Fatalf("expected the Hello toward 3 to survive, got %d packets", got)
	}

	if n.RemoveNode(2) {
		t.Fatalf("removing an unknown router must fail")
	}

	// The simulation keeps going after the removal.
	runUntilIdle(t, n, 5000)
	if !n.HelloPhaseComplete() {
		t.Fatalf("Hello phase should still complete")
	}
}

func TestGetReachableNodes_SkipsThroughInactive(t *testing.T) {
	n := NewNetwork()
	for i := 1; i <= 4; i++ {
		n.AddNode(0, 0, model.NodeID(i))
	}
	n.ConnectNodes(1, 2, 1, true)
	n.ConnectNodes(2, 3, 1, true)
	n.ConnectNodes(3, 4, 1, true)

	n.SetNodeActive(3, false)
	got := n.GetReachableNodes(1)
	want := []model.NodeID{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("GetReachableNodes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetReachableNodes = %v, want %v", got, want)
		}
	}
	if n.SetNodeActive(42, true) {
		t.Fatalf("SetNodeActive on unknown router must fail")
	}
	if len(n.GetReachableNodes(42)) != 0 {
		t.Fatalf("unknown start must reach nothing")
	}
}
