package kb

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/signalsfoundry/linkstate-simulator/model"
	"github.com/signalsfoundry/linkstate-simulator/timectrl"
)

var epoch = time.Unix(1_700_000_000, 0)

func newTestTopology(t *testing.T, n int) (*Topology, *timectrl.ManualClock) {
	t.Helper()
	clock := timectrl.NewManualClock(epoch)
	topo := NewTopology(clock)
	for i := 0; i < n; i++ {
		topo.AddNode(model.Position{X: float64(i) * 100}, 0)
	}
	return topo, clock
}

func TestAddNodeAssignsIDs(t *testing.T) {
	topo, _ := newTestTopology(t, 2)
	if got := topo.IDs(); !slices.Equal(got, []model.NodeID{1, 2}) {
		t.Fatalf("IDs = %v, want [1 2]", got)
	}

	n := topo.AddNode(model.Position{}, 7)
	if n.ID != 7 || topo.NextNodeID() != 8 {
		t.Fatalf("explicit id 7: got id %d next %d", n.ID, topo.NextNodeID())
	}
	if !n.IsActive || n.LSASeq != 0 || !n.IsIsolated() {
		t.Fatalf("new router has unexpected state: %+v", n)
	}

	// Replacing an id keeps its slot in insertion order.
	topo.AddNode(model.Position{X: 5}, 2)
	if got := topo.IDs(); !slices.Equal(got, []model.NodeID{1, 2, 7}) {
		t.Fatalf("IDs after replace = %v", got)
	}
	if topo.Node(2).Position.X != 5 || topo.Len() != 3 {
		t.Fatalf("replacement router not installed")
	}
}

func TestSetNextNodeIDSkipsUsedIDs(t *testing.T) {
	topo, _ := newTestTopology(t, 3)

	topo.SetNextNodeID(2)
	if got := topo.NextNodeID(); got != 4 {
		t.Fatalf("NextNodeID = %d, want 4", got)
	}
	topo.SetNextNodeID(10)
	if got := topo.NextNodeID(); got != 10 {
		t.Fatalf("NextNodeID = %d, want 10", got)
	}
	topo.SetNextNodeID(-3)
	if got := topo.NextNodeID(); got != 4 {
		t.Fatalf("NextNodeID = %d, want 4", got)
	}
}

func TestConnectNodesValidation(t *testing.T) {
	topo, _ := newTestTopology(t, 2)

	cases := []struct {
		name   string
		a, b   model.NodeID
		weight float64
		want   error
	}{
		{"unknown", 1, 9, 1, ErrNodeNotFound},
		{"self loop", 1, 1, 1, ErrSelfLoop},
		{"zero weight", 1, 2, 0, ErrInvalidWeight},
		{"nan weight", 1, 2, math.NaN(), ErrInvalidWeight},
		{"inf weight", 1, 2, math.Inf(1), ErrInvalidWeight},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := topo.ConnectNodes(tc.a, tc.b, tc.weight, true); !errors.Is(err, tc.want) {
				t.Fatalf("ConnectNodes err = %v, want %v", err, tc.want)
			}
		})
	}
	if topo.EdgeCount() != 0 {
		t.Fatalf("failed connects must not mutate, edges = %d", topo.EdgeCount())
	}

	if err := topo.ConnectNodes(1, 2, 3, true); err != nil {
		t.Fatalf("ConnectNodes: %v", err)
	}
	if err := topo.ConnectNodes(1, 2, 4, false); !errors.Is(err, ErrEdgeExists) {
		t.Fatalf("duplicate edge err = %v, want ErrEdgeExists", err)
	}
	// The reverse can still be rejected independently.
	if err := topo.ConnectNodes(2, 1, 4, false); !errors.Is(err, ErrEdgeExists) {
		t.Fatalf("reverse duplicate err = %v, want ErrEdgeExists", err)
	}
}

func TestConnectStampsSelfAdvertisement(t *testing.T) {
	topo, clock := newTestTopology(t, 3)
	clock.Advance(time.Second)

	if err := topo.ConnectNodes(1, 2, 2, true); err != nil {
		t.Fatal(err)
	}
	if err := topo.ConnectNodes(1, 3, 5, false); err != nil {
		t.Fatal(err)
	}

	one := topo.Node(1)
	if one.LSASeq != 2 {
		t.Fatalf("LSASeq = %d, want 2", one.LSASeq)
	}
	self := one.LSADB[1]
	want := []model.LinkCost{{ID: 2, Cost: 2}, {ID: 3, Cost: 5}}
	if self.Sequence != 2 || !slices.Equal(self.Links, want) || !self.Timestamp.Equal(epoch.Add(time.Second)) {
		t.Fatalf("self advertisement = %+v", self)
	}
	if topo.Node(3).LSASeq != 0 {
		t.Fatalf("one-way target must not be touched")
	}
}

func TestUpdateAndDisconnect(t *testing.T) {
	topo, _ := newTestTopology(t, 3)
	_ = topo.ConnectNodes(1, 2, 2, true)
	_ = topo.ConnectNodes(2, 3, 4, false)

	old, err := topo.UpdateEdgeWeight(1, 2, 6)
	if err != nil || old != 2 {
		t.Fatalf("UpdateEdgeWeight = (%v, %v), want (2, nil)", old, err)
	}
	if topo.Node(2).Neighbors[1].Weight != 6 {
		t.Fatalf("existing reverse should follow the update")
	}
	if _, err := topo.UpdateEdgeWeight(2, 3, 1); err != nil {
		t.Fatal(err)
	}
	if topo.EdgeExists(3, 2) {
		t.Fatalf("update must not create a reverse adjacency")
	}
	if _, err := topo.UpdateEdgeWeight(3, 1, 1); !errors.Is(err, ErrEdgeNotFound) {
		t.Fatalf("missing edge err = %v", err)
	}

	w, bidi, err := topo.DisconnectNodes(1, 2)
	if err != nil || w != 6 || !bidi {
		t.Fatalf("DisconnectNodes = (%v, %v, %v)", w, bidi, err)
	}
	// Only the forward of 2->3 exists; disconnecting from the far end still works.
	w, bidi, err = topo.DisconnectNodes(3, 2)
	if err != nil || w != 0 || !bidi {
		t.Fatalf("reverse-only DisconnectNodes = (%v, %v, %v)", w, bidi, err)
	}
	if topo.EdgeCount() != 0 {
		t.Fatalf("edges remain: %d", topo.EdgeCount())
	}
	if _, _, err := topo.DisconnectNodes(1, 2); !errors.Is(err, ErrEdgeNotFound) {
		t.Fatalf("second disconnect err = %v", err)
	}
}

func TestRemoveNodeCascadesAndPublishes(t *testing.T) {
	topo, _ := newTestTopology(t, 4)
	_ = topo.ConnectNodes(1, 2, 1, true)
	_ = topo.ConnectNodes(3, 2, 1, false)
	_ = topo.ConnectNodes(3, 4, 1, true)

	var events []Event
	unsubscribe := topo.Subscribe(func(ev Event) { events = append(events, ev) })

	affected, err := topo.RemoveNode(2)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(affected, []model.NodeID{1, 3}) {
		t.Fatalf("affected = %v, want [1 3]", affected)
	}
	if topo.Has(2) || topo.EdgeExists(1, 2) || topo.EdgeExists(3, 2) {
		t.Fatalf("router 2 or its adjacencies survived")
	}
	if len(events) != 1 || events[0].Type != EventNodeRemoved || events[0].From != 2 {
		t.Fatalf("events = %+v", events)
	}
	if _, err := topo.RemoveNode(2); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("second RemoveNode err = %v", err)
	}

	unsubscribe()
	topo.AddNode(model.Position{}, 0)
	if len(events) != 1 {
		t.Fatalf("unsubscribed callback still invoked")
	}
}

func TestReachableStopsAtInactive(t *testing.T) {
	topo, _ := newTestTopology(t, 5)
	_ = topo.ConnectNodes(1, 2, 1, true)
	_ = topo.ConnectNodes(2, 3, 1, true)
	_ = topo.ConnectNodes(3, 4, 1, true)
	// 5 only points inward.
	_ = topo.ConnectNodes(5, 1, 1, false)

	if err := topo.SetNodeActive(3, false); err != nil {
		t.Fatal(err)
	}
	got := topo.Reachable(1)
	for _, id := range []model.NodeID{1, 2, 3} {
		if _, ok := got[id]; !ok {
			t.Errorf("router %d should be reachable", id)
		}
	}
	for _, id := range []model.NodeID{4, 5} {
		if _, ok := got[id]; ok {
			t.Errorf("router %d should not be reachable", id)
		}
	}
	if len(topo.Reachable(42)) != 0 {
		t.Fatalf("unknown start should reach nothing")
	}
	if err := topo.SetNodeActive(42, true); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("SetNodeActive unknown err = %v", err)
	}
}

func TestClearResetsCounter(t *testing.T) {
	topo, _ := newTestTopology(t, 3)
	removed := 0
	topo.Subscribe(func(ev Event) {
		if ev.Type == EventNodeRemoved {
			removed++
		}
	})
	topo.Clear()
	if topo.Len() != 0 || topo.NextNodeID() != 1 || removed != 3 {
		t.Fatalf("Clear: len=%d next=%d removed=%d", topo.Len(), topo.NextNodeID(), removed)
	}
}

func TestProcessHelloConfirmsAndExpires(t *testing.T) {
	topo, clock := newTestTopology(t, 3)
	_ = topo.ConnectNodes(1, 2, 1, true)
	_ = topo.ConnectNodes(1, 3, 1, true)
	one := topo.Node(1)
	timeout := 10 * time.Second

	links := topo.Node(2).Links()
	one.ProcessHello(2, links, clock.Now())
	if !one.Neighbors[2].Confirmed {
		t.Fatalf("Hello from 2 not applied")
	}
	seeded := one.LSADB[2]
	if seeded.Sequence != 1 || !slices.Equal(seeded.Links, links) {
		t.Fatalf("seeded LSDB entry = %+v", seeded)
	}

	// Hello from a non-neighbor changes nothing.
	one.ProcessHello(9, nil, clock.Now())
	if _, ok := one.LSADB[9]; ok {
		t.Fatalf("non-neighbor Hello must not seed the database")
	}

	// Confirmed in this round: kept no matter how old the refresh is.
	clock.Advance(11 * time.Second)
	if got := one.ExpireNeighbors(clock.Now(), timeout); got != nil {
		t.Fatalf("confirmed neighbor pruned: %v", got)
	}

	// Next round: 3 speaks, 2 stays silent.
	one.ClearConfirmations()
	one.ProcessHello(3, nil, clock.Now())
	seq := one.LSASeq
	pruned := one.ExpireNeighbors(clock.Now(), timeout)
	if !slices.Equal(pruned, []model.NodeID{2}) {
		t.Fatalf("pruned = %v, want [2]", pruned)
	}
	if _, ok := one.Neighbors[3]; !ok {
		t.Fatalf("freshly refreshed neighbor 3 must survive")
	}
	if one.LSASeq != seq+1 {
		t.Fatalf("pruning should bump LSASeq once, got %d want %d", one.LSASeq, seq+1)
	}

	if got := one.ExpireNeighbors(clock.Now().Add(time.Hour), 0); got != nil {
		t.Fatalf("zero timeout disables expiry, pruned %v", got)
	}
}

func TestExpireNeighborsKeepsNeverRefreshed(t *testing.T) {
	topo, clock := newTestTopology(t, 2)
	_ = topo.ConnectNodes(1, 2, 1, false)
	one := topo.Node(1)
	one.ClearConfirmations()

	clock.Advance(time.Hour)
	if got := one.ExpireNeighbors(clock.Now(), time.Second); got != nil {
		t.Fatalf("adjacency never refreshed by a Hello was pruned: %v", got)
	}
}

func TestAcceptLSADeduplicates(t *testing.T) {
	topo, _ := newTestTopology(t, 2)
	n := topo.Node(1)

	lsa := model.LSA{Origin: 2, Sequence: 3}
	if !n.AcceptLSA(lsa) {
		t.Fatalf("first copy must be accepted")
	}
	if n.AcceptLSA(lsa) {
		t.Fatalf("duplicate must be rejected")
	}
	if !n.HasLSA(lsa.Key()) || n.LSADB[2].Sequence != 3 {
		t.Fatalf("database not updated")
	}
	// A different sequence is a different instance.
	if !n.AcceptLSA(model.LSA{Origin: 2, Sequence: 4}) {
		t.Fatalf("new sequence must be accepted")
	}

	n.MarkHolder(2, 5)
	if !n.KnownHolder(2, 5) || n.KnownHolder(2, 6) || n.KnownHolder(3, 5) {
		t.Fatalf("flood record mismatch")
	}

	n.ResetFloodState()
	if n.HasLSA(lsa.Key()) || len(n.LSADB) != 0 || n.KnownHolder(2, 5) {
		t.Fatalf("ResetFloodState left state behind")
	}
}
