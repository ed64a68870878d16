package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/linkstate-simulator/model"
)

func TestDistanceToSegment(t *testing.T) {
	a := vec2{X: 0, Y: 0}
	b := vec2{X: 10, Y: 0}

	if d := distanceToSegment(vec2{X: 5, Y: 3}, a, b); math.Abs(d-3) > 1e-9 {
		t.Errorf("midpoint distance = %v, want 3", d)
	}
	// Beyond the end the distance is measured to the endpoint.
	if d := distanceToSegment(vec2{X: 13, Y: 4}, a, b); math.Abs(d-5) > 1e-9 {
		t.Errorf("endpoint distance = %v, want 5", d)
	}
	if d := distanceToSegment(vec2{X: 3, Y: 4}, a, a); math.Abs(d-5) > 1e-9 {
		t.Errorf("degenerate segment distance = %v, want 5", d)
	}
}

func TestNodeAtPositionAndPlacement(t *testing.T) {
	n := NewNetwork()
	a := n.AddNode(100, 100, 0)
	n.AddNode(300, 100, 0)

	if id, ok := n.NodeAtPosition(110, 105, 0); !ok || id != a {
		t.Fatalf("NodeAtPosition = (%d, %v), want (%d, true)", id, ok, a)
	}
	if _, ok := n.NodeAtPosition(200, 200, 0); ok {
		t.Fatalf("expected no router near (200, 200)")
	}

	if n.CanPlaceNode(130, 100) {
		t.Errorf("expected placement 30 units from a router to be rejected")
	}
	if !n.CanPlaceNode(200, 100) {
		t.Errorf("expected placement 100 units from both routers to be allowed")
	}
}

func TestEdgeAtPosition(t *testing.T) {
	n := NewNetwork()
	a := n.AddNode(0, 0, 0)
	b := n.AddNode(100, 0, 0)
	c := n.AddNode(0, 100, 0)
	n.ConnectNodes(a, b, 1, false)
	n.ConnectNodes(a, c, 1, false)

	from, to, ok := n.EdgeAtPosition(50, 4, 5)
	if !ok || from != a || to != b {
		t.Fatalf("EdgeAtPosition = (%d, %d, %v), want (%d, %d, true)", from, to, ok, a, b)
	}
	if _, _, ok := n.EdgeAtPosition(60, 60, 5); ok {
		t.Fatalf("expected no edge near (60, 60)")
	}
}

func TestPacketPositionInterpolates(t *testing.T) {
	n := NewNetwork()
	a := n.AddNode(0, 0, 0)
	b := n.AddNode(100, 50, 0)

	p := &model.HelloPacket{
		Transit: model.Transit{Elapsed: 25, Duration: 100},
		Source:  a,
		Target:  b,
	}
	pos, ok := n.PacketPosition(p)
	if !ok {
		t.Fatalf("PacketPosition returned !ok")
	}
	if math.Abs(pos.X-25) > 1e-9 || math.Abs(pos.Y-12.5) > 1e-9 {
		t.Fatalf("PacketPosition = %+v, want {25 12.5}", pos)
	}

	p.Target = 99
	if _, ok := n.PacketPosition(p); ok {
		t.Fatalf("expected !ok for packet toward unknown router")
	}
}
