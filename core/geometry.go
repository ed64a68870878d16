package core

import (
	"math"

	"github.com/signalsfoundry/linkstate-simulator/model"
)

const (
	// DefaultHitRadius is the pick radius around a router's position.
	DefaultHitRadius = 20.0
	// MinNodeSpacing is the closest two routers may be placed.
	MinNodeSpacing = 50.0
)

// vec2 is a canvas-space vector.
type vec2 struct {
	X, Y float64
}

func vecOf(p model.Position) vec2 { return vec2{X: p.X, Y: p.Y} }

// DistanceTo returns the straight-line distance between two points.
func (v vec2) DistanceTo(other vec2) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Sub returns v - other.
func (v vec2) Sub(other vec2) vec2 {
	return vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Dot returns the dot product of two vectors.
func (v vec2) Dot(other vec2) float64 {
	return v.X*other.X + v.Y*other.Y
}

// distanceToSegment returns the distance from p to the segment a-b.
func distanceToSegment(p, a, b vec2) float64 {
	v := b.Sub(a)
	len2 := v.Dot(v)
	if len2 == 0 {
		return p.DistanceTo(a)
	}

	// Closest point on the segment, clamped to its endpoints.
	t := p.Sub(a).Dot(v) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := vec2{X: a.X + v.X*t, Y: a.Y + v.Y*t}
	return p.DistanceTo(closest)
}

// NodeAtPosition returns the first router, in insertion order, whose
// position lies within radius of (x, y). A non-positive radius uses
// DefaultHitRadius.
func (n *Network) NodeAtPosition(x, y, radius float64) (model.NodeID, bool) {
	if radius <= 0 {
		radius = DefaultHitRadius
	}
	p := vec2{X: x, Y: y}
	for _, node := range n.topo.Nodes() {
		if p.DistanceTo(vecOf(node.Position)) <= radius {
			return node.ID, true
		}
	}
	return 0, false
}

// CanPlaceNode reports whether a router could be added at (x, y) without
// crowding an existing one.
func (n *Network) CanPlaceNode(x, y float64) bool {
	p := vec2{X: x, Y: y}
	for _, node := range n.topo.Nodes() {
		if p.DistanceTo(vecOf(node.Position)) < MinNodeSpacing {
			return false
		}
	}
	return true
}

// EdgeAtPosition returns the directed adjacency whose segment passes
// closest to (x, y), provided it is within tolerance.
func (n *Network) EdgeAtPosition(x, y, tolerance float64) (from, to model.NodeID, ok bool) {
	p := vec2{X: x, Y: y}
	best := tolerance
	for _, node := range n.topo.Nodes() {
		for _, nbID := range node.NeighborIDs() {
			nb := n.topo.Node(nbID)
			if nb == nil {
				continue
			}
			d := distanceToSegment(p, vecOf(node.Position), vecOf(nb.Position))
			if d <= best {
				best, from, to, ok = d, node.ID, nbID, true
			}
		}
	}
	return from, to, ok
}

// PacketPosition interpolates an in-flight packet between the router that
// sent it and its target by the packet's progress.
func (n *Network) PacketPosition(p model.Packet) (model.Position, bool) {
	var src model.NodeID
	switch pkt := p.(type) {
	case *model.HelloPacket:
		src = pkt.Source
	case *model.LSAPacket:
		src = pkt.ReceivedFrom
	default:
		return model.Position{}, false
	}
	a, b := n.topo.Node(src), n.topo.Node(p.Destination())
	if a == nil || b == nil {
		return model.Position{}, false
	}
	t := p.Progress()
	return model.Position{
		X: a.Position.X + (b.Position.X-a.Position.X)*t,
		Y: a.Position.Y + (b.Position.Y-a.Position.Y)*t,
	}, true
}
