package core

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/kb"
	"github.com/signalsfoundry/linkstate-simulator/model"
	"github.com/signalsfoundry/linkstate-simulator/timectrl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/linkstate-simulator/core"

// Network is the aggregate root of the simulation: it owns the topology,
// both packet queues and the phase state machine. It is not safe for
// concurrent use; see internal/sim/state for a locked wrapper.
//
// Mutators never panic or return errors for bad input. They report failure
// through their boolean result and a log line, so an interactive front end
// stays steerable after user mistakes.
type Network struct {
	topo    *kb.Topology
	cfg     Config
	clock   timectrl.SimClock
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	helloPackets []*model.HelloPacket
	lsaPackets   []*model.LSAPacket

	phase         model.Phase
	running       bool
	paused        bool
	nodesInOrder  []model.NodeID
	currentIndex  int
	helloComplete bool
	lsaComplete   bool

	tick  uint64
	stats Stats

	phaseCtx  context.Context
	phaseSpan trace.Span
}

// NewNetwork constructs an empty network.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		cfg:     DefaultConfig(),
		clock:   timectrl.WallClock{},
		log:     logging.Noop(),
		metrics: noopMetrics{},
		tracer:  otel.Tracer(tracerName),
		phase:   model.PhaseNone,
		stats:   newStats(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	n.topo = kb.NewTopology(n.clock)
	n.topo.Subscribe(func(kb.Event) {
		n.metrics.SetTopologyCounts(n.topo.Len(), n.topo.EdgeCount())
	})
	n.metrics.SetTopologyCounts(0, 0)
	n.log.Info(context.Background(), "Network initialized", logging.Category(logging.CategoryNetwork))
	return n
}

// Topology exposes the underlying graph store for read-only queries.
func (n *Network) Topology() *kb.Topology {
	return n.topo
}

// Config returns the timing parameters in use.
func (n *Network) Config() Config {
	return n.cfg
}

// Node returns the router with the given id, or nil.
func (n *Network) Node(id model.NodeID) *kb.Node {
	return n.topo.Node(id)
}

// NextNodeID returns the id the next auto-assigned router will receive.
func (n *Network) NextNodeID() model.NodeID {
	return n.topo.NextNodeID()
}

// AddNode creates a router at (x, y). A positive explicitID is used as-is;
// otherwise a fresh id is assigned. It returns the router's id.
func (n *Network) AddNode(x, y float64, explicitID model.NodeID) model.NodeID {
	node := n.topo.AddNode(model.Position{X: x, Y: y}, explicitID)
	n.log.Info(context.Background(), "Added router",
		logging.Category(logging.CategoryNode),
		logging.Int("node", int(node.ID)),
		logging.Float("x", x),
		logging.Float("y", y),
	)
	return node.ID
}

// ConnectNodes adds a→b (and b→a when bidirectional) with the given weight.
func (n *Network) ConnectNodes(a, b model.NodeID, weight float64, bidirectional bool) bool {
	if err := n.topo.ConnectNodes(a, b, weight, bidirectional); err != nil {
		n.fail("Failed to connect routers", err, logging.Int("from", int(a)), logging.Int("to", int(b)))
		return false
	}
	n.log.Info(context.Background(), "Connected routers",
		logging.Category(logging.CategoryEdge),
		logging.Int("from", int(a)),
		logging.Int("to", int(b)),
		logging.Float("weight", weight),
		logging.Bool("bidirectional", bidirectional),
	)
	return true
}

// UpdateEdgeWeight changes the weight of a→b, mirroring onto b→a only when
// that reverse adjacency already exists, then recomputes routing tables.
func (n *Network) UpdateEdgeWeight(a, b model.NodeID, weight float64) bool {
	old, err := n.topo.UpdateEdgeWeight(a, b, weight)
	if err != nil {
		n.fail("Failed to update edge weight", err, logging.Int("from", int(a)), logging.Int("to", int(b)))
		return false
	}
	n.RebuildRoutingTables()
	n.log.Info(context.Background(), "Updated edge weight",
		logging.Category(logging.CategoryEdge),
		logging.Int("from", int(a)),
		logging.Int("to", int(b)),
		logging.Float("old_weight", old),
		logging.Float("new_weight", weight),
	)
	return true
}

// DisconnectNodes removes a→b, mirroring the removal onto b→a when present,
// then recomputes routing tables.
func (n *Network) DisconnectNodes(a, b model.NodeID) bool {
	weight, bidirectional, err := n.topo.DisconnectNodes(a, b)
	if err != nil {
		n.fail("Failed to disconnect routers", err, logging.Int("from", int(a)), logging.Int("to", int(b)))
		return false
	}
	n.RebuildRoutingTables()
	n.log.Info(context.Background(), "Disconnected routers",
		logging.Category(logging.CategoryEdge),
		logging.Int("from", int(a)),
		logging.Int("to", int(b)),
		logging.Float("removed_weight", weight),
		logging.Bool("bidirectional", bidirectional),
	)
	return true
}

// RemoveNode deletes a router, every adjacency toward it, every in-flight
// packet that references it and every stored advertisement it originated.
func (n *Network) RemoveNode(id model.NodeID) bool {
	affected, err := n.topo.RemoveNode(id)
	if err != nil {
		n.fail("Failed to remove router", err, logging.Int("node", int(id)))
		return false
	}
	ctx := context.Background()
	for _, other := range affected {
		n.log.Info(ctx, "Removed edge toward deleted router",
			logging.Category(logging.CategoryEdge),
			logging.Int("from", int(other)),
			logging.Int("to", int(id)),
		)
	}

	purged := n.purgePackets(id)
	for _, node := range n.topo.Nodes() {
		delete(node.LSADB, id)
	}
	n.RebuildRoutingTables()

	n.log.Info(ctx, "Removed router",
		logging.Category(logging.CategoryNode),
		logging.Int("node", int(id)),
		logging.Int("purged_packets", purged),
	)
	return true
}

// SetNodeActive toggles a router's participation in Hello and LSA exchange.
func (n *Network) SetNodeActive(id model.NodeID, active bool) bool {
	if err := n.topo.SetNodeActive(id, active); err != nil {
		n.fail("Failed to change router state", err, logging.Int("node", int(id)))
		return false
	}
	n.log.Info(context.Background(), "Changed router state",
		logging.Category(logging.CategoryNode),
		logging.Int("node", int(id)),
		logging.Bool("active", active),
	)
	return true
}

// EdgeExists reports whether a→b is present.
func (n *Network) EdgeExists(a, b model.NodeID) bool {
	return n.topo.EdgeExists(a, b)
}

// GetReachableNodes returns, in ascending order, every router reachable
// from start through active routers.
func (n *Network) GetReachableNodes(start model.NodeID) []model.NodeID {
	reach := n.topo.Reachable(start)
	out := make([]model.NodeID, 0, len(reach))
	for id := range reach {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// CalculateShortestPaths runs the shortest-path engine over the current
// global topology from source without touching any stored table.
func (n *Network) CalculateShortestPaths(source model.NodeID) model.RoutingTable {
	return ComputeRoutes(n.topo, source)
}

// RoutingTable returns a copy of a router's routing table, or nil when the
// router is unknown.
func (n *Network) RoutingTable(id model.NodeID) model.RoutingTable {
	node := n.topo.Node(id)
	if node == nil {
		return nil
	}
	return node.RoutingTable.Clone()
}

// RebuildRoutingTables recomputes every router's table over the global
// topology. It reports whether any table changed.
func (n *Network) RebuildRoutingTables() bool {
	return n.rebuild("global", func(node *kb.Node) model.RoutingTable {
		return ComputeRoutes(n.topo, node.ID)
	})
}

// rebuildFromLSDB recomputes every router's table from its own link-state
// database.
func (n *Network) rebuildFromLSDB() bool {
	return n.rebuild("lsdb", func(node *kb.Node) model.RoutingTable {
		return ComputeRoutes(NewLSDBGraph(node.ID, node.LSADB), node.ID)
	})
}

func (n *Network) rebuild(source string, compute func(*kb.Node) model.RoutingTable) bool {
	parent := n.phaseCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, span := n.tracer.Start(parent, "rebuild_routing_tables",
		trace.WithAttributes(
			attribute.String("view", source),
			attribute.Int("nodes", n.topo.Len()),
		),
	)
	defer span.End()

	start := time.Now()
	changed := false
	for _, node := range n.topo.Nodes() {
		next := compute(node)
		for dst, route := range next {
			if old, ok := node.RoutingTable[dst]; ok && old.Equal(route) {
				continue
			}
			changed = true
			n.log.Debug(ctx, "Router updated route",
				logging.Category(logging.CategoryRouting),
				logging.Int("node", int(node.ID)),
				logging.Int("destination", int(dst)),
				logging.Int("next_hop", int(route.NextHop)),
				logging.Float("cost", route.Cost),
				logging.Any("path", route.Path),
			)
		}
		if len(next) != len(node.RoutingTable) {
			changed = true
		}
		node.RoutingTable = next
	}
	n.metrics.ObserveRoutingRebuild(time.Since(start))
	span.SetAttributes(attribute.Bool("changed", changed))
	return changed
}

func (n *Network) purgePackets(id model.NodeID) int {
	purged := 0
	hello := n.helloPackets[:0]
	for _, p := range n.helloPackets {
		if p.References(id) {
			purged++
			n.metrics.ObservePacket(model.PacketHello, OutcomePurged)
			continue
		}
		hello = append(hello, p)
	}
	n.helloPackets = hello

	lsa := n.lsaPackets[:0]
	for _, p := range n.lsaPackets {
		if p.References(id) {
			purged++
			n.metrics.ObservePacket(model.PacketLSA, OutcomePurged)
			continue
		}
		lsa = append(lsa, p)
	}
	n.lsaPackets = lsa
	n.reportQueues()
	return purged
}

func (n *Network) fail(msg string, err error, fields ...logging.Field) {
	fields = append(fields, logging.Category(logging.CategoryError), logging.Err(err))
	if errors.Is(err, kb.ErrEdgeExists) || errors.Is(err, kb.ErrEdgeNotFound) {
		n.log.Warn(context.Background(), msg, fields...)
		return
	}
	n.log.Error(context.Background(), msg, fields...)
}

func (n *Network) reportQueues() {
	n.metrics.SetQueuedPackets(model.PacketHello, len(n.helloPackets))
	n.metrics.SetQueuedPackets(model.PacketLSA, len(n.lsaPackets))
}
