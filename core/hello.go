package core

import (
	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

// StartHelloPhase begins neighbor discovery. Both packet queues and all
// link-state bookkeeping are reset, every router is marked active and its
// routing table cleared. Routers then emit Hellos one at a time in
// insertion order, each waiting for the previous router's Hellos to land.
func (n *Network) StartHelloPhase() {
	n.helloPackets = nil
	n.lsaPackets = nil
	n.helloComplete = false
	for _, node := range n.topo.Nodes() {
		node.ResetFloodState()
		node.ClearConfirmations()
		node.RoutingTable = make(model.RoutingTable)
		node.IsActive = true
	}
	n.enterPhase(model.PhaseHello)
	n.reportQueues()

	n.log.Info(n.ctx(), "Hello phase started",
		logging.Category(logging.CategorySimulation),
		logging.Int("nodes", len(n.nodesInOrder)),
	)
}

func (n *Network) processHelloPhase() {
	if n.helloComplete {
		n.finishHelloPhase()
		return
	}
	if len(n.helloPackets) > 0 {
		return
	}

	if n.currentIndex < len(n.nodesInOrder) {
		id := n.nodesInOrder[n.currentIndex]
		n.currentIndex++
		node := n.topo.Node(id)
		switch {
		case node == nil:
			n.log.Debug(n.ctx(), "Skipping removed router", logging.Category(logging.CategoryNode), logging.Int("node", int(id)))
		case !node.IsActive:
			n.log.Debug(n.ctx(), "Skipping inactive router", logging.Category(logging.CategoryNode), logging.Int("node", int(id)))
		default:
			n.emitHellos(id)
		}
	}

	if n.currentIndex >= len(n.nodesInOrder) && len(n.helloPackets) == 0 {
		n.helloComplete = true
		n.log.Info(n.ctx(), "All Hello packets delivered",
			logging.Category(logging.CategorySimulation),
			logging.Any("tick", n.tick),
		)
	}
}

func (n *Network) emitHellos(src model.NodeID) {
	node := n.topo.Node(src)
	for _, target := range node.NeighborIDs() {
		n.helloPackets = append(n.helloPackets, &model.HelloPacket{
			Transit: model.Transit{Duration: n.cfg.HelloTransitTicks},
			Source:  src,
			Target:  target,
		})
		n.stats.HelloSent++
		n.metrics.ObservePacket(model.PacketHello, OutcomeSent)
		n.log.Debug(n.ctx(), "Hello sent",
			logging.Category(logging.CategoryPacket),
			logging.Int("from", int(src)),
			logging.Int("to", int(target)),
		)
	}
}

func (n *Network) deliverHello(p *model.HelloPacket) {
	target := n.topo.Node(p.Target)
	if target == nil {
		n.metrics.ObservePacket(model.PacketHello, OutcomeDropped)
		return
	}
	var srcLinks []model.LinkCost
	if src := n.topo.Node(p.Source); src != nil {
		srcLinks = src.Links()
	}

	target.ProcessHello(p.Source, srcLinks, n.clock.Now())
	n.stats.HelloDelivered++
	n.metrics.ObservePacket(model.PacketHello, OutcomeDelivered)
	n.log.Debug(n.ctx(), "Hello received",
		logging.Category(logging.CategoryPacket),
		logging.Int("from", int(p.Source)),
		logging.Int("to", int(p.Target)),
	)
}

// expireSilentNeighbors prunes adjacencies that went unconfirmed for the
// whole round and whose last refresh is older than the neighbor timeout.
// It must only run once every router has had its turn.
func (n *Network) expireSilentNeighbors() {
	now := n.clock.Now()
	total := 0
	for _, node := range n.topo.Nodes() {
		for _, id := range node.ExpireNeighbors(now, n.cfg.NeighborTimeout) {
			total++
			n.log.Warn(n.ctx(), "Neighbor expired",
				logging.Category(logging.CategoryNode),
				logging.Int("node", int(node.ID)),
				logging.Int("neighbor", int(id)),
			)
		}
	}
	if total > 0 {
		n.metrics.SetTopologyCounts(n.topo.Len(), n.topo.EdgeCount())
	}
}

func (n *Network) finishHelloPhase() {
	n.expireSilentNeighbors()
	n.RebuildRoutingTables()
	n.leavePhase()
	n.log.Info(n.ctx(), "Hello phase complete; routing tables rebuilt",
		logging.Category(logging.CategorySimulation),
		logging.Any("tick", n.tick),
	)
}
