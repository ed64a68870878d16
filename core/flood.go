package core

import (
	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/kb"
	"github.com/signalsfoundry/linkstate-simulator/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartLSAPhase begins link-state flooding. Both packet queues are emptied,
// every router's database, seen set and flood record are reset, and its own
// advertisement (sequence 1) is installed locally. Origins are then flooded
// one wave at a time in insertion order; the first wave is enqueued
// immediately.
func (n *Network) StartLSAPhase() {
	n.helloPackets = nil
	n.lsaPackets = nil
	n.lsaComplete = false

	now := n.clock.Now()
	for _, node := range n.topo.Nodes() {
		node.ResetFloodState()
		node.IsActive = true
		node.AcceptLSA(node.SelfLSA(1, now))
	}
	n.enterPhase(model.PhaseLSA)

	n.log.Info(n.ctx(), "LSA phase started",
		logging.Category(logging.CategorySimulation),
		logging.Int("origins", len(n.nodesInOrder)),
	)
	n.openWave()
	n.reportQueues()
}

// openWave floods the origin at currentIndex, skipping origins that were
// removed or deactivated. It marks the phase complete once every origin
// has been processed.
func (n *Network) openWave() {
	for n.currentIndex < len(n.nodesInOrder) {
		id := n.nodesInOrder[n.currentIndex]
		node := n.topo.Node(id)
		if node != nil && node.IsActive {
			n.originate(node.ID)
			return
		}
		n.log.Debug(n.ctx(), "Skipping origin",
			logging.Category(logging.CategorySimulation),
			logging.Int("origin", int(id)),
		)
		n.currentIndex++
	}
	n.lsaComplete = true
	n.log.Info(n.ctx(), "All LSA waves flooded",
		logging.Category(logging.CategorySimulation),
		logging.Any("tick", n.tick),
	)
}

// originate enqueues one copy of origin's stored advertisement toward each
// of its neighbors.
func (n *Network) originate(origin model.NodeID) {
	node := n.topo.Node(origin)
	lsa, ok := node.LSADB[origin]
	if !ok {
		lsa = node.SelfLSA(1, n.clock.Now())
		node.AcceptLSA(lsa)
	}
	if n.phaseSpan != nil {
		n.phaseSpan.AddEvent("wave", trace.WithAttributes(
			attribute.Int("origin", int(origin)),
			attribute.Int64("sequence", int64(lsa.Sequence)),
		))
	}
	n.log.Info(n.ctx(), "Flooding LSA",
		logging.Category(logging.CategoryRouting),
		logging.Int("origin", int(origin)),
		logging.String("lsa", lsa.Key().String()),
		logging.Int("links", len(lsa.Links)),
	)
	for _, nb := range node.NeighborIDs() {
		n.sendLSA(node, nb, lsa)
	}
}

func (n *Network) sendLSA(from *kb.Node, target model.NodeID, lsa model.LSA) {
	from.MarkHolder(lsa.Origin, target)
	n.lsaPackets = append(n.lsaPackets, &model.LSAPacket{
		Transit:      model.Transit{Duration: n.cfg.LSATransitTicks},
		LSA:          lsa,
		Target:       target,
		ReceivedFrom: from.ID,
	})
	n.stats.LSASent++
	n.stats.LSASentByOrigin[lsa.Origin]++
	n.metrics.ObservePacket(model.PacketLSA, OutcomeSent)
	n.log.Debug(n.ctx(), "LSA sent",
		logging.Category(logging.CategoryPacket),
		logging.Int("from", int(from.ID)),
		logging.Int("to", int(target)),
		logging.String("lsa", lsa.Key().String()),
	)
}

func (n *Network) processLSAPhase() {
	if n.lsaComplete {
		n.finishLSAPhase()
		return
	}
	if len(n.lsaPackets) > 0 {
		return
	}

	// The current wave drained during the previous tick's packet processing;
	// it is judged here, one tick later, and the next origin emits now.
	if n.currentIndex < len(n.nodesInOrder) {
		origin := n.nodesInOrder[n.currentIndex]
		missing := n.waveMissing(origin)
		if len(missing) == 0 {
			n.log.Info(n.ctx(), "LSA wave complete",
				logging.Category(logging.CategoryRouting),
				logging.Int("origin", int(origin)),
			)
		} else {
			n.log.Warn(n.ctx(), "LSA wave drained without full coverage",
				logging.Category(logging.CategoryRouting),
				logging.Int("origin", int(origin)),
				logging.Any("missing", missing),
			)
		}
		n.currentIndex++
	}
	n.openWave()
}

// waveMissing returns the active routers reachable from origin that do not
// yet hold an advertisement from origin.
func (n *Network) waveMissing(origin model.NodeID) []model.NodeID {
	var missing []model.NodeID
	for _, id := range n.GetReachableNodes(origin) {
		node := n.topo.Node(id)
		if node == nil || !node.IsActive {
			continue
		}
		if _, ok := node.LSADB[origin]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func (n *Network) deliverLSA(p *model.LSAPacket) {
	target := n.topo.Node(p.Target)
	if target == nil || !target.IsActive {
		n.stats.LSADropped++
		n.metrics.ObservePacket(model.PacketLSA, OutcomeDropped)
		n.log.Debug(n.ctx(), "LSA dropped at unavailable router",
			logging.Category(logging.CategoryPacket),
			logging.Int("to", int(p.Target)),
			logging.String("lsa", p.LSA.Key().String()),
		)
		return
	}
	n.stats.LSADelivered++
	n.metrics.ObservePacket(model.PacketLSA, OutcomeDelivered)
	target.MarkHolder(p.LSA.Origin, p.ReceivedFrom)

	key := p.LSA.Key()
	if !target.AcceptLSA(p.LSA) {
		n.stats.LSADuplicates++
		n.metrics.ObservePacket(model.PacketLSA, OutcomeDuplicate)
		n.log.Debug(n.ctx(), "Duplicate LSA suppressed",
			logging.Category(logging.CategoryPacket),
			logging.Int("at", int(target.ID)),
			logging.String("lsa", key.String()),
		)
		return
	}
	n.stats.accepted(target.ID, key)
	n.metrics.ObservePacket(model.PacketLSA, OutcomeAccepted)
	n.log.Debug(n.ctx(), "LSA accepted",
		logging.Category(logging.CategoryRouting),
		logging.Int("at", int(target.ID)),
		logging.Int("from", int(p.ReceivedFrom)),
		logging.String("lsa", key.String()),
	)

	for _, nb := range target.NeighborIDs() {
		if nb == p.ReceivedFrom || nb == p.LSA.Origin || target.KnownHolder(p.LSA.Origin, nb) {
			continue
		}
		n.sendLSA(target, nb, p.LSA)
	}
}

func (n *Network) finishLSAPhase() {
	n.rebuildFromLSDB()
	n.leavePhase()
	n.log.Info(n.ctx(), "LSA phase complete; routing tables rebuilt from link-state databases",
		logging.Category(logging.CategorySimulation),
		logging.Any("tick", n.tick),
	)
}
