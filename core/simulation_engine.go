package core

import (
	"context"

	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stats accumulates packet counters since the last reset.
type Stats struct {
	Ticks uint64

	HelloSent      int
	HelloDelivered int

	LSASent       int
	LSADelivered  int
	LSAAccepted   int
	LSADuplicates int
	LSADropped    int

	// LSASentByOrigin counts every LSA copy enqueued for each origin.
	LSASentByOrigin map[model.NodeID]int
	// Accepted counts how many times each router accepted each
	// advertisement instance.
	Accepted map[model.NodeID]map[model.LSAKey]int
}

func newStats() Stats {
	return Stats{
		LSASentByOrigin: make(map[model.NodeID]int),
		Accepted:        make(map[model.NodeID]map[model.LSAKey]int),
	}
}

func (s Stats) clone() Stats {
	out := s
	out.LSASentByOrigin = make(map[model.NodeID]int, len(s.LSASentByOrigin))
	for k, v := range s.LSASentByOrigin {
		out.LSASentByOrigin[k] = v
	}
	out.Accepted = make(map[model.NodeID]map[model.LSAKey]int, len(s.Accepted))
	for id, keys := range s.Accepted {
		inner := make(map[model.LSAKey]int, len(keys))
		for k, v := range keys {
			inner[k] = v
		}
		out.Accepted[id] = inner
	}
	return out
}

func (s *Stats) accepted(node model.NodeID, key model.LSAKey) {
	m, ok := s.Accepted[node]
	if !ok {
		m = make(map[model.LSAKey]int)
		s.Accepted[node] = m
	}
	m[key]++
	s.LSAAccepted++
}

// Phase returns the active simulation phase.
func (n *Network) Phase() model.Phase { return n.phase }

// IsRunning reports whether a phase is being driven.
func (n *Network) IsRunning() bool { return n.running }

// IsPaused reports whether ticks are currently suspended.
func (n *Network) IsPaused() bool { return n.paused }

// HelloPhaseComplete reports whether the last Hello phase finished.
func (n *Network) HelloPhaseComplete() bool { return n.helloComplete }

// LSAPhaseComplete reports whether the last LSA phase finished.
func (n *Network) LSAPhaseComplete() bool { return n.lsaComplete }

// Tick returns the number of ticks processed since the last reset.
func (n *Network) Tick() uint64 { return n.tick }

// Stats returns a copy of the packet counters.
func (n *Network) Stats() Stats { return n.stats.clone() }

// HelloPackets returns copies of the in-flight Hello packets.
func (n *Network) HelloPackets() []model.HelloPacket {
	out := make([]model.HelloPacket, 0, len(n.helloPackets))
	for _, p := range n.helloPackets {
		out = append(out, *p)
	}
	return out
}

// LSAPackets returns copies of the in-flight LSA packets.
func (n *Network) LSAPackets() []model.LSAPacket {
	out := make([]model.LSAPacket, 0, len(n.lsaPackets))
	for _, p := range n.lsaPackets {
		cp := *p
		cp.LSA.Links = append([]model.LinkCost(nil), p.LSA.Links...)
		out = append(out, cp)
	}
	return out
}

// Packets returns every in-flight packet, Hello traffic first. The returned
// values are copies.
func (n *Network) Packets() []model.Packet {
	out := make([]model.Packet, 0, len(n.helloPackets)+len(n.lsaPackets))
	for _, p := range n.HelloPackets() {
		out = append(out, &p)
	}
	for _, p := range n.LSAPackets() {
		out = append(out, &p)
	}
	return out
}

// SimulationStep advances the simulation by one tick: the active phase's
// step runs first, then every packet that was already in flight before the
// tick moves one tick closer to its target. Packets emitted during this
// tick's phase step are first advanced on the next tick. It is a no-op when
// the simulation is stopped or paused.
func (n *Network) SimulationStep() {
	if !n.running || n.paused {
		return
	}
	n.tick++
	n.stats.Ticks++
	n.metrics.IncTicks()

	helloInFlight, lsaInFlight := len(n.helloPackets), len(n.lsaPackets)

	switch n.phase {
	case model.PhaseHello:
		n.processHelloPhase()
	case model.PhaseLSA:
		n.processLSAPhase()
	}
	if !n.running {
		return
	}

	n.advancePackets(helloInFlight, lsaInFlight)
	n.reportQueues()
}

// advancePackets moves the first helloCount Hello packets and lsaCount LSA
// packets forward one tick and delivers those that arrive. Copies enqueued
// by deliveries are appended behind the advanced prefix and wait for the
// next tick.
func (n *Network) advancePackets(helloCount, lsaCount int) {
	helloCount = min(helloCount, len(n.helloPackets))
	lsaCount = min(lsaCount, len(n.lsaPackets))

	var arrived []model.Packet
	hello := make([]*model.HelloPacket, 0, len(n.helloPackets))
	for i, p := range n.helloPackets {
		if i < helloCount && p.Advance() {
			arrived = append(arrived, p)
			continue
		}
		hello = append(hello, p)
	}
	n.helloPackets = hello

	lsa := make([]*model.LSAPacket, 0, len(n.lsaPackets))
	for i, p := range n.lsaPackets {
		if i < lsaCount && p.Advance() {
			arrived = append(arrived, p)
			continue
		}
		lsa = append(lsa, p)
	}
	n.lsaPackets = lsa

	for _, p := range arrived {
		n.deliver(p)
	}
}

func (n *Network) deliver(p model.Packet) {
	switch pkt := p.(type) {
	case *model.HelloPacket:
		n.deliverHello(pkt)
	case *model.LSAPacket:
		n.deliverLSA(pkt)
	default:
		n.log.Error(n.ctx(), "Unknown packet type",
			logging.Category(logging.CategoryError),
			logging.String("kind", string(p.Kind())),
		)
	}
}

// StopSimulation halts the tick loop. Topology, partial link-state
// knowledge and queued packets are retained.
func (n *Network) StopSimulation() {
	if !n.running && n.phase == model.PhaseNone {
		return
	}
	from := n.phase
	n.running = false
	n.paused = false
	n.phase = model.PhaseNone
	n.metrics.ObservePhaseTransition(from, model.PhaseNone)
	n.endPhaseSpan(false, "stopped")
	n.log.Info(context.Background(), "Simulation stopped",
		logging.Category(logging.CategorySimulation),
		logging.String("phase", string(from)),
	)
}

// PauseSimulation toggles the paused flag while a phase is running and
// returns the new paused state. Entering the paused state recomputes every
// routing table so that inspection shows consistent data.
func (n *Network) PauseSimulation() bool {
	if !n.running {
		return n.paused
	}
	n.paused = !n.paused
	if n.paused {
		n.RebuildRoutingTables()
		n.log.Info(n.ctx(), "Simulation paused", logging.Category(logging.CategorySimulation))
	} else {
		n.log.Info(n.ctx(), "Simulation resumed", logging.Category(logging.CategorySimulation))
	}
	if n.phaseSpan != nil {
		n.phaseSpan.AddEvent("pause", trace.WithAttributes(attribute.Bool("paused", n.paused)))
	}
	return n.paused
}

// ResetSimulationState returns the network to an idle state: queues are
// emptied, phase bookkeeping and counters are cleared and every router's
// flooding state is dropped. Routing tables are cleared only when asked.
func (n *Network) ResetSimulationState(clearRoutingTables bool) {
	from := n.phase
	n.endPhaseSpan(false, "reset")
	n.helloPackets = nil
	n.lsaPackets = nil
	n.phase = model.PhaseNone
	n.running = false
	n.paused = false
	n.nodesInOrder = nil
	n.currentIndex = 0
	n.helloComplete = false
	n.lsaComplete = false
	n.tick = 0
	n.stats = newStats()
	for _, node := range n.topo.Nodes() {
		node.ResetFloodState()
		node.ClearConfirmations()
		if clearRoutingTables {
			node.RoutingTable = make(model.RoutingTable)
		}
	}
	if from != model.PhaseNone {
		n.metrics.ObservePhaseTransition(from, model.PhaseNone)
	}
	n.reportQueues()
	n.log.Info(context.Background(), "Simulation state reset",
		logging.Category(logging.CategorySimulation),
		logging.Bool("routing_tables_cleared", clearRoutingTables),
	)
}

// Clear removes every router and resets all simulation state.
func (n *Network) Clear() {
	n.ResetSimulationState(true)
	n.topo.Clear()
	n.log.Info(context.Background(), "Network cleared", logging.Category(logging.CategoryNetwork))
}

func (n *Network) enterPhase(p model.Phase) {
	from := n.phase
	n.endPhaseSpan(false, "superseded")

	n.phase = p
	n.running = true
	n.paused = false
	n.nodesInOrder = n.topo.IDs()
	n.currentIndex = 0

	n.phaseCtx, n.phaseSpan = n.tracer.Start(context.Background(), string(p)+"_phase",
		trace.WithAttributes(
			attribute.Int("nodes", len(n.nodesInOrder)),
			attribute.Int("edges", n.topo.EdgeCount()),
		),
	)
	n.metrics.ObservePhaseTransition(from, p)
}

// leavePhase ends the current phase after successful completion.
func (n *Network) leavePhase() {
	from := n.phase
	n.phase = model.PhaseNone
	n.running = false
	n.paused = false
	n.metrics.ObservePhaseTransition(from, model.PhaseNone)
	n.endPhaseSpan(true, "")
}

func (n *Network) endPhaseSpan(ok bool, reason string) {
	if n.phaseSpan == nil {
		return
	}
	n.phaseSpan.SetAttributes(attribute.Int64("ticks", int64(n.tick)))
	if ok {
		n.phaseSpan.SetStatus(codes.Ok, "")
	} else {
		n.phaseSpan.SetAttributes(attribute.String("end_reason", reason))
	}
	n.phaseSpan.End()
	n.phaseSpan = nil
	n.phaseCtx = nil
}

func (n *Network) ctx() context.Context {
	if n.phaseCtx != nil {
		return n.phaseCtx
	}
	return context.Background()
}
