package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/linkstate-simulator/core"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

// SimCollector bundles Prometheus metrics for the routing simulation. It
// implements core.MetricsRecorder so a Network can drive it directly.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Ticks            prometheus.Counter
	Packets          *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
	RoutingRebuilds  prometheus.Histogram

	TopologyNodes prometheus.Gauge
	TopologyEdges prometheus.Gauge
	QueuedPackets *prometheus.GaugeVec
}

var _ core.MetricsRecorder = (*SimCollector)(nil)

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "linkstate_sim_ticks_total",
		Help: "Total number of simulation ticks processed.",
	}), "linkstate_sim_ticks_total")
	if err != nil {
		return nil, err
	}

	packets, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linkstate_sim_packets_total",
		Help: "Simulated packets, labeled by kind (hello, lsa) and outcome.",
	}, []string{"kind", "outcome"}), "linkstate_sim_packets_total")
	if err != nil {
		return nil, err
	}

	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linkstate_sim_phase_transitions_total",
		Help: "Simulation phase transitions, labeled by source and target phase.",
	}, []string{"from", "to"}), "linkstate_sim_phase_transitions_total")
	if err != nil {
		return nil, err
	}

	rebuilds, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkstate_sim_routing_rebuild_duration_seconds",
		Help:    "Duration of full routing-table recomputations across all routers.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "linkstate_sim_routing_rebuild_duration_seconds")
	if err != nil {
		return nil, err
	}

	nodes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "linkstate_sim_nodes",
		Help: "Current number of routers in the topology.",
	}), "linkstate_sim_nodes")
	if err != nil {
		return nil, err
	}
	edges, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "linkstate_sim_edges",
		Help: "Current number of directed adjacencies in the topology.",
	}), "linkstate_sim_edges")
	if err != nil {
		return nil, err
	}
	queued, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "linkstate_sim_packets_in_flight",
		Help: "Packets currently in flight, labeled by kind.",
	}, []string{"kind"}), "linkstate_sim_packets_in_flight")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		Ticks:            ticks,
		Packets:          packets,
		PhaseTransitions: transitions,
		RoutingRebuilds:  rebuilds,
		TopologyNodes:    nodes,
		TopologyEdges:    edges,
		QueuedPackets:    queued,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *SimCollector) IncTicks() {
	if c == nil || c.Ticks == nil {
		return
	}
	c.Ticks.Inc()
}

func (c *SimCollector) ObservePacket(kind model.PacketKind, outcome core.PacketOutcome) {
	if c == nil || c.Packets == nil {
		return
	}
	c.Packets.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (c *SimCollector) ObservePhaseTransition(from, to model.Phase) {
	if c == nil || c.PhaseTransitions == nil {
		return
	}
	c.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *SimCollector) ObserveRoutingRebuild(d time.Duration) {
	if c == nil || c.RoutingRebuilds == nil {
		return
	}
	c.RoutingRebuilds.Observe(d.Seconds())
}

// SetTopologyCounts updates the router and adjacency gauges.
func (c *SimCollector) SetTopologyCounts(nodes, edges int) {
	if c == nil {
		return
	}
	if c.TopologyNodes != nil {
		c.TopologyNodes.Set(float64(nodes))
	}
	if c.TopologyEdges != nil {
		c.TopologyEdges.Set(float64(edges))
	}
}

func (c *SimCollector) SetQueuedPackets(kind model.PacketKind, count int) {
	if c == nil || c.QueuedPackets == nil {
		return
	}
	c.QueuedPackets.WithLabelValues(string(kind)).Set(float64(count))
}

// register adds collector to reg. When an equivalent collector of the same
// type is already registered, that one is returned instead so repeated
// construction against one registry is harmless.
func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		var zero T
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return zero, err
	}
	return collector, nil
}
