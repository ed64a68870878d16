package core

import (
	"time"

	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/model"
	"github.com/signalsfoundry/linkstate-simulator/timectrl"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultHelloTransitTicks is the Hello link transit time (progress
	// increment 0.01 per tick).
	DefaultHelloTransitTicks = 100
	// DefaultLSATransitTicks is the LSA link transit time (progress
	// increment 0.005 per tick).
	DefaultLSATransitTicks = 200
	// DefaultNeighborTimeout is how long a Hello-confirmed neighbor may go
	// without a refresh before it is pruned.
	DefaultNeighborTimeout = 15 * time.Second
)

// Config holds the tunable timing parameters of the simulation.
type Config struct {
	HelloTransitTicks int
	LSATransitTicks   int
	NeighborTimeout   time.Duration
}

// DefaultConfig returns the standard timing parameters.
func DefaultConfig() Config {
	return Config{
		HelloTransitTicks: DefaultHelloTransitTicks,
		LSATransitTicks:   DefaultLSATransitTicks,
		NeighborTimeout:   DefaultNeighborTimeout,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.HelloTransitTicks <= 0 {
		c.HelloTransitTicks = d.HelloTransitTicks
	}
	if c.LSATransitTicks <= 0 {
		c.LSATransitTicks = d.LSATransitTicks
	}
	if c.NeighborTimeout < 0 {
		c.NeighborTimeout = 0
	}
	return c
}

// PacketOutcome labels what happened to a packet.
type PacketOutcome string

const (
	OutcomeSent      PacketOutcome = "sent"
	OutcomeDelivered PacketOutcome = "delivered"
	OutcomeAccepted  PacketOutcome = "accepted"
	OutcomeDuplicate PacketOutcome = "duplicate"
	OutcomeDropped   PacketOutcome = "dropped"
	OutcomePurged    PacketOutcome = "purged"
)

// MetricsRecorder receives simulation measurements. Implementations must
// tolerate being called from the simulation goroutine on every tick.
type MetricsRecorder interface {
	IncTicks()
	ObservePacket(kind model.PacketKind, outcome PacketOutcome)
	ObservePhaseTransition(from, to model.Phase)
	ObserveRoutingRebuild(d time.Duration)
	SetTopologyCounts(nodes, edges int)
	SetQueuedPackets(kind model.PacketKind, count int)
}

type noopMetrics struct{}

func (noopMetrics) IncTicks()                                       {}
func (noopMetrics) ObservePacket(model.PacketKind, PacketOutcome)   {}
func (noopMetrics) ObservePhaseTransition(model.Phase, model.Phase) {}
func (noopMetrics) ObserveRoutingRebuild(time.Duration)             {}
func (noopMetrics) SetTopologyCounts(int, int)                      {}
func (noopMetrics) SetQueuedPackets(model.PacketKind, int)          {}

// Option customises Network construction.
type Option func(*Network)

// WithConfig overrides the timing parameters.
func WithConfig(cfg Config) Option {
	return func(n *Network) {
		n.cfg = cfg.normalized()
	}
}

// WithClock injects the time source used for adjacency stamps and neighbor
// expiry.
func WithClock(c timectrl.SimClock) Option {
	return func(n *Network) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(n *Network) {
		if l != nil {
			n.log = l
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(n *Network) {
		if m != nil {
			n.metrics = m
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer used for phase spans.
func WithTracer(t trace.Tracer) Option {
	return func(n *Network) {
		if t != nil {
			n.tracer = t
		}
	}
}
