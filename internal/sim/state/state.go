// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/signalsfoundry/linkstate-simulator/core"
	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

// ErrTickLimit indicates a phase did not finish within the allowed ticks.
var ErrTickLimit = errors.New("tick limit reached before phase completed")

// SimState serialises access to a core.Network so that a frame driver, a
// metrics scraper and interactive callers can share one simulation. Every
// mutator and every tick holds the write lock for the whole call.
type SimState struct {
	// mu guards net. core.Network has no internal synchronisation.
	mu sync.RWMutex

	net *core.Network

	runID string
	log   logging.Logger
}

// NodeSnapshot is a read-only copy of one router's observable state.
type NodeSnapshot struct {
	ID           model.NodeID
	Position     model.Position
	Neighbors    map[model.NodeID]model.Neighbor
	IsActive     bool
	LSASeq       uint64
	LSADBSize    int
	RoutingTable model.RoutingTable
}

// SimSnapshot captures a consistent view of the simulation for rendering.
type SimSnapshot struct {
	Phase              model.Phase
	Running            bool
	Paused             bool
	HelloPhaseComplete bool
	LSAPhaseComplete   bool
	Tick               uint64
	Nodes              []NodeSnapshot
	HelloPackets       []model.HelloPacket
	LSAPackets         []model.LSAPacket
}

// NewSimState wraps net. A fresh run id is attached to the logger.
func NewSimState(ctx context.Context, net *core.Network, log logging.Logger) *SimState {
	if log == nil {
		log = logging.Noop()
	}
	if net == nil {
		net = core.NewNetwork(core.WithLogger(log))
	}
	ctx, runLog := logging.WithRunLogger(ctx, log)
	s := &SimState{
		net:   net,
		runID: logging.RunIDFromContext(ctx),
		log:   runLog,
	}
	runLog.Debug(ctx, "simulation session created",
		logging.Category(logging.CategorySimulation),
		logging.Int("nodes", net.Topology().Len()),
	)
	return s
}

// RunID identifies this session in logs.
func (s *SimState) RunID() string {
	return s.runID
}

// WithReadLock executes fn while holding the read lock. fn must not mutate
// the network nor call other SimState methods.
func (s *SimState) WithReadLock(fn func(*core.Network) error) error {
	if fn == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.net)
}

// WithWriteLock executes fn while holding the write lock.
func (s *SimState) WithWriteLock(fn func(*core.Network) error) error {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.net)
}

// Step runs one simulation tick and reports whether a phase is still running.
func (s *SimState) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.net.SimulationStep()
	return s.net.IsRunning()
}

// OnFrame adapts Step to a timectrl.TimeController listener.
func (s *SimState) OnFrame(time.Time) {
	s.Step()
}

// RunPhase starts a phase with start and ticks it until it finishes, ctx is
// cancelled or maxTicks ticks have elapsed. The lock is released between
// ticks so readers can interleave. It returns the number of ticks taken.
func (s *SimState) RunPhase(ctx context.Context, start func(*core.Network), maxTicks int) (int, error) {
	s.mu.Lock()
	start(s.net)
	phase := s.net.Phase()
	s.mu.Unlock()

	for ticks := 0; ; ticks++ {
		if err := ctx.Err(); err != nil {
			return ticks, err
		}
		if !s.Step() {
			s.log.Info(ctx, "phase finished",
				logging.Category(logging.CategorySimulation),
				logging.String("phase", string(phase)),
				logging.Int("ticks", ticks+1),
			)
			return ticks + 1, nil
		}
		if maxTicks > 0 && ticks+1 >= maxTicks {
			return ticks + 1, fmt.Errorf("%w: %s after %d ticks", ErrTickLimit, phase, maxTicks)
		}
	}
}

// Converge runs a full Hello phase followed by a full LSA phase.
func (s *SimState) Converge(ctx context.Context, maxTicksPerPhase int) error {
	if _, err := s.RunPhase(ctx, (*core.Network).StartHelloPhase, maxTicksPerPhase); err != nil {
		return fmt.Errorf("hello phase: %w", err)
	}
	if _, err := s.RunPhase(ctx, (*core.Network).StartLSAPhase, maxTicksPerPhase); err != nil {
		return fmt.Errorf("lsa phase: %w", err)
	}
	return nil
}

// Snapshot returns a coherent copy of the current simulation state.
func (s *SimState) Snapshot() *SimSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &SimSnapshot{
		Phase:              s.net.Phase(),
		Running:            s.net.IsRunning(),
		Paused:             s.net.IsPaused(),
		HelloPhaseComplete: s.net.HelloPhaseComplete(),
		LSAPhaseComplete:   s.net.LSAPhaseComplete(),
		Tick:               s.net.Tick(),
		HelloPackets:       s.net.HelloPackets(),
		LSAPackets:         s.net.LSAPackets(),
	}
	for _, node := range s.net.Topology().Nodes() {
		nbs := make(map[model.NodeID]model.Neighbor, len(node.Neighbors))
		for id, nb := range node.Neighbors {
			nbs[id] = *nb
		}
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			ID:           node.ID,
			Position:     node.Position,
			Neighbors:    nbs,
			IsActive:     node.IsActive,
			LSASeq:       node.LSASeq,
			LSADBSize:    len(node.LSADB),
			RoutingTable: node.RoutingTable.Clone(),
		})
	}
	return snap
}

// RoutingTables returns a copy of every router's routing table.
func (s *SimState) RoutingTables() map[model.NodeID]model.RoutingTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.NodeID]model.RoutingTable, s.net.Topology().Len())
	for _, id := range s.net.Topology().IDs() {
		out[id] = s.net.RoutingTable(id)
	}
	return out
}

// Stats returns the network's packet counters.
func (s *SimState) Stats() core.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.net.Stats()
}

func (s *SimState) AddNode(x, y float64, explicitID model.NodeID) model.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.AddNode(x, y, explicitID)
}

func (s *SimState) RemoveNode(id model.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.RemoveNode(id)
}

func (s *SimState) ConnectNodes(a, b model.NodeID, weight float64, bidirectional bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.ConnectNodes(a, b, weight, bidirectional)
}

func (s *SimState) UpdateEdgeWeight(a, b model.NodeID, weight float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.UpdateEdgeWeight(a, b, weight)
}

func (s *SimState) DisconnectNodes(a, b model.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.DisconnectNodes(a, b)
}

func (s *SimState) SetNodeActive(id model.NodeID, active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.SetNodeActive(id, active)
}

func (s *SimState) StartHelloPhase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.net.StartHelloPhase()
}

func (s *SimState) StartLSAPhase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.net.StartLSAPhase()
}

func (s *SimState) StopSimulation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.net.StopSimulation()
}

// PauseSimulation toggles pause and returns the new paused state.
func (s *SimState) PauseSimulation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.PauseSimulation()
}

func (s *SimState) ResetSimulationState(clearRoutingTables bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.net.ResetSimulationState(clearRoutingTables)
}

// Load replaces the topology with a snapshot read from r.
func (s *SimState) Load(ctx context.Context, r io.Reader, format core.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := core.LoadScenario(s.net, r, format); err != nil {
		s.log.Error(ctx, "scenario load failed",
			logging.Category(logging.CategoryError),
			logging.Err(err),
		)
		return err
	}
	s.log.Info(ctx, "scenario loaded",
		logging.Category(logging.CategoryNetwork),
		logging.Int("nodes", s.net.Topology().Len()),
		logging.Int("edges", s.net.Topology().EdgeCount()),
	)
	return nil
}

// Export writes the current topology to w.
func (s *SimState) Export(w io.Writer, format core.Format) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.ExportScenario(s.net, w, format)
}

// Clear removes every router and resets the simulation.
func (s *SimState) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.net.Topology().Len()
	edges := s.net.Topology().EdgeCount()
	s.net.Clear()
	s.log.Debug(ctx, "session cleared",
		logging.Category(logging.CategoryNetwork),
		logging.Int("nodes", nodes),
		logging.Int("edges", edges),
	)
}

// NeighborsOf returns a copy of a router's adjacency map, or nil when the
// router is unknown.
func (s *SimState) NeighborsOf(id model.NodeID) map[model.NodeID]model.Neighbor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node := s.net.Node(id)
	if node == nil {
		return nil
	}
	out := make(map[model.NodeID]model.Neighbor, len(node.Neighbors))
	for k, v := range node.Neighbors {
		out[k] = *v
	}
	return out
}
