package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/kb"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

// StateVersion is written into every exported snapshot.
const StateVersion = "1.0"

var (
	// ErrInvalidState indicates a snapshot that cannot be applied.
	ErrInvalidState = errors.New("invalid network state")
	// ErrUnknownFormat indicates an unsupported snapshot encoding.
	ErrUnknownFormat = errors.New("unknown snapshot format")
)

// Format selects the snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a name or file extension onto a Format.
func ParseFormat(s string) (Format, error) {
	v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch v {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// NetworkState is the canonical persisted topology: routers in insertion
// order with their outgoing adjacencies, plus the auto-id counter.
type NetworkState struct {
	Nodes      []NodeState `json:"nodes" yaml:"nodes"`
	NextNodeID int         `json:"nextNodeId" yaml:"nextNodeId"`
	Version    string      `json:"version,omitempty" yaml:"version,omitempty"`
}

// NodeState is one router in a NetworkState.
type NodeState struct {
	ID        int             `json:"id" yaml:"id"`
	X         float64         `json:"x" yaml:"x"`
	Y         float64         `json:"y" yaml:"y"`
	Neighbors []NeighborState `json:"neighbors" yaml:"neighbors"`
}

// NeighborState is one outgoing adjacency. IsBidirectional records whether
// the reverse adjacency existed with the same weight at export time.
type NeighborState struct {
	ID              int     `json:"id" yaml:"id"`
	Weight          float64 `json:"weight" yaml:"weight"`
	IsBidirectional bool    `json:"isBidirectional,omitempty" yaml:"isBidirectional,omitempty"`
}

// ExportState snapshots the network topology.
func ExportState(n *Network) NetworkState {
	st := NetworkState{
		Nodes:      make([]NodeState, 0, n.topo.Len()),
		NextNodeID: int(n.topo.NextNodeID()),
		Version:    StateVersion,
	}
	for _, node := range n.topo.Nodes() {
		ns := NodeState{
			ID:        int(node.ID),
			X:         node.Position.X,
			Y:         node.Position.Y,
			Neighbors: make([]NeighborState, 0, len(node.Neighbors)),
		}
		for _, nbID := range node.NeighborIDs() {
			w := node.Neighbors[nbID].Weight
			bidi := false
			if other := n.topo.Node(nbID); other != nil {
				if rev, ok := other.Neighbors[node.ID]; ok && rev.Weight == w {
					bidi = true
				}
			}
			ns.Neighbors = append(ns.Neighbors, NeighborState{ID: int(nbID), Weight: w, IsBidirectional: bidi})
		}
		st.Nodes = append(st.Nodes, ns)
	}
	return st
}

// Validate checks a snapshot for structural problems without applying it.
func (st NetworkState) Validate() error {
	seen := make(map[int]struct{}, len(st.Nodes))
	for _, ns := range st.Nodes {
		if ns.ID <= 0 {
			return fmt.Errorf("%w: node id %d must be positive", ErrInvalidState, ns.ID)
		}
		if _, dup := seen[ns.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidState, ns.ID)
		}
		seen[ns.ID] = struct{}{}
	}
	for _, ns := range st.Nodes {
		listed := make(map[int]struct{}, len(ns.Neighbors))
		for _, nb := range ns.Neighbors {
			if _, ok := seen[nb.ID]; !ok {
				return fmt.Errorf("%w: node %d references unknown neighbor %d", ErrInvalidState, ns.ID, nb.ID)
			}
			if nb.ID == ns.ID {
				return fmt.Errorf("%w: node %d lists itself as a neighbor", ErrInvalidState, ns.ID)
			}
			if _, dup := listed[nb.ID]; dup {
				return fmt.Errorf("%w: node %d lists neighbor %d twice", ErrInvalidState, ns.ID, nb.ID)
			}
			listed[nb.ID] = struct{}{}
			if !(nb.Weight > 0) || math.IsInf(nb.Weight, 0) {
				return fmt.Errorf("%w: edge %d -> %d has weight %v", ErrInvalidState, ns.ID, nb.ID, nb.Weight)
			}
		}
	}
	return nil
}

// ImportState replaces the network's topology with st. Simulation state is
// reset, routers are recreated with their stored ids, every listed directed
// adjacency is restored, and adjacencies flagged bidirectional whose reverse
// entry is absent from the snapshot are mirrored. Routing tables are rebuilt
// from the restored topology.
//
// The snapshot is first applied to a scratch topology; on any error the
// network is left untouched.
func ImportState(n *Network, st NetworkState) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := applyState(kb.NewTopology(n.clock), st); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	n.Clear()
	if err := applyState(n.topo, st); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	n.RebuildRoutingTables()

	n.log.Info(n.ctx(), "Network state imported",
		logging.Category(logging.CategoryNetwork),
		logging.Int("nodes", n.topo.Len()),
		logging.Int("edges", n.topo.EdgeCount()),
		logging.Int("next_node_id", int(n.topo.NextNodeID())),
	)
	return nil
}

// applyState builds st into an empty topology.
func applyState(topo *kb.Topology, st NetworkState) error {
	for _, ns := range st.Nodes {
		topo.AddNode(model.Position{X: ns.X, Y: ns.Y}, model.NodeID(ns.ID))
	}
	for _, ns := range st.Nodes {
		for _, nb := range ns.Neighbors {
			if err := topo.ConnectNodes(model.NodeID(ns.ID), model.NodeID(nb.ID), nb.Weight, false); err != nil {
				return fmt.Errorf("restore edge %d -> %d: %w", ns.ID, nb.ID, err)
			}
		}
	}
	for _, ns := range st.Nodes {
		for _, nb := range ns.Neighbors {
			if !nb.IsBidirectional || topo.EdgeExists(model.NodeID(nb.ID), model.NodeID(ns.ID)) {
				continue
			}
			if err := topo.ConnectNodes(model.NodeID(nb.ID), model.NodeID(ns.ID), nb.Weight, false); err != nil {
				return fmt.Errorf("mirror edge %d -> %d: %w", nb.ID, ns.ID, err)
			}
		}
	}
	topo.SetNextNodeID(model.NodeID(st.NextNodeID))
	return nil
}

// DecodeState parses a snapshot from r.
func DecodeState(r io.Reader, format Format) (NetworkState, error) {
	var st NetworkState
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&st); err != nil {
			return NetworkState{}, fmt.Errorf("decode json state: %w", err)
		}
	case FormatYAML:
		data, err := io.ReadAll(r)
		if err != nil {
			return NetworkState{}, fmt.Errorf("read yaml state: %w", err)
		}
		if err := yaml.Unmarshal(data, &st); err != nil {
			return NetworkState{}, fmt.Errorf("decode yaml state: %w", err)
		}
	default:
		return NetworkState{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return st, nil
}

// EncodeState writes st to w.
func EncodeState(w io.Writer, st NetworkState, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("encode json state: %w", err)
		}
	case FormatYAML:
		data, err := yaml.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode yaml state: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write yaml state: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return nil
}

// LoadScenario decodes a snapshot from r and imports it into n.
func LoadScenario(n *Network, r io.Reader, format Format) error {
	if n == nil {
		return fmt.Errorf("LoadScenario: network is nil")
	}
	st, err := DecodeState(r, format)
	if err != nil {
		return fmt.Errorf("LoadScenario: %w", err)
	}
	if err := ImportState(n, st); err != nil {
		return fmt.Errorf("LoadScenario: %w", err)
	}
	return nil
}

// ExportScenario writes n's topology to w.
func ExportScenario(n *Network, w io.Writer, format Format) error {
	if n == nil {
		return fmt.Errorf("ExportScenario: network is nil")
	}
	return EncodeState(w, ExportState(n), format)
}

// SortedNodeIDs returns the snapshot's router ids in ascending order.
func (st NetworkState) SortedNodeIDs() []int {
	ids := make([]int, 0, len(st.Nodes))
	for _, ns := range st.Nodes {
		ids = append(ids, ns.ID)
	}
	slices.Sort(ids)
	return ids
}
