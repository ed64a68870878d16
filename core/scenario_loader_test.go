package core

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/linkstate-simulator/model"
)

const squareJSON = `
{
  "nodes": [
    {"id": 1, "x": 100, "y": 100, "neighbors": [{"id": 2, "weight": 5}, {"id": 3, "weight": 7}]},
    {"id": 2, "x": 300, "y": 100, "neighbors": [{"id": 1, "weight": 5}, {"id": 4, "weight": 3}]},
    {"id": 3, "x": 100, "y": 300, "neighbors": [{"id": 1, "weight": 7}, {"id": 4, "weight": 4}]},
    {"id": 4, "x": 300, "y": 300, "neighbors": [{"id": 2, "weight": 3}, {"id": 3, "weight": 4}]}
  ],
  "nextNodeId": 5
}
`

func TestLoadScenario_JSON(t *testing.T) {
	n := NewNetwork()
	require.NoError(t, LoadScenario(n, strings.NewReader(squareJSON), FormatJSON))

	require.Equal(t, 4, n.Topology().Len())
	require.Equal(t, 8, n.Topology().EdgeCount())
	require.Equal(t, model.NodeID(5), n.NextNodeID())
	require.Equal(t, model.Position{X: 300, Y: 300}, n.Node(4).Position)

	r := n.RoutingTable(1)[4]
	require.Equal(t, 8.0, r.Cost)
	require.Equal(t, []model.NodeID{1, 2, 4}, r.Path)
}

func TestLoadScenario_YAMLMirrorsBidirectional(t *testing.T) {
	doc := `
nodes:
  - id: 1
    x: 0
    y: 0
    neighbors:
      - id: 2
        weight: 2
        isBidirectional: true
  - id: 2
    x: 100
    y: 0
    neighbors: []
  - id: 7
    x: 200
    y: 0
    neighbors:
      - id: 2
        weight: 4
nextNodeId: 3
version: "1.0"
`
	n := NewNetwork()
	require.NoError(t, LoadScenario(n, strings.NewReader(doc), FormatYAML))

	require.True(t, n.EdgeExists(2, 1), "bidirectional entry should be mirrored")
	require.True(t, n.EdgeExists(7, 2))
	require.False(t, n.EdgeExists(2, 7), "one-way entry must stay one-way")
	// The counter never lands on an id already in use.
	require.Equal(t, model.NodeID(8), n.NextNodeID())
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			src := buildSquare(t)
			src.AddNode(700, 700, 9)
			src.ConnectNodes(9, 4, 6, false)
			src.UpdateEdgeWeight(9, 4, 2)

			var buf bytes.Buffer
			require.NoError(t, ExportScenario(src, &buf, format))

			dst := NewNetwork()
			dst.AddNode(0, 0, 0) // replaced by the import
			require.NoError(t, LoadScenario(dst, &buf, format))

			require.Equal(t, ExportState(src), ExportState(dst))
			require.Equal(t, src.Topology().IDs(), dst.Topology().IDs())
			require.False(t, dst.EdgeExists(4, 9))
			for _, id := range src.Topology().IDs() {
				require.Equal(t, src.RoutingTable(id), dst.RoutingTable(id), "router %d", id)
			}
		})
	}
}

func TestImportState_RejectsInvalid(t *testing.T) {
	cases := map[string]NetworkState{
		"non-positive id": {Nodes: []NodeState{{ID: 0}}},
		"duplicate id":    {Nodes: []NodeState{{ID: 1}, {ID: 1}}},
		"unknown neighbor": {Nodes: []NodeState{
			{ID: 1, Neighbors: []NeighborState{{ID: 2, Weight: 1}}},
		}},
		"self loop": {Nodes: []NodeState{
			{ID: 1, Neighbors: []NeighborState{{ID: 1, Weight: 1}}},
		}},
		"zero weight": {Nodes: []NodeState{
			{ID: 1, Neighbors: []NeighborState{{ID: 2, Weight: 0}}},
			{ID: 2},
		}},
		"infinite weight": {Nodes: []NodeState{
			{ID: 1, Neighbors: []NeighborState{{ID: 2, Weight: math.Inf(1)}}},
			{ID: 2},
		}},
		"repeated neighbor": {Nodes: []NodeState{
			{ID: 1, Neighbors: []NeighborState{{ID: 2, Weight: 1}, {ID: 2, Weight: 3}}},
			{ID: 2},
		}},
	}
	for name, st := range cases {
		t.Run(name, func(t *testing.T) {
			n := buildSquare(t)
			err := ImportState(n, st)
			require.ErrorIs(t, err, ErrInvalidState)
			require.Equal(t, 4, n.Topology().Len(), "failed import must leave the network untouched")
		})
	}
}

func TestLoadScenario_RejectedSnapshotLeavesNetworkIntact(t *testing.T) {
	docs := map[string]string{
		"repeated neighbor": `
nodes:
  - id: 1
    neighbors:
      - {id: 2, weight: 1}
      - {id: 2, weight: 1}
  - id: 2
`,
		"infinite weight": `
nodes:
  - id: 1
    neighbors:
      - {id: 2, weight: .inf}
  - id: 2
`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			n := buildSquare(t)
			before := ExportState(n)

			err := LoadScenario(n, strings.NewReader(doc), FormatYAML)
			require.ErrorIs(t, err, ErrInvalidState)
			require.Equal(t, before, ExportState(n))
			require.Equal(t, 8, n.Topology().EdgeCount())
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	_, err = ParseFormat("toml")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = DecodeState(strings.NewReader("{}"), Format("xml"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}
