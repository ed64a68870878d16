package core

import (
	"math"
	"slices"

	"github.com/signalsfoundry/linkstate-simulator/model"
)

// Graph is the read-only view the shortest-path engine runs over.
type Graph interface {
	// IDs lists every vertex.
	IDs() []model.NodeID
	// ForEachNeighbor visits the outgoing edges of id.
	ForEachNeighbor(id model.NodeID, fn func(nb model.NodeID, cost float64))
}

// ComputeRoutes runs Dijkstra from source and returns its routing table.
//
// Minimum extraction is a linear scan over the unvisited set in ascending id
// order, so among equal tentative distances the lowest id is settled first.
// Relaxation uses a strict comparison. Unreachable destinations get no
// entry, and the source never appears in its own table.
func ComputeRoutes(g Graph, source model.NodeID) model.RoutingTable {
	table := make(model.RoutingTable)

	ids := slices.Clone(g.IDs())
	slices.Sort(ids)
	ids = slices.Compact(ids)

	dist := make(map[model.NodeID]float64, len(ids))
	prev := make(map[model.NodeID]model.NodeID, len(ids))
	unvisited := make(map[model.NodeID]struct{}, len(ids))
	for _, id := range ids {
		dist[id] = math.Inf(1)
		unvisited[id] = struct{}{}
	}
	if _, ok := dist[source]; !ok {
		return table
	}
	dist[source] = 0

	for len(unvisited) > 0 {
		var current model.NodeID
		best := math.Inf(1)
		found := false
		for _, id := range ids {
			if _, ok := unvisited[id]; !ok {
				continue
			}
			if dist[id] < best {
				best = dist[id]
				current = id
				found = true
			}
		}
		if !found {
			break
		}
		delete(unvisited, current)

		g.ForEachNeighbor(current, func(nb model.NodeID, cost float64) {
			if _, ok := unvisited[nb]; !ok {
				return
			}
			if alt := dist[current] + cost; alt < dist[nb] {
				dist[nb] = alt
				prev[nb] = current
			}
		})
	}

	for _, id := range ids {
		if id == source {
			continue
		}
		path, ok := tracePath(prev, source, id)
		if !ok {
			continue
		}
		table[id] = model.Route{
			Cost:    dist[id],
			Path:    path,
			NextHop: path[1],
		}
	}
	return table
}

// tracePath walks the back-pointer chain from dst to src. It reports false
// when the chain breaks before reaching src.
func tracePath(prev map[model.NodeID]model.NodeID, src, dst model.NodeID) ([]model.NodeID, bool) {
	path := []model.NodeID{dst}
	for cur := dst; cur != src; {
		p, ok := prev[cur]
		if !ok {
			return nil, false
		}
		path = append(path, p)
		cur = p
	}
	slices.Reverse(path)
	return path, true
}

// LSDBGraph is one router's view of the network assembled from its
// link-state database. Vertices are the router itself plus every origin it
// holds an advertisement for; advertised links toward routers without an
// advertisement are ignored.
type LSDBGraph struct {
	self  model.NodeID
	links map[model.NodeID][]model.LinkCost
}

// NewLSDBGraph builds the view for self from db.
func NewLSDBGraph(self model.NodeID, db map[model.NodeID]model.LSA) *LSDBGraph {
	g := &LSDBGraph{
		self:  self,
		links: make(map[model.NodeID][]model.LinkCost, len(db)+1),
	}
	for origin, lsa := range db {
		links := slices.Clone(lsa.Links)
		slices.SortFunc(links, func(a, b model.LinkCost) int { return int(a.ID) - int(b.ID) })
		g.links[origin] = links
	}
	if _, ok := g.links[self]; !ok {
		g.links[self] = nil
	}
	return g
}

// IDs implements Graph.
func (g *LSDBGraph) IDs() []model.NodeID {
	ids := make([]model.NodeID, 0, len(g.links))
	for id := range g.links {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ForEachNeighbor implements Graph.
func (g *LSDBGraph) ForEachNeighbor(id model.NodeID, fn func(nb model.NodeID, cost float64)) {
	for _, l := range g.links[id] {
		if _, known := g.links[l.ID]; !known || l.ID == id {
			continue
		}
		fn(l.ID, l.Cost)
	}
}
