package model

import "slices"

// Route is a single routing-table entry. Path starts at the owning router
// and ends at the destination.
type Route struct {
	Cost    float64
	Path    []NodeID
	NextHop NodeID
}

// Equal reports whether two routes carry the same cost, next hop and path.
func (r Route) Equal(o Route) bool {
	return r.Cost == o.Cost && r.NextHop == o.NextHop && slices.Equal(r.Path, o.Path)
}

// RoutingTable maps a destination to its best known route. A missing key
// means the destination is unreachable; entries with infinite cost are
// never stored.
type RoutingTable map[NodeID]Route

// Clone returns a deep copy of the table.
func (t RoutingTable) Clone() RoutingTable {
	out := make(RoutingTable, len(t))
	for dst, r := range t {
		r.Path = slices.Clone(r.Path)
		out[dst] = r
	}
	return out
}
