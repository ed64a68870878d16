package model

import "time"

// NodeID identifies a router. IDs are positive and unique within a network.
type NodeID int

// Position is the 2D canvas location of a router. It is display metadata
// only; no routing algorithm reads it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Neighbor is one directed adjacency entry held by a router.
type Neighbor struct {
	Weight float64

	// LastUpdate is the simulated time of the last Hello received from this
	// neighbor. The zero value means the adjacency was configured but has
	// never been refreshed by a Hello, and such entries never expire.
	LastUpdate time.Time

	// Confirmed is set when a Hello from this neighbor was delivered during
	// the current discovery round.
	Confirmed bool
}

// LinkCost is one entry of an advertised adjacency list.
type LinkCost struct {
	ID   NodeID  `json:"id" yaml:"id"`
	Cost float64 `json:"cost" yaml:"cost"`
}
