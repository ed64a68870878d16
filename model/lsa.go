package model

import (
	"fmt"
	"time"
)

// LSA is a link-state advertisement: one router's view of its own links.
type LSA struct {
	Origin    NodeID
	Sequence  uint64
	Links     []LinkCost
	Timestamp time.Time
}

// Key returns the flood identity of the advertisement.
func (l LSA) Key() LSAKey {
	return LSAKey{Origin: l.Origin, Sequence: l.Sequence}
}

// LSAKey identifies one advertisement instance for duplicate suppression.
type LSAKey struct {
	Origin   NodeID
	Sequence uint64
}

func (k LSAKey) String() string {
	return fmt.Sprintf("%d-%d", k.Origin, k.Sequence)
}
