// Package dedupe tracks flood identifiers a drone has already relayed, so a
// FloodRequest looping back through the mesh is recognized on its second
// visit instead of being fanned out again forever.
//
// Unlike the teacher's bounded circular-buffer packet dedup (core/dedupe in
// the reference MeshCore implementation), this set grows without eviction:
// spec.md §8 states the invariant "seen_floods only grows while Active" as
// a testable property, which a bounded/evicting table would violate. The
// key shape — (flood_id, initiator_id) rather than (flood_id, session_id) —
// follows spec.md §9's own design note: two different initiators may
// legitimately reuse a flood_id, and a retried flood from the same
// initiator must still be suppressed.
package dedupe

import "github.com/relaymesh/dronecore/core/mesh"

// FloodKey identifies a flood for deduplication purposes.
type FloodKey struct {
	FloodId     uint64
	InitiatorId mesh.NodeId
}

// Seen is the set of floods a drone has already processed.
type Seen struct {
	keys map[FloodKey]struct{}
}

// New creates an empty flood-dedup set.
func New() *Seen {
	return &Seen{keys: make(map[FloodKey]struct{})}
}

// Insert records the flood as seen. It returns true if this is the first
// sighting (the key was not already present), false on a repeat sighting.
func (s *Seen) Insert(key FloodKey) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Len reports how many distinct floods have been seen. Exposed for the
// invariant test that the set only grows while the drone is Active.
func (s *Seen) Len() int {
	return len(s.keys)
}
