// Package routing provides the small, pure path-manipulation helpers shared
// by NACK generation and flood-response synthesis. Both call sites need the
// same "reverse the path back to the sender" computation, and both are a
// frequent source of off-by-one bugs, so the logic lives in exactly one
// place (per the teacher's pattern of factoring shared packet-shape logic —
// see removeSelfFromPath in the reference router — and per spec.md §9's own
// design note to do exactly this).
package routing

import "github.com/relaymesh/dronecore/core/mesh"

// ReversePrefix returns hops[0..=hopIndex] reversed, i.e. the prefix of the
// route up to and including the current hop, walked backwards. This is the
// routing header body for a freshly generated NACK: hopIndex is reset to 0,
// and forwarding's pre-increment then sends to index 1 — the node that
// relayed the offending packet to us.
//
// ReversePrefix panics if hopIndex is out of range for hops; callers must
// only invoke it once CurrentHop() has confirmed hops[hopIndex] exists.
func ReversePrefix(hops []mesh.NodeId, hopIndex int) []mesh.NodeId {
	prefix := hops[:hopIndex+1]
	reversed := make([]mesh.NodeId, len(prefix))
	for i, h := range prefix {
		reversed[len(prefix)-1-i] = h
	}
	return reversed
}

// ReverseTrace returns the NodeIds of a flood's path trace in reverse order
// — the routing header body for a synthesized FloodResponse. hop_index is 0
// on the result; forwarding's pre-increment then sends to index 1, the last
// drone that relayed the request (the trace's second-to-last entry).
func ReverseTrace(trace []mesh.Hop) []mesh.NodeId {
	reversed := make([]mesh.NodeId, len(trace))
	for i, h := range trace {
		reversed[len(trace)-1-i] = h.Id
	}
	return reversed
}
