// Package flood implements the flood discovery protocol: deduplicating a
// FloodRequest by (flood_id, initiator_id), extending its path trace with
// this hop, fanning it out to every neighbor but the previous hop (the last
// entry of the incoming path trace) on first sighting, and synthesizing a
// reverse-path FloodResponse on a repeat sighting or when there is nowhere
// left to fan out to.
//
// Grounded on the teacher's device/router.Router.handleFlood/routeFloodForward
// (the dedup-then-fan-out-else-respond shape) and on original_source/src/drone.rs's
// FloodRequest branch of handle_packet, which is the source of the exact
// path-trace and reversed-hops construction used here.
package flood

import (
	"github.com/relaymesh/dronecore/core/dedupe"
	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/core/packet"
	"github.com/relaymesh/dronecore/core/routing"
)

// Forwarder is the subset of device/forwarder.Forwarder the flood engine
// needs: the neighbor set, a raw per-neighbor send, and the safe forward
// used to deliver the synthesized FloodResponse back towards the initiator.
type Forwarder interface {
	NeighborIds() []mesh.NodeId
	Flood(next mesh.NodeId, p *packet.Packet)
	SafeForward(p *packet.Packet)
}

// Engine runs the flood protocol for one drone.
type Engine struct {
	self      mesh.NodeId
	forwarder Forwarder
	seen      *dedupe.Seen
}

// New creates a flood Engine with an empty dedup set.
func New(self mesh.NodeId, forwarder Forwarder) *Engine {
	return &Engine{self: self, forwarder: forwarder, seen: dedupe.New()}
}

// SeenCount reports how many distinct floods have been processed so far.
// Exposed for the invariant that this only grows while the drone is Active.
func (e *Engine) SeenCount() int {
	return e.seen.Len()
}

// HandleFloodRequest processes a received FloodRequest. p is left
// unmodified; all mutation happens on per-destination clones.
func (e *Engine) HandleFloodRequest(p *packet.Packet) {
	key := dedupe.FloodKey{FloodId: p.FloodId, InitiatorId: p.InitiatorId}
	firstSighting := e.seen.Insert(key)

	extendedTrace := append(append([]mesh.Hop(nil), p.PathTrace...), mesh.Hop{
		Id:   e.self,
		Type: mesh.NodeTypeDrone,
	})

	if firstSighting {
		targets := e.fanOutTargets(p)
		if len(targets) > 0 {
			e.fanOut(p, extendedTrace, targets)
			return
		}
	}

	e.respond(p, extendedTrace)
}

// fanOutTargets is every current neighbor except the previous hop, which is
// the last entry of the request's incoming path trace (not necessarily the
// link this request arrived over: the previous hop may itself not be a
// neighbor of this drone, in which case nothing is excluded).
func (e *Engine) fanOutTargets(p *packet.Packet) []mesh.NodeId {
	all := e.forwarder.NeighborIds()
	if len(p.PathTrace) == 0 {
		return append([]mesh.NodeId(nil), all...)
	}
	prevHop := p.PathTrace[len(p.PathTrace)-1].Id
	targets := make([]mesh.NodeId, 0, len(all))
	for _, id := range all {
		if id != prevHop {
			targets = append(targets, id)
		}
	}
	return targets
}

// fanOut sends an independent clone of p, carrying the extended trace, to
// every target. Clones are independent so no two neighbors share a
// PathTrace backing array.
func (e *Engine) fanOut(p *packet.Packet, extendedTrace []mesh.Hop, targets []mesh.NodeId) {
	for _, next := range targets {
		clone := p.Clone()
		clone.PathTrace = append([]mesh.Hop(nil), extendedTrace...)
		e.forwarder.Flood(next, clone)
	}
}

// respond synthesizes the FloodResponse for a repeat sighting, or for a
// first sighting with no eligible fan-out target, and safe-forwards it back
// towards the initiator.
func (e *Engine) respond(p *packet.Packet, extendedTrace []mesh.Hop) {
	reversed := routing.ReverseTrace(extendedTrace)
	response := packet.NewFloodResponse(
		p.SessionId,
		packet.SourceRoutingHeader{HopIndex: 0, Hops: reversed},
		p.FloodId,
		extendedTrace,
	)
	e.forwarder.SafeForward(response)
}
