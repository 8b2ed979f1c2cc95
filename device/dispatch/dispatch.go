// Package dispatch implements the per-packet-type receipt gate: route
// FloodRequests to the flood engine, verify the routing header names this
// drone as the current hop for everything else, forward control-plane
// packets unconditionally, and run the crash/drop-rate gates in front of
// forwarding data-plane MsgFragments.
//
// Grounded on the teacher's device/router.Router.HandlePacket dispatch, and
// on original_source/src/drone.rs's handle_packet and should_drop_packet,
// which is the source of the PDR coin-flip and the "wrong recipient still
// gets a NACK, not silent discard" behavior.
package dispatch

import (
	"math/rand/v2"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/core/packet"
	"github.com/relaymesh/dronecore/device/forwarder"
	"github.com/relaymesh/dronecore/device/telemetry"
)

// Forwarder is the subset of device/forwarder.Forwarder the dispatcher
// needs to hand packets onward once a gate has cleared them.
type Forwarder interface {
	SafeForward(p *packet.Packet)
}

// FloodEngine is the subset of device/flood.Engine the dispatcher needs.
type FloodEngine interface {
	HandleFloodRequest(p *packet.Packet)
}

// Config configures a Dispatcher.
type Config struct {
	Self      mesh.NodeId
	Forwarder Forwarder
	Flood     FloodEngine
	Events    telemetry.Sink
	// PDR is the packet drop rate in [0, 1]: the probability a MsgFragment
	// that clears the recipient and crash gates is dropped anyway. The
	// zero value forwards everything.
	PDR float64
	// rollDrop draws a uniform value in [0, 1); overridable in tests so
	// drop/forward outcomes are deterministic. Defaults to math/rand/v2,
	// which the corpus has no dedicated RNG library for: this hot-path
	// coin flip is the one place this repo leans on the standard library,
	// per DESIGN.md.
	rollDrop func() float64
}

// Dispatcher runs the receipt-time gates of spec.md §4.3.
type Dispatcher struct {
	self      mesh.NodeId
	forwarder Forwarder
	flood     FloodEngine
	events    telemetry.Sink
	pdr       float64
	rollDrop  func() float64
}

// New creates a Dispatcher. Panics if PDR is outside [0, 1] — a
// configuration error per spec.md §7.
func New(cfg Config) *Dispatcher {
	if cfg.PDR < 0 || cfg.PDR > 1 {
		panic("dispatch: PDR must be within [0, 1]")
	}
	roll := cfg.rollDrop
	if roll == nil {
		roll = rand.Float64
	}
	return &Dispatcher{
		self:      cfg.Self,
		forwarder: cfg.Forwarder,
		flood:     cfg.Flood,
		events:    cfg.Events,
		pdr:       cfg.PDR,
		rollDrop:  roll,
	}
}

// SetPDR updates the drop rate. Panics if pdr is outside [0, 1];
// device/command.Apply already validates this before calling through, so
// this is a defense against direct misuse rather than the primary check.
func (d *Dispatcher) SetPDR(pdr float64) {
	if pdr < 0 || pdr > 1 {
		panic("dispatch: SetPDR: value out of [0, 1]")
	}
	d.pdr = pdr
}

// Dispatch processes one received packet. crashing reports whether the
// drone is in its Crashing state, which disables further data-plane
// forwarding while control-plane traffic still drains.
func (d *Dispatcher) Dispatch(p *packet.Packet, crashing bool) {
	if p.Kind == packet.KindFloodRequest {
		d.flood.HandleFloodRequest(p)
		return
	}

	current, ok := p.Routing.CurrentHop()
	if !ok {
		// hop_index names no hop at all (empty or out-of-range route):
		// there is nothing valid to reverse or blame, so this is a silent
		// drop with no event and no NACK.
		return
	}
	if current != d.self {
		d.forwarder.SafeForward(forwarder.BuildNack(p, packet.UnexpectedRecipient(d.self)))
		return
	}

	if p.IsControlPlane() {
		d.forwarder.SafeForward(p)
		return
	}

	if crashing {
		d.forwarder.SafeForward(forwarder.BuildNack(p, d.nextHopNackType(p)))
		return
	}

	if d.pdr > 0 && d.rollDrop() < d.pdr {
		d.events.PacketDropped(p)
		d.forwarder.SafeForward(forwarder.BuildNack(p, packet.Dropped()))
		return
	}

	d.forwarder.SafeForward(p)
}

// nextHopNackType is the NackType a Crashing drone reports for a
// MsgFragment it refuses to forward further: ErrorInRouting naming the next
// hop if the route has one left, or DestinationIsDrone if this drone was
// already the last hop.
func (d *Dispatcher) nextHopNackType(p *packet.Packet) packet.NackType {
	next := p.Routing.Clone()
	next.HopIndex++
	if hop, ok := next.CurrentHop(); ok {
		return packet.ErrorInRouting(hop)
	}
	return packet.DestinationIsDrone()
}
