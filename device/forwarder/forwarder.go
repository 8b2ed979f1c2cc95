// Package forwarder implements single-hop packet delivery, the fatal-on-
// misconfiguration neighbor table, and the error-handling policy that turns
// a failed forward into either a reverse-path NACK or a controller
// shortcut.
//
// This is grounded on the teacher's device/router.Router: broadcastToTransports
// style per-destination send plus a PacketSent event on success, and a
// fatal panic on send failure (the teacher's "topology is inconsistent"
// case — see router.go's forward-to-neighbor logic), generalized from
// MeshCore's path-byte addressing to this schema's NodeId/SourceRoutingHeader
// addressing.
package forwarder

import (
	"fmt"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/core/packet"
	"github.com/relaymesh/dronecore/core/routing"
	"github.com/relaymesh/dronecore/device/telemetry"
)

// Endpoint is a neighbor's inbound packet channel. Only the send direction
// is needed here; the neighbor's own drone owns the receive end.
type Endpoint chan<- *packet.Packet

// Config configures a Forwarder.
type Config struct {
	// Id is this drone's NodeId. Immutable after construction.
	Id mesh.NodeId
	// Events receives the PacketSent and ControllerShortcut telemetry this
	// forwarder emits. Must not be nil.
	Events telemetry.Sink
}

// Forwarder owns the neighbor table and implements the unicast/flood send
// paths plus the error-handling policy of spec.md §4.4–4.5.
type Forwarder struct {
	id        mesh.NodeId
	events    telemetry.Sink
	neighbors map[mesh.NodeId]Endpoint
}

// New creates a Forwarder with an empty neighbor table.
func New(cfg Config) *Forwarder {
	if cfg.Events == nil {
		panic("forwarder: Events sink is required")
	}
	return &Forwarder{
		id:        cfg.Id,
		events:    cfg.Events,
		neighbors: make(map[mesh.NodeId]Endpoint),
	}
}

// AddNeighbor inserts a neighbor endpoint. Fatal (panics) if id is already
// present or equals this drone's own id — both are controller bugs per
// spec.md §7.
func (f *Forwarder) AddNeighbor(id mesh.NodeId, ep Endpoint) {
	if id == f.id {
		panic(fmt.Sprintf("forwarder %d: refusing to add self as neighbor", f.id))
	}
	if _, exists := f.neighbors[id]; exists {
		panic(fmt.Sprintf("forwarder %d: AddSender: neighbor %d already present", f.id, id))
	}
	f.neighbors[id] = ep
}

// RemoveNeighbor deletes a neighbor endpoint. Fatal (panics) if absent.
func (f *Forwarder) RemoveNeighbor(id mesh.NodeId) {
	if _, exists := f.neighbors[id]; !exists {
		panic(fmt.Sprintf("forwarder %d: RemoveSender: neighbor %d not present", f.id, id))
	}
	delete(f.neighbors, id)
}

// HasNeighbor reports whether id is a current neighbor.
func (f *Forwarder) HasNeighbor(id mesh.NodeId) bool {
	_, ok := f.neighbors[id]
	return ok
}

// NeighborIds returns the current neighbor set. The order is unspecified.
func (f *Forwarder) NeighborIds() []mesh.NodeId {
	ids := make([]mesh.NodeId, 0, len(f.neighbors))
	for id := range f.neighbors {
		ids = append(ids, id)
	}
	return ids
}

// forwardErr carries the NackType a failed unicast forward should produce.
type forwardErr struct {
	nackType packet.NackType
}

func (e *forwardErr) Error() string {
	return fmt.Sprintf("forward failed: %s", e.nackType)
}

// Unicast implements spec.md §4.4's unicast forward entry point: increment
// hop_index on a clone of p, resolve the new current hop, resolve that hop's
// neighbor endpoint, and send. On success a PacketSent event is emitted and
// the sent clone is returned. On failure, the original p is left untouched
// so callers can still build a NACK from its pre-increment state.
func (f *Forwarder) Unicast(p *packet.Packet) (*packet.Packet, error) {
	fwd := p.Clone()
	fwd.Routing.HopIndex++

	next, ok := fwd.Routing.CurrentHop()
	if !ok {
		return nil, &forwardErr{nackType: packet.DestinationIsDrone()}
	}

	ep, ok := f.neighbors[next]
	if !ok {
		return nil, &forwardErr{nackType: packet.ErrorInRouting(next)}
	}

	f.send(ep, fwd)
	f.events.PacketSent(fwd)
	return fwd, nil
}

// Flood sends p through a specific neighbor's endpoint unchanged — no
// hop_index manipulation, since floods use path_trace rather than source
// routing. Used for the fan-out in device/flood.
func (f *Forwarder) Flood(next mesh.NodeId, p *packet.Packet) {
	ep, ok := f.neighbors[next]
	if !ok {
		panic(fmt.Sprintf("forwarder %d: flood fan-out to unknown neighbor %d", f.id, next))
	}
	f.send(ep, p)
	f.events.PacketSent(p)
}

// send delivers p to ep. A send that panics (the endpoint's channel was
// closed without a prior RemoveSender) is a transport error per spec.md §7
// and is fatal — re-panicked with a clearer message.
func (f *Forwarder) send(ep Endpoint, p *packet.Packet) {
	defer func() {
		if r := recover(); r != nil {
			panic(fmt.Sprintf("forwarder %d: send to closed neighbor endpoint: %v", f.id, r))
		}
	}()
	ep <- p
}

// SafeForward implements the "safe forwarder" wrapper of spec.md §4.4: call
// Unicast, and on failure run the error-handling policy of §4.5 instead of
// propagating the error.
func (f *Forwarder) SafeForward(p *packet.Packet) {
	if _, err := f.Unicast(p); err != nil {
		fe := err.(*forwardErr)
		f.HandleForwardingError(p, fe.nackType)
	}
}

// HandleForwardingError implements spec.md §4.5: control-plane packets
// (Ack/Nack/FloodResponse) shortcut to the controller; everything else gets
// a NACK built from its original (pre-forward) routing state and is itself
// safe-forwarded. Because a NACK is Kind Nack — control plane — a second
// failure naturally falls through to the shortcut branch on recursion,
// matching the "falls through" behavior spec.md §4.5 describes.
func (f *Forwarder) HandleForwardingError(p *packet.Packet, nackType packet.NackType) {
	if p.IsControlPlane() {
		f.events.ControllerShortcut(p)
		return
	}
	nack := BuildNack(p, nackType)
	f.SafeForward(nack)
}

// BuildNack constructs the NACK packet for an offending data-plane packet p,
// per spec.md §4.5's NACK construction rule: the reversed prefix of p's
// route through its current hop (inclusive), hop_index reset to 0, the
// fragment index extracted from p (0 for anything but MsgFragment), and the
// session id inherited.
func BuildNack(p *packet.Packet, nackType packet.NackType) *packet.Packet {
	reversed := routing.ReversePrefix(p.Routing.Hops, p.Routing.HopIndex)
	var fragmentIndex uint64
	if p.Kind == packet.KindMsgFragment {
		fragmentIndex = p.FragmentIndex
	}
	return packet.NewNack(
		p.SessionId,
		packet.SourceRoutingHeader{HopIndex: 0, Hops: reversed},
		fragmentIndex,
		nackType,
	)
}
