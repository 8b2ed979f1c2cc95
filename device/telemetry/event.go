// Package telemetry defines the drone's outbound event stream: the three
// variants the controller observes for every forwarding decision that isn't
// purely internal bookkeeping. The enum shape follows the teacher's
// transport.Event pattern (interfaces.go) — a small Kind plus a String()
// method — generalized to also carry the packet the event concerns.
package telemetry

import (
	"fmt"

	"github.com/relaymesh/dronecore/core/packet"
)

// Kind discriminates the event union.
type Kind uint8

const (
	// PacketSent is emitted after every successful neighbor send, including
	// flood fan-out.
	PacketSent Kind = iota
	// PacketDropped is emitted exactly when a MsgFragment is dropped by the
	// PDR gate.
	PacketDropped
	// ControllerShortcut is emitted when a control-plane packet (Ack / Nack
	// / FloodResponse) cannot be forwarded and must be delivered out-of-band
	// by the controller.
	ControllerShortcut
)

func (k Kind) String() string {
	switch k {
	case PacketSent:
		return "PacketSent"
	case PacketDropped:
		return "PacketDropped"
	case ControllerShortcut:
		return "ControllerShortcut"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is a single telemetry emission bound for the controller.
type Event struct {
	Kind   Kind
	Packet *packet.Packet
}

func packetSent(p *packet.Packet) Event   { return Event{Kind: PacketSent, Packet: p} }
func packetDropped(p *packet.Packet) Event { return Event{Kind: PacketDropped, Packet: p} }
func controllerShortcut(p *packet.Packet) Event {
	return Event{Kind: ControllerShortcut, Packet: p}
}

// Sink is the write side of the drone's event channel. Every emitting
// component (forwarder, dispatcher) takes a Sink rather than a raw channel
// so tests can substitute a recording fake without standing up real
// channels and goroutines.
type Sink interface {
	PacketSent(p *packet.Packet)
	PacketDropped(p *packet.Packet)
	ControllerShortcut(p *packet.Packet)
}

// ChanSink adapts a buffered/unbounded Go channel to the Sink interface —
// the concrete Sink used by device/drone in production. Sends are expected
// never to block indefinitely: per spec.md §5 the event endpoint is
// unbounded from the drone's point of view; a closed channel (the
// controller having gone away mid-simulation) is a transport error and is
// fatal, matching every other "endpoint closed" case in the spec.
type ChanSink chan Event

func (c ChanSink) send(e Event) {
	defer func() {
		if r := recover(); r != nil {
			panic(fmt.Sprintf("telemetry: event channel closed: %v", r))
		}
	}()
	c <- e
}

func (c ChanSink) PacketSent(p *packet.Packet)         { c.send(packetSent(p)) }
func (c ChanSink) PacketDropped(p *packet.Packet)      { c.send(packetDropped(p)) }
func (c ChanSink) ControllerShortcut(p *packet.Packet) { c.send(controllerShortcut(p)) }
