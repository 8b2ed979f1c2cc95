// Package command defines the closed set of controller commands a drone
// accepts — SetPacketDropRate, AddSender, RemoveSender, Crash — and applies
// them to a receiver with the same fatal-on-misuse validation the teacher's
// connection.Manager applies to peer registration (Register/Remove), mirroring
// original_source/src/drone.rs's handle_command, which panics on an
// out-of-range drop rate or a duplicate/missing neighbor rather than
// tolerating it.
package command

import (
	"fmt"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/device/forwarder"
)

// Kind discriminates the command union.
type Kind uint8

const (
	KindSetPacketDropRate Kind = iota
	KindAddSender
	KindRemoveSender
	KindCrash
)

func (k Kind) String() string {
	switch k {
	case KindSetPacketDropRate:
		return "SetPacketDropRate"
	case KindAddSender:
		return "AddSender"
	case KindRemoveSender:
		return "RemoveSender"
	case KindCrash:
		return "Crash"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Command is one controller instruction to a drone.
type Command struct {
	Kind       Kind
	PDR        float64
	NeighborId mesh.NodeId
	Endpoint   forwarder.Endpoint
}

// SetPacketDropRate builds a command reconfiguring the drone's drop rate.
func SetPacketDropRate(pdr float64) Command {
	return Command{Kind: KindSetPacketDropRate, PDR: pdr}
}

// AddSender builds a command registering a new neighbor endpoint.
func AddSender(id mesh.NodeId, ep forwarder.Endpoint) Command {
	return Command{Kind: KindAddSender, NeighborId: id, Endpoint: ep}
}

// RemoveSender builds a command deregistering a neighbor.
func RemoveSender(id mesh.NodeId) Command {
	return Command{Kind: KindRemoveSender, NeighborId: id}
}

// Crash builds a command initiating graceful shutdown.
func Crash() Command {
	return Command{Kind: KindCrash}
}

// Receiver is what a drone exposes for commands to act on.
type Receiver interface {
	SetPDR(pdr float64)
	AddNeighbor(id mesh.NodeId, ep forwarder.Endpoint)
	RemoveNeighbor(id mesh.NodeId)
	Crash()
}

// Apply validates and applies c to r. An out-of-range drop rate is a
// configuration error and is fatal, matching the panic-on-misuse behavior
// of AddNeighbor/RemoveNeighbor themselves for the other two mutating
// commands.
func Apply(r Receiver, c Command) {
	switch c.Kind {
	case KindSetPacketDropRate:
		if c.PDR < 0 || c.PDR > 1 {
			panic(fmt.Sprintf("command: SetPacketDropRate: %f out of [0, 1]", c.PDR))
		}
		r.SetPDR(c.PDR)
	case KindAddSender:
		r.AddNeighbor(c.NeighborId, c.Endpoint)
	case KindRemoveSender:
		r.RemoveNeighbor(c.NeighborId)
	case KindCrash:
		r.Crash()
	default:
		panic(fmt.Sprintf("command: unknown kind %d", c.Kind))
	}
}
