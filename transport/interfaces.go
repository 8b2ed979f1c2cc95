// Package transport holds the small lifecycle contract shared by the
// drone's I/O adapters: an MQTT telemetry publisher and a serial command
// source. Both connect to something external and report state changes the
// same way, so they share one interface instead of each rolling its own. The
// MQTT publisher reconnects when its broker connection drops; the serial
// source stops its read loop when the link fails and does not reopen it.
//
// Narrowed from the teacher's transport.Transport, which additionally
// carried SendPacket/PacketHandler/PacketSource tied to MeshCore's own wire
// packet. Those concerns now live directly in transport/mqtt (publish) and
// transport/serial (decode), since the two adapters move data in opposite
// directions and no longer share a packet type to hand back and forth.
package transport

import "context"

// Connector is implemented by every transport-level adapter.
type Connector interface {
	// Start begins the adapter's connection handling. The context controls
	// its lifetime.
	Start(ctx context.Context) error
	// Stop gracefully shuts the adapter down.
	Stop() error
	// IsConnected reports whether the adapter currently has a live
	// connection.
	IsConnected() bool
	// SetStateHandler sets the callback invoked on connection state
	// changes.
	SetStateHandler(fn StateHandler)
}

// StateHandler is called when an adapter's connection state changes.
type StateHandler func(event Event)

// Event represents an adapter state change.
type Event int

const (
	EventConnected Event = iota
	EventDisconnected
	EventReconnecting
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
