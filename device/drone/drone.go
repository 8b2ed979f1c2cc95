// Package drone wires the routing primitives, the flood engine and the
// dispatcher into the drone's event loop: a biased select between
// controller commands and inbound packets while Active, a packet-only drain
// while Crashing, and a clean exit once Crashed.
//
// The Config-struct-with-defaults constructor and the context-driven
// Run(ctx) lifecycle follow the teacher's core/ack.Tracker and
// device/connection.Manager. The three-state loop and its select priority
// are grounded directly on original_source/src/drone.rs's run(), which uses
// crossbeam_channel's select_biased! to always prefer a pending command over
// a pending packet — translated here into a non-blocking priority check
// ahead of the blocking two-way select, since Go's select has no built-in
// case priority.
package drone

import (
	"context"
	"log/slog"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/core/packet"
	"github.com/relaymesh/dronecore/device/command"
	"github.com/relaymesh/dronecore/device/dispatch"
	"github.com/relaymesh/dronecore/device/flood"
	"github.com/relaymesh/dronecore/device/forwarder"
	"github.com/relaymesh/dronecore/device/telemetry"
)

// State is the drone's lifecycle stage.
type State uint8

const (
	Active State = iota
	Crashing
	Crashed
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Crashing:
		return "Crashing"
	case Crashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// Config configures a Drone. Id, Commands and Packets are required; Events
// is required; Neighbors seeds the initial neighbor table.
type Config struct {
	Id       mesh.NodeId
	Commands <-chan command.Command
	Packets  <-chan *packet.Packet
	Events   telemetry.Sink

	// PDR is the initial packet drop rate, in [0, 1].
	PDR float64

	// Neighbors seeds the initial neighbor table. AddSender/RemoveSender
	// commands mutate it after construction.
	Neighbors map[mesh.NodeId]forwarder.Endpoint

	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
}

// Drone runs the packet-forwarding engine for one node.
type Drone struct {
	id  mesh.NodeId
	log *slog.Logger

	commands <-chan command.Command
	packets  <-chan *packet.Packet

	forwarder  *forwarder.Forwarder
	flood      *flood.Engine
	dispatcher *dispatch.Dispatcher

	state State
}

// New constructs a Drone. Panics (a configuration error, per spec) if id
// appears among its own initial neighbors or pdr is outside [0, 1].
func New(cfg Config) *Drone {
	if cfg.Events == nil {
		panic("drone: Events sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if _, self := cfg.Neighbors[cfg.Id]; self {
		panic("drone: cannot register self as a neighbor")
	}

	fwd := forwarder.New(forwarder.Config{Id: cfg.Id, Events: cfg.Events})
	for id, ep := range cfg.Neighbors {
		fwd.AddNeighbor(id, ep)
	}

	floodEngine := flood.New(cfg.Id, fwd)

	dispatcher := dispatch.New(dispatch.Config{
		Self:      cfg.Id,
		Forwarder: fwd,
		Flood:     floodEngine,
		Events:    cfg.Events,
		PDR:       cfg.PDR,
	})

	return &Drone{
		id:         cfg.Id,
		log:        logger.WithGroup("drone").With("id", cfg.Id),
		commands:   cfg.Commands,
		packets:    cfg.Packets,
		forwarder:  fwd,
		flood:      floodEngine,
		dispatcher: dispatcher,
		state:      Active,
	}
}

// State reports the drone's current lifecycle stage.
func (d *Drone) State() State {
	return d.state
}

// SeenFloodCount reports how many distinct floods this drone has processed.
func (d *Drone) SeenFloodCount() int {
	return d.flood.SeenCount()
}

// command.Receiver implementation, invoked by Apply from the event loop.

func (d *Drone) SetPDR(pdr float64) { d.dispatcher.SetPDR(pdr) }
func (d *Drone) AddNeighbor(id mesh.NodeId, ep forwarder.Endpoint) {
	d.forwarder.AddNeighbor(id, ep)
}
func (d *Drone) RemoveNeighbor(id mesh.NodeId) { d.forwarder.RemoveNeighbor(id) }

func (d *Drone) Crash() {
	if d.state == Active {
		d.log.Info("entering Crashing state")
		d.state = Crashing
	}
}

// Run executes the event loop until the context is cancelled or the drone
// reaches the Crashed state. It returns the terminal state.
func (d *Drone) Run(ctx context.Context) State {
	d.log.Info("entering run loop", "state", d.state)
	for {
		switch d.state {
		case Active:
			if !d.stepActive(ctx) {
				return d.state
			}
		case Crashing:
			if !d.stepCrashing(ctx) {
				return d.state
			}
		case Crashed:
			d.log.Info("terminated")
			return d.state
		}
	}
}

// stepActive implements one iteration of the Active state's select_biased!
// translation: a non-blocking check for a waiting command runs first, since
// Go's select has no case-priority of its own; only once no command is
// immediately ready does it block on both channels together.
func (d *Drone) stepActive(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case cmd, ok := <-d.commands:
		if ok {
			command.Apply(d, cmd)
		}
		return true
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case cmd, ok := <-d.commands:
		if ok {
			command.Apply(d, cmd)
		}
	case p, ok := <-d.packets:
		if ok {
			d.dispatcher.Dispatch(p, false)
		}
	}
	return true
}

// stepCrashing drains packets only, matching the Rust implementation's
// packet_recv.recv() loop: once the packet channel is closed (every
// neighbor has been removed and the producer side torn down), the drone
// transitions to Crashed.
func (d *Drone) stepCrashing(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case p, ok := <-d.packets:
		if !ok {
			d.log.Info("crashing complete, transitioning to Crashed")
			d.state = Crashed
			return true
		}
		d.dispatcher.Dispatch(p, true)
		return true
	}
}
