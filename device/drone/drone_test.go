package drone

import (
	"context"
	"testing"
	"time"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/core/packet"
	"github.com/relaymesh/dronecore/device/command"
	"github.com/relaymesh/dronecore/device/forwarder"
	"github.com/relaymesh/dronecore/device/telemetry"
)

func TestDrone_SimpleForward(t *testing.T) {
	neighborCh := make(chan *packet.Packet, 1)
	cmds := make(chan command.Command, 4)
	packets := make(chan *packet.Packet, 4)
	events := make(telemetry.ChanSink, 8)

	d := New(Config{
		Id:        1,
		Commands:  cmds,
		Packets:   packets,
		Events:    events,
		Neighbors: map[mesh.NodeId]forwarder.Endpoint{2: neighborCh},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State, 1)
	go func() { done <- d.Run(ctx) }()

	p := packet.NewAck(1, packet.SourceRoutingHeader{HopIndex: 0, Hops: []mesh.NodeId{1, 2}}, 0)
	packets <- p

	select {
	case sent := <-neighborCh:
		if sent.Routing.HopIndex != 1 {
			t.Errorf("HopIndex = %d, want 1", sent.Routing.HopIndex)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded packet")
	}

	select {
	case e := <-events:
		if e.Kind != telemetry.PacketSent {
			t.Errorf("expected PacketSent event, got %v", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for telemetry event")
	}

	cancel()
	if got := <-done; got != Active {
		t.Errorf("cancelled run loop should report its last state (Active), got %s", got)
	}
}

func TestDrone_Crash_DrainsThenCrashed(t *testing.T) {
	cmds := make(chan command.Command, 4)
	packets := make(chan *packet.Packet, 4)
	events := make(telemetry.ChanSink, 8)

	d := New(Config{
		Id:       1,
		Commands: cmds,
		Packets:  packets,
		Events:   events,
	})

	done := make(chan State, 1)
	go func() { done <- d.Run(context.Background()) }()

	cmds <- command.Crash()
	time.Sleep(50 * time.Millisecond)
	if d.State() != Crashing {
		t.Fatalf("expected Crashing state after Crash command, got %s", d.State())
	}

	close(packets)

	select {
	case got := <-done:
		if got != Crashed {
			t.Errorf("expected Crashed terminal state, got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the drone to reach Crashed")
	}
}

func TestDrone_Crash_IsIdempotent(t *testing.T) {
	cmds := make(chan command.Command, 4)
	packets := make(chan *packet.Packet, 4)
	events := make(telemetry.ChanSink, 8)

	d := New(Config{Id: 1, Commands: cmds, Packets: packets, Events: events})
	d.Crash()
	d.Crash()
	if d.State() != Crashing {
		t.Errorf("state = %s, want Crashing", d.State())
	}
}

func TestDrone_New_PanicsOnSelfNeighbor(t *testing.T) {
	events := make(telemetry.ChanSink, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when self appears among initial neighbors")
		}
	}()
	New(Config{
		Id:        1,
		Commands:  make(chan command.Command),
		Packets:   make(chan *packet.Packet),
		Events:    events,
		Neighbors: map[mesh.NodeId]forwarder.Endpoint{1: make(chan *packet.Packet)},
	})
}

func TestDrone_New_PanicsWithoutEvents(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when Events is nil")
		}
	}()
	New(Config{Id: 1, Commands: make(chan command.Command), Packets: make(chan *packet.Packet)})
}

func TestDrone_AddRemoveNeighbor(t *testing.T) {
	events := make(telemetry.ChanSink, 8)
	d := New(Config{
		Id:       1,
		Commands: make(chan command.Command),
		Packets:  make(chan *packet.Packet),
		Events:   events,
	})

	ch := make(chan *packet.Packet, 1)
	command.Apply(d, command.AddSender(2, ch))
	command.Apply(d, command.RemoveSender(2))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic removing an already-removed neighbor")
		}
	}()
	command.Apply(d, command.RemoveSender(2))
}

func TestDrone_SeenFloodCount_ReflectsFloodEngine(t *testing.T) {
	events := make(telemetry.ChanSink, 8)
	d := New(Config{
		Id:       1,
		Commands: make(chan command.Command),
		Packets:  make(chan *packet.Packet),
		Events:   events,
	})
	if d.SeenFloodCount() != 0 {
		t.Errorf("SeenFloodCount() = %d, want 0 on a fresh drone", d.SeenFloodCount())
	}
}
