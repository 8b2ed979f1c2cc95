package forwarder

import (
	"testing"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/core/packet"
)

// recordingSink is a hand-rolled telemetry.Sink fake that records every
// emitted event for assertions, avoiding the need for a real channel and
// goroutine per test.
type recordingSink struct {
	sent      []*packet.Packet
	dropped   []*packet.Packet
	shortcuts []*packet.Packet
}

func (r *recordingSink) PacketSent(p *packet.Packet)         { r.sent = append(r.sent, p) }
func (r *recordingSink) PacketDropped(p *packet.Packet)      { r.dropped = append(r.dropped, p) }
func (r *recordingSink) ControllerShortcut(p *packet.Packet) { r.shortcuts = append(r.shortcuts, p) }

func newTestForwarder(t *testing.T, self mesh.NodeId) (*Forwarder, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return New(Config{Id: self, Events: sink}), sink
}

func TestNew_PanicsWithoutEvents(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when Events is nil")
		}
	}()
	New(Config{Id: 1})
}

func TestAddNeighbor_RejectsSelf(t *testing.T) {
	f, _ := newTestForwarder(t, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when adding self as a neighbor")
		}
	}()
	f.AddNeighbor(1, make(chan *packet.Packet, 1))
}

func TestAddNeighbor_RejectsDuplicate(t *testing.T) {
	f, _ := newTestForwarder(t, 1)
	f.AddNeighbor(2, make(chan *packet.Packet, 1))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when adding a neighbor twice")
		}
	}()
	f.AddNeighbor(2, make(chan *packet.Packet, 1))
}

func TestRemoveNeighbor_RejectsMissing(t *testing.T) {
	f, _ := newTestForwarder(t, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when removing an absent neighbor")
		}
	}()
	f.RemoveNeighbor(2)
}

func TestUnicast_Success(t *testing.T) {
	f, sink := newTestForwarder(t, 2)
	ch := make(chan *packet.Packet, 1)
	f.AddNeighbor(3, ch)

	p := packet.NewAck(1, packet.SourceRoutingHeader{HopIndex: 1, Hops: []mesh.NodeId{1, 2, 3}}, 0)
	sent, err := f.Unicast(p)
	if err != nil {
		t.Fatalf("Unicast: %v", err)
	}
	if sent.Routing.HopIndex != 2 {
		t.Errorf("HopIndex = %d, want 2", sent.Routing.HopIndex)
	}

	select {
	case got := <-ch:
		if got != sent {
			t.Error("neighbor received a different packet than returned")
		}
	default:
		t.Fatal("neighbor channel received nothing")
	}

	if len(sink.sent) != 1 {
		t.Errorf("expected 1 PacketSent event, got %d", len(sink.sent))
	}
}

func TestUnicast_DestinationIsDrone(t *testing.T) {
	f, _ := newTestForwarder(t, 3)
	p := packet.NewAck(1, packet.SourceRoutingHeader{HopIndex: 2, Hops: []mesh.NodeId{1, 2, 3}}, 0)

	_, err := f.Unicast(p)
	if err == nil {
		t.Fatal("expected an error when the route has no further hop")
	}
	if err.(*forwardErr).nackType.Kind != packet.NackDestinationIsDrone {
		t.Errorf("nackType = %v, want DestinationIsDrone", err.(*forwardErr).nackType)
	}
}

func TestUnicast_ErrorInRouting(t *testing.T) {
	f, _ := newTestForwarder(t, 2)
	p := packet.NewAck(1, packet.SourceRoutingHeader{HopIndex: 1, Hops: []mesh.NodeId{1, 2, 3}}, 0)

	_, err := f.Unicast(p)
	if err == nil {
		t.Fatal("expected an error when the next hop has no registered endpoint")
	}
	fe := err.(*forwardErr)
	if fe.nackType.Kind != packet.NackErrorInRouting || fe.nackType.Node != 3 {
		t.Errorf("nackType = %v, want ErrorInRouting(3)", fe.nackType)
	}
}

func TestHandleForwardingError_ControlPlaneShortcuts(t *testing.T) {
	f, sink := newTestForwarder(t, 2)
	p := packet.NewNack(1, packet.SourceRoutingHeader{HopIndex: 0, Hops: []mesh.NodeId{1, 2, 3}}, 0, packet.Dropped())

	f.HandleForwardingError(p, packet.ErrorInRouting(3))

	if len(sink.shortcuts) != 1 {
		t.Fatalf("expected 1 ControllerShortcut event, got %d", len(sink.shortcuts))
	}
}

func TestHandleForwardingError_DataPlaneBuildsNack(t *testing.T) {
	f, sink := newTestForwarder(t, 2)
	ch := make(chan *packet.Packet, 1)
	f.AddNeighbor(1, ch)

	// self (2) is the current hop; forwarding onward to 3 failed.
	p := packet.NewMsgFragment(1, packet.SourceRoutingHeader{HopIndex: 1, Hops: []mesh.NodeId{1, 2, 3}}, 0, 1, []byte("x"))

	f.HandleForwardingError(p, packet.ErrorInRouting(3))

	select {
	case nack := <-ch:
		if nack.Kind != packet.KindNack {
			t.Fatalf("expected a Nack packet, got %s", nack.Kind)
		}
		if nack.NackType.Kind != packet.NackErrorInRouting {
			t.Errorf("NackType = %v, want ErrorInRouting", nack.NackType)
		}
	default:
		t.Fatal("expected the synthesized NACK to be forwarded to neighbor 1")
	}
	if len(sink.sent) != 1 {
		t.Errorf("expected 1 PacketSent event for the forwarded NACK, got %d", len(sink.sent))
	}
}

func TestHandleForwardingError_DoubleFailureShortcuts(t *testing.T) {
	f, sink := newTestForwarder(t, 2)
	p := packet.NewMsgFragment(1, packet.SourceRoutingHeader{HopIndex: 1, Hops: []mesh.NodeId{1, 2, 3}}, 0, 1, []byte("x"))

	// No neighbor 1 registered: the synthesized NACK itself fails to
	// forward, and since a NACK is control-plane, that failure shortcuts.
	f.HandleForwardingError(p, packet.ErrorInRouting(3))

	if len(sink.shortcuts) != 1 {
		t.Fatalf("expected 1 ControllerShortcut event, got %d", len(sink.shortcuts))
	}
}

func TestBuildNack_ReversesPrefixAndResetsHopIndex(t *testing.T) {
	p := packet.NewMsgFragment(5, packet.SourceRoutingHeader{HopIndex: 2, Hops: []mesh.NodeId{1, 2, 3, 4}}, 7, 10, []byte("x"))

	nack := BuildNack(p, packet.Dropped())

	if nack.Routing.HopIndex != 0 {
		t.Errorf("HopIndex = %d, want 0", nack.Routing.HopIndex)
	}
	want := []mesh.NodeId{3, 2, 1}
	for i, id := range want {
		if nack.Routing.Hops[i] != id {
			t.Errorf("Hops[%d] = %d, want %d", i, nack.Routing.Hops[i], id)
		}
	}
	if nack.FragmentIndex != 7 {
		t.Errorf("FragmentIndex = %d, want 7", nack.FragmentIndex)
	}
	if nack.SessionId != 5 {
		t.Errorf("SessionId = %d, want 5", nack.SessionId)
	}
}

func TestBuildNack_NonFragmentHasZeroFragmentIndex(t *testing.T) {
	p := packet.NewAck(5, packet.SourceRoutingHeader{HopIndex: 1, Hops: []mesh.NodeId{1, 2}}, 3)
	nack := BuildNack(p, packet.Dropped())
	if nack.FragmentIndex != 0 {
		t.Errorf("FragmentIndex = %d, want 0 for a non-MsgFragment offender", nack.FragmentIndex)
	}
}

func TestFlood_PanicsOnUnknownNeighbor(t *testing.T) {
	f, _ := newTestForwarder(t, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when flooding to an unknown neighbor")
		}
	}()
	f.Flood(9, packet.NewFloodRequest(1, 1, 1, nil))
}

func TestSend_ClosedChannelPanicsFatally(t *testing.T) {
	f, _ := newTestForwarder(t, 1)
	ch := make(chan *packet.Packet, 1)
	close(ch)
	f.AddNeighbor(2, ch)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a send to a closed neighbor endpoint to panic")
		}
	}()
	f.Flood(2, packet.NewFloodRequest(1, 1, 1, nil))
}
