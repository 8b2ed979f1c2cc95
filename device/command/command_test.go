package command

import (
	"testing"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/device/forwarder"
)

type fakeReceiver struct {
	pdr        float64
	added      mesh.NodeId
	addedEp    forwarder.Endpoint
	removed    mesh.NodeId
	crashCalls int
}

func (r *fakeReceiver) SetPDR(pdr float64) { r.pdr = pdr }
func (r *fakeReceiver) AddNeighbor(id mesh.NodeId, ep forwarder.Endpoint) {
	r.added = id
	r.addedEp = ep
}
func (r *fakeReceiver) RemoveNeighbor(id mesh.NodeId) { r.removed = id }
func (r *fakeReceiver) Crash()                        { r.crashCalls++ }

func TestApply_SetPacketDropRate(t *testing.T) {
	r := &fakeReceiver{}
	Apply(r, SetPacketDropRate(0.3))
	if r.pdr != 0.3 {
		t.Errorf("pdr = %v, want 0.3", r.pdr)
	}
}

func TestApply_SetPacketDropRate_PanicsOutOfRange(t *testing.T) {
	r := &fakeReceiver{}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for PDR outside [0, 1]")
		}
	}()
	Apply(r, SetPacketDropRate(1.5))
}

func TestApply_AddSender(t *testing.T) {
	r := &fakeReceiver{}
	Apply(r, AddSender(5, nil))
	if r.added != 5 {
		t.Errorf("added = %d, want 5", r.added)
	}
}

func TestApply_RemoveSender(t *testing.T) {
	r := &fakeReceiver{}
	Apply(r, RemoveSender(7))
	if r.removed != 7 {
		t.Errorf("removed = %d, want 7", r.removed)
	}
}

func TestApply_Crash(t *testing.T) {
	r := &fakeReceiver{}
	Apply(r, Crash())
	if r.crashCalls != 1 {
		t.Errorf("crashCalls = %d, want 1", r.crashCalls)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindSetPacketDropRate, "SetPacketDropRate"},
		{KindAddSender, "AddSender"},
		{KindRemoveSender, "RemoveSender"},
		{KindCrash, "Crash"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
