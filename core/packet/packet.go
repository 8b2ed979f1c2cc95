// Package packet defines the drone's fixed packet schema: a tagged union of
// four wire message classes plus the source-routing metadata every non-flood
// packet carries. These types are the external schema the forwarding engine
// consumes (spec-fixed, not invented here); this package only adds the small
// amount of Go plumbing (constructors, Clone, stringers) needed to work with
// them idiomatically, mirroring how the teacher's codec.Packet carries its
// own helper methods alongside the wire fields.
package packet

import (
	"fmt"

	"github.com/relaymesh/dronecore/core/mesh"
)

// Kind discriminates the packet union.
type Kind uint8

const (
	KindAck Kind = iota
	KindNack
	KindMsgFragment
	KindFloodRequest
	KindFloodResponse
)

func (k Kind) String() string {
	switch k {
	case KindAck:
		return "Ack"
	case KindNack:
		return "Nack"
	case KindMsgFragment:
		return "MsgFragment"
	case KindFloodRequest:
		return "FloodRequest"
	case KindFloodResponse:
		return "FloodResponse"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// NackTypeKind discriminates the NackType sum.
type NackTypeKind uint8

const (
	NackErrorInRouting NackTypeKind = iota
	NackDestinationIsDrone
	NackDropped
	NackUnexpectedRecipient
)

func (k NackTypeKind) String() string {
	switch k {
	case NackErrorInRouting:
		return "ErrorInRouting"
	case NackDestinationIsDrone:
		return "DestinationIsDrone"
	case NackDropped:
		return "Dropped"
	case NackUnexpectedRecipient:
		return "UnexpectedRecipient"
	default:
		return fmt.Sprintf("NackTypeKind(%d)", uint8(k))
	}
}

// NackType is the NackType enumeration from the data model. Node is only
// meaningful for ErrorInRouting and UnexpectedRecipient.
type NackType struct {
	Kind NackTypeKind
	Node mesh.NodeId
}

func ErrorInRouting(next mesh.NodeId) NackType {
	return NackType{Kind: NackErrorInRouting, Node: next}
}

func DestinationIsDrone() NackType {
	return NackType{Kind: NackDestinationIsDrone}
}

func Dropped() NackType {
	return NackType{Kind: NackDropped}
}

func UnexpectedRecipient(self mesh.NodeId) NackType {
	return NackType{Kind: NackUnexpectedRecipient, Node: self}
}

func (n NackType) String() string {
	switch n.Kind {
	case NackErrorInRouting:
		return fmt.Sprintf("ErrorInRouting(%s)", n.Node)
	case NackUnexpectedRecipient:
		return fmt.Sprintf("UnexpectedRecipient(%s)", n.Node)
	default:
		return n.Kind.String()
	}
}

// SourceRoutingHeader fixes the route at origin; hops[hop_index] is the node
// that must currently be processing the packet. Only hop_index is ever
// mutated after origin, and only monotonically.
type SourceRoutingHeader struct {
	HopIndex int
	Hops     []mesh.NodeId
}

// CurrentHop returns hops[HopIndex] and whether that index exists.
func (h SourceRoutingHeader) CurrentHop() (mesh.NodeId, bool) {
	if h.HopIndex < 0 || h.HopIndex >= len(h.Hops) {
		return 0, false
	}
	return h.Hops[h.HopIndex], true
}

// Clone returns a deep copy of the header.
func (h SourceRoutingHeader) Clone() SourceRoutingHeader {
	hops := make([]mesh.NodeId, len(h.Hops))
	copy(hops, h.Hops)
	return SourceRoutingHeader{HopIndex: h.HopIndex, Hops: hops}
}

// MaxFragmentData matches the data model's data[0..128] bound.
const MaxFragmentData = 128

// Packet is the tagged union described in the data model, plus the routing
// metadata every variant carries.
type Packet struct {
	Kind      Kind
	SessionId uint64
	Routing   SourceRoutingHeader

	// Ack / Nack
	FragmentIndex uint64
	NackType      NackType

	// MsgFragment
	TotalNFragments uint64
	Length          uint32
	Data            [MaxFragmentData]byte

	// FloodRequest / FloodResponse
	FloodId     uint64
	InitiatorId mesh.NodeId
	PathTrace   []mesh.Hop
}

// NewAck builds an Ack packet.
func NewAck(sessionId uint64, routing SourceRoutingHeader, fragmentIndex uint64) *Packet {
	return &Packet{Kind: KindAck, SessionId: sessionId, Routing: routing, FragmentIndex: fragmentIndex}
}

// NewNack builds a Nack packet.
func NewNack(sessionId uint64, routing SourceRoutingHeader, fragmentIndex uint64, nackType NackType) *Packet {
	return &Packet{Kind: KindNack, SessionId: sessionId, Routing: routing, FragmentIndex: fragmentIndex, NackType: nackType}
}

// NewMsgFragment builds a MsgFragment packet.
func NewMsgFragment(sessionId uint64, routing SourceRoutingHeader, fragmentIndex, totalNFragments uint64, data []byte) *Packet {
	p := &Packet{
		Kind:            KindMsgFragment,
		SessionId:       sessionId,
		Routing:         routing,
		FragmentIndex:   fragmentIndex,
		TotalNFragments: totalNFragments,
		Length:          uint32(len(data)),
	}
	copy(p.Data[:], data)
	return p
}

// NewFloodRequest builds a FloodRequest packet. path_trace is seeded by the
// initiator with itself, per the data model.
func NewFloodRequest(sessionId, floodId uint64, initiatorId mesh.NodeId, pathTrace []mesh.Hop) *Packet {
	return &Packet{
		Kind:        KindFloodRequest,
		SessionId:   sessionId,
		FloodId:     floodId,
		InitiatorId: initiatorId,
		PathTrace:   append([]mesh.Hop(nil), pathTrace...),
	}
}

// NewFloodResponse builds a FloodResponse packet.
func NewFloodResponse(sessionId uint64, routing SourceRoutingHeader, floodId uint64, pathTrace []mesh.Hop) *Packet {
	return &Packet{
		Kind:      KindFloodResponse,
		SessionId: sessionId,
		Routing:   routing,
		FloodId:   floodId,
		PathTrace: append([]mesh.Hop(nil), pathTrace...),
	}
}

// IsFlood reports whether the packet is a FloodRequest — the only variant
// that bypasses the source-routed hop protocol.
func (p *Packet) IsFlood() bool {
	return p.Kind == KindFloodRequest
}

// IsControlPlane reports whether the packet belongs to the ack/nack/flood
// response control plane, which is forwarded unconditionally and shortcuts
// to the controller on failure rather than generating a NACK.
func (p *Packet) IsControlPlane() bool {
	switch p.Kind {
	case KindAck, KindNack, KindFloodResponse:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of the packet, used before flood fan-out
// mutates a per-neighbor copy's path trace.
func (p *Packet) Clone() *Packet {
	clone := *p
	clone.Routing = p.Routing.Clone()
	clone.PathTrace = append([]mesh.Hop(nil), p.PathTrace...)
	return &clone
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s{session=%d}", p.Kind, p.SessionId)
}
