package reflector

import (
	"errors"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// ErrShortFrame is returned by adapters when a frame is too short for the
// fields being decoded
var ErrShortFrame = errors.New("frame too short")

// FrameKind classifies an inbound datagram
type FrameKind int

const (
	FrameUnknown    FrameKind = iota
	FrameRegister             // link request; doubles as keepalive for polling protocols
	FrameKeepalive            // keepalive from an already linked peer
	FrameUnregister           // unlink request
	FrameData                 // voice or data to relay
	FrameQuery                // stateless status request
)

func (k FrameKind) String() string {
	switch k {
	case FrameRegister:
		return "register"
	case FrameKeepalive:
		return "keepalive"
	case FrameUnregister:
		return "unregister"
	case FrameData:
		return "data"
	case FrameQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Registration is the identity a peer presents when linking
type Registration struct {
	Callsign   string
	Subchannel string
	Group      uint32 // addressed talk group, for protocols that carry one
}

// CallBoundary is what a data frame says about the call it belongs to. A
// frame without Start keeps the open call alive only when StreamID matches.
type CallBoundary struct {
	StreamID uint32
	SrcID    string
	Talker   uint32 // numeric source id checked against the ACL, zero if none
	DstID    string
	Start    bool   // the frame carries enough to open a call
	End      bool   // explicit end of call
	Relay    bool   // forward the frame to other peers
	Scope    string // only relay to peers on this subchannel; empty relays to all
	Reply    []byte // optional frame sent back to the originator
}

// Adapter is the wire grammar of one protocol. Decode methods must check
// frame length before reading fields and return ErrShortFrame otherwise.
type Adapter interface {
	Name() string
	Mode() report.Mode

	Classify(frame []byte) FrameKind
	DecodeRegistration(frame []byte) (Registration, error)
	// DecodeCallBoundary may keep per-peer protocol state with p.SetScratch.
	// It runs only on the receive loop.
	DecodeCallBoundary(frame []byte, p *peer.Peer) (CallBoundary, error)
	// Permit is the protocol specific admission filter
	Permit(reg Registration) (bool, string)
	// CallHang is the inactivity deadline of an open call; zero waits for an
	// explicit end
	CallHang() time.Duration

	Responder
}

// Responder builds the replies of a protocol. A nil reply sends nothing.
type Responder interface {
	RegisterAck(frame []byte) []byte
	KeepaliveAck(frame []byte) []byte
	Reject(reg Registration) []byte
	UnknownPeer() []byte
	DisconnectNotice() []byte
	Answer(frame []byte, peers int) []byte
}

// UnregisterFilter is implemented by adapters whose unlink frames carry an
// address that must match before the unlink is honoured
type UnregisterFilter interface {
	AcceptUnregister(frame []byte) bool
}
