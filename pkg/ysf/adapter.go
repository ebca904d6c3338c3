package ysf

import (
	"fmt"
	"strings"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
	"github.com/zeebo/xxh3"
)

// Identity is what a YSF reflector announces in status replies
type Identity struct {
	ID          uint32 // zero derives the id from Name
	Name        string
	Description string
}

// Adapter is the YSF wire grammar
type Adapter struct {
	identity Identity
	pollAck  []byte
}

var _ reflector.Adapter = (*Adapter)(nil)

// New returns an adapter announcing id
func New(id Identity) *Adapter {
	return &Adapter{
		identity: id,
		pollAck:  PollFrame(SignaturePoll, ReflectorCallsign),
	}
}

func (a *Adapter) Name() string      { return "ysf" }
func (a *Adapter) Mode() report.Mode { return report.ModeYSF }

func (a *Adapter) Classify(frame []byte) reflector.FrameKind {
	if len(frame) < 4 {
		return reflector.FrameUnknown
	}
	switch string(frame[:4]) {
	case SignaturePoll:
		return reflector.FrameRegister
	case SignatureUnlink:
		return reflector.FrameUnregister
	case SignatureData:
		return reflector.FrameData
	case SignatureStatus:
		return reflector.FrameQuery
	default:
		return reflector.FrameUnknown
	}
}

// DecodeRegistration reads the gateway callsign of a poll
func (a *Adapter) DecodeRegistration(frame []byte) (reflector.Registration, error) {
	if len(frame) < YSFPollLength {
		return reflector.Registration{}, reflector.ErrShortFrame
	}
	return reflector.Registration{
		Callsign: strings.TrimSpace(string(frame[4:YSFPollLength])),
	}, nil
}

// DecodeCallBoundary opens a call on any data frame and closes it on the end
// of transmission bit. Every frame is relayed to all peers.
func (a *Adapter) DecodeCallBoundary(frame []byte, _ *peer.Peer) (reflector.CallBoundary, error) {
	f, err := DecodeFrame(frame)
	if err != nil {
		return reflector.CallBoundary{}, fmt.Errorf("%w: %v", reflector.ErrShortFrame, err)
	}
	return reflector.CallBoundary{
		StreamID: streamID(f.Source, f.Dest),
		SrcID:    f.Source,
		DstID:    f.Dest,
		Start:    true,
		End:      f.EOT(),
		Relay:    true,
	}, nil
}

// Permit admits every poll; YSF has no protocol level filter
func (a *Adapter) Permit(reflector.Registration) (bool, string) { return true, "" }

func (a *Adapter) CallHang() time.Duration { return CallHang }

// RegisterAck is the fixed "YSFPREFLECTOR " reply
func (a *Adapter) RegisterAck([]byte) []byte { return a.pollAck }

func (a *Adapter) KeepaliveAck([]byte) []byte           { return nil }
func (a *Adapter) Reject(reflector.Registration) []byte { return nil }
func (a *Adapter) UnknownPeer() []byte                  { return nil }
func (a *Adapter) DisconnectNotice() []byte             { return nil }

// Answer builds the YSFS status reply
func (a *Adapter) Answer(_ []byte, peers int) []byte {
	return []byte(Status(a.identity, peers))
}

// Status formats a YSFS reply: signature, five digit hash, 16 byte name,
// 14 byte description and three digit peer count
func Status(id Identity, peers int) string {
	if peers > 999 {
		peers = 999
	}
	if peers < 0 {
		peers = 0
	}
	return fmt.Sprintf("%s%05d%s%s%03d",
		SignatureStatus,
		StatusHash(id)%100000,
		padOrTruncate(id.Name, 16),
		padOrTruncate(id.Description, 14),
		peers)
}

// StatusHash is the configured id, or a one-at-a-time hash of the name when
// the id is zero
func StatusHash(id Identity) uint32 {
	if id.ID != 0 {
		return id.ID
	}
	var h uint32
	for _, c := range []byte(id.Name) {
		h += uint32(c)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

func streamID(src, dst string) uint32 {
	return uint32(xxh3.HashString(src + "\x00" + dst))
}
