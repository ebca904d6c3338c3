package nxdn

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// Adapter is the NXDN wire grammar for one target group
type Adapter struct {
	targetGroup uint16
}

var (
	_ reflector.Adapter          = (*Adapter)(nil)
	_ reflector.UnregisterFilter = (*Adapter)(nil)
)

// New returns an adapter that serves targetGroup
func New(targetGroup uint16) *Adapter {
	return &Adapter{targetGroup: targetGroup}
}

func (a *Adapter) Name() string      { return "nxdn" }
func (a *Adapter) Mode() report.Mode { return report.ModeNXDN }

// Classify matches the signature and the exact frame size
func (a *Adapter) Classify(frame []byte) reflector.FrameKind {
	switch {
	case hasSignature(frame, SignaturePoll) && len(frame) == PollFrameSize:
		return reflector.FrameRegister
	case hasSignature(frame, SignatureUnlink) && len(frame) == PollFrameSize:
		return reflector.FrameUnregister
	case hasSignature(frame, SignatureData) && len(frame) == DataFrameSize:
		return reflector.FrameData
	default:
		return reflector.FrameUnknown
	}
}

// DecodeRegistration reads the callsign and group of a poll
func (a *Adapter) DecodeRegistration(frame []byte) (reflector.Registration, error) {
	if len(frame) < PollFrameSize {
		return reflector.Registration{}, reflector.ErrShortFrame
	}
	return reflector.Registration{
		Callsign: strings.TrimSpace(string(frame[OffsetCallsign : OffsetCallsign+CallsignLength])),
		Group:    uint32(binary.BigEndian.Uint16(frame[OffsetGroup:])),
	}, nil
}

// DecodeCallBoundary tracks group calls to the target group and relays only
// those. A call is keyed by its source and destination.
func (a *Adapter) DecodeCallBoundary(frame []byte, _ *peer.Peer) (reflector.CallBoundary, error) {
	if len(frame) < DataFrameSize {
		return reflector.CallBoundary{}, reflector.ErrShortFrame
	}
	src := binary.BigEndian.Uint16(frame[OffsetSrcID:])
	dst := binary.BigEndian.Uint16(frame[OffsetDstID:])
	flags := frame[OffsetFlags]

	if flags&FlagGroupCall == 0 || dst != a.targetGroup {
		return reflector.CallBoundary{}, nil
	}
	return reflector.CallBoundary{
		StreamID: uint32(src)<<16 | uint32(dst),
		SrcID:    strconv.Itoa(int(src)),
		Talker:   uint32(src),
		DstID:    strconv.Itoa(int(dst)),
		Start:    true,
		End:      flags&FlagEnd != 0,
		Relay:    true,
	}, nil
}

// Permit admits polls for the target group only
func (a *Adapter) Permit(reg reflector.Registration) (bool, string) {
	if reg.Group != uint32(a.targetGroup) {
		return false, fmt.Sprintf("group %d is not served here", reg.Group)
	}
	return true, ""
}

// AcceptUnregister honours unlinks addressed to the target group
func (a *Adapter) AcceptUnregister(frame []byte) bool {
	if len(frame) < PollFrameSize {
		return false
	}
	return binary.BigEndian.Uint16(frame[OffsetGroup:]) == a.targetGroup
}

func (a *Adapter) CallHang() time.Duration { return CallHang }

// RegisterAck echoes the poll
func (a *Adapter) RegisterAck(frame []byte) []byte { return frame }

func (a *Adapter) KeepaliveAck([]byte) []byte           { return nil }
func (a *Adapter) Reject(reflector.Registration) []byte { return nil }
func (a *Adapter) UnknownPeer() []byte                  { return nil }
func (a *Adapter) DisconnectNotice() []byte             { return nil }
func (a *Adapter) Answer([]byte, int) []byte            { return nil }

func hasSignature(frame []byte, sig string) bool {
	return bytes.HasPrefix(frame, []byte(sig))
}
