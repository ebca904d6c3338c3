package p25

import (
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// Adapter is the P25 wire grammar
type Adapter struct{}

var _ reflector.Adapter = Adapter{}

// New returns the P25 adapter
func New() Adapter {
	return Adapter{}
}

// callState accumulates the LDU1 link control of the current call
type callState struct {
	lcf       byte
	dst       uint32
	src       uint32
	seenLCF   bool
	seenDst   bool
	displayed bool
	stream    uint32
}

func (s *callState) reset() {
	stream := s.stream
	*s = callState{stream: stream}
}

func (Adapter) Name() string      { return "p25" }
func (Adapter) Mode() report.Mode { return report.ModeP25 }

func (Adapter) Classify(frame []byte) reflector.FrameKind {
	if len(frame) == 0 {
		return reflector.FrameUnknown
	}
	switch frame[0] {
	case OpcodePoll:
		return reflector.FrameRegister
	case OpcodeUnlink:
		return reflector.FrameUnregister
	default:
		return reflector.FrameData
	}
}

// DecodeRegistration reads the callsign of a poll
func (Adapter) DecodeRegistration(frame []byte) (reflector.Registration, error) {
	if len(frame) < PollFrameSize {
		return reflector.Registration{}, reflector.ErrShortFrame
	}
	callsign := strings.TrimSpace(string(frame[OffsetCallsign : OffsetCallsign+CallsignLength]))
	return reflector.Registration{Callsign: callsign}, nil
}

// DecodeCallBoundary tracks the LDU1 frames of a call. A call opens on the
// source id frame once the link control and destination were seen, and
// closes on the terminator. Every frame is relayed.
func (Adapter) DecodeCallBoundary(frame []byte, p *peer.Peer) (reflector.CallBoundary, error) {
	st, _ := p.Scratch().(*callState)
	if st == nil {
		st = &callState{}
		p.SetScratch(st)
	}

	cb := reflector.CallBoundary{Relay: true}
	switch frame[0] {
	case OpcodeLDU1LC:
		if len(frame) < MinLCFFrameSize {
			return cb, reflector.ErrShortFrame
		}
		if st.displayed && p.TxState() == peer.Idle {
			// previous call timed out without a terminator
			st.reset()
		}
		if !st.seenLCF {
			st.lcf = frame[OffsetLCF]
			st.seenLCF = true
			st.stream++
		}
	case OpcodeLDU1DT:
		if len(frame) < MinIDFrameSize {
			return cb, reflector.ErrShortFrame
		}
		if !st.seenDst {
			st.dst = id24(frame[OffsetID:])
			st.seenDst = true
		}
	case OpcodeLDU1SR:
		if len(frame) < MinIDFrameSize {
			return cb, reflector.ErrShortFrame
		}
		if st.seenLCF && st.seenDst && !st.displayed {
			st.src = id24(frame[OffsetID:])
			st.displayed = true
			cb.Start = true
		}
	case OpcodeTerm:
		cb.End = true
		cb.StreamID = st.stream
		st.reset()
		return cb, nil
	}

	cb.StreamID = st.stream
	cb.SrcID = strconv.FormatUint(uint64(st.src), 10)
	if st.displayed {
		cb.Talker = st.src
	}
	cb.DstID = strconv.FormatUint(uint64(st.dst), 10)
	return cb, nil
}

// Permit admits every poll; P25 has no protocol level filter
func (Adapter) Permit(reflector.Registration) (bool, string) { return true, "" }

func (Adapter) CallHang() time.Duration { return CallHang }

// RegisterAck echoes the poll
func (Adapter) RegisterAck(frame []byte) []byte { return frame }

func (Adapter) KeepaliveAck([]byte) []byte           { return nil }
func (Adapter) Reject(reflector.Registration) []byte { return nil }
func (Adapter) UnknownPeer() []byte                  { return nil }
func (Adapter) DisconnectNotice() []byte             { return nil }
func (Adapter) Answer([]byte, int) []byte            { return nil }

// linkControlFormat returns the LCF of the call p is sending, if seen
func linkControlFormat(p *peer.Peer) (byte, bool) {
	st, _ := p.Scratch().(*callState)
	if st == nil || !st.seenLCF {
		return 0, false
	}
	return st.lcf, true
}

func id24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
