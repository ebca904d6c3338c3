package m17

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// Config describes the reflector an M17 adapter serves
type Config struct {
	// Designator is the three character reflector name, "USA" for M17-USA
	Designator string
	// Modules lists the modules clients may link to
	Modules []string
	// EnforceModules rejects links to modules not in Modules. It follows
	// the reflector's ACL switch.
	EnforceModules bool
}

// Adapter is the M17 wire grammar
type Adapter struct {
	designator string
	modules    map[string]bool
	enforce    bool
}

var _ reflector.Adapter = (*Adapter)(nil)

// New returns an adapter for cfg
func New(cfg Config) *Adapter {
	mods := make(map[string]bool, len(cfg.Modules))
	for _, m := range cfg.Modules {
		mods[strings.ToUpper(m)] = true
	}
	return &Adapter{
		designator: strings.ToUpper(cfg.Designator),
		modules:    mods,
		enforce:    cfg.EnforceModules,
	}
}

func (a *Adapter) Name() string      { return "m17" }
func (a *Adapter) Mode() report.Mode { return report.ModeM17 }

func (a *Adapter) Classify(frame []byte) reflector.FrameKind {
	if len(frame) < 4 {
		return reflector.FrameUnknown
	}
	switch binary.BigEndian.Uint32(frame) {
	case OpcodeConn:
		return reflector.FrameRegister
	case OpcodePong:
		return reflector.FrameKeepalive
	case OpcodeDisc:
		return reflector.FrameUnregister
	case OpcodeVoice:
		return reflector.FrameData
	default:
		return reflector.FrameUnknown
	}
}

// DecodeRegistration reads the source callsign and requested module of a
// CONN frame
func (a *Adapter) DecodeRegistration(frame []byte) (reflector.Registration, error) {
	if len(frame) < ConnMinSize {
		return reflector.Registration{}, reflector.ErrShortFrame
	}
	cs := DecodeCallsign(frame[OffsetCallsign:])
	return reflector.Registration{
		Callsign:   truncate(cs, PeerCallsignLength),
		Subchannel: strings.ToUpper(string(frame[OffsetModule : OffsetModule+1])),
	}, nil
}

// DecodeCallBoundary opens or refreshes the call of the frame's stream and
// relays it to the module addressed by the destination callsign. A
// destination naming another reflector is answered with NACK but still
// relayed. A destination without a module reaches no one.
func (a *Adapter) DecodeCallBoundary(frame []byte, _ *peer.Peer) (reflector.CallBoundary, error) {
	if len(frame) < VoiceMinSize {
		return reflector.CallBoundary{}, reflector.ErrShortFrame
	}
	dst := DecodeCallsign(frame[OffsetDst:])
	src := DecodeCallsign(frame[OffsetSrc:])
	designator, module := addressed(dst)

	cb := reflector.CallBoundary{
		StreamID: uint32(binary.BigEndian.Uint16(frame[OffsetStreamID:])),
		SrcID:    src,
		DstID:    dst,
		Start:    true,
		Relay:    module != "",
		Scope:    module,
	}
	if designator != a.designator {
		cb.Reply = ReplyNack
	}
	return cb, nil
}

// Permit checks the module allow-list when enforcement is on
func (a *Adapter) Permit(reg reflector.Registration) (bool, string) {
	if a.enforce && !a.modules[strings.ToUpper(reg.Subchannel)] {
		return false, fmt.Sprintf("module %q not enabled", reg.Subchannel)
	}
	return true, ""
}

func (a *Adapter) CallHang() time.Duration { return CallHang }

func (a *Adapter) RegisterAck([]byte) []byte            { return ReplyAck }
func (a *Adapter) KeepaliveAck([]byte) []byte           { return ReplyPing }
func (a *Adapter) Reject(reflector.Registration) []byte { return ReplyNack }
func (a *Adapter) UnknownPeer() []byte                  { return ReplyNack }
func (a *Adapter) DisconnectNotice() []byte             { return ReplyNack }
func (a *Adapter) Answer([]byte, int) []byte            { return nil }

// addressed splits a destination like "M17-USA C" into its reflector
// designator and module
func addressed(dst string) (designator, module string) {
	if len(dst) >= 7 {
		designator = dst[4:7]
	}
	if len(dst) >= 9 {
		module = dst[8:9]
	}
	return designator, module
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
