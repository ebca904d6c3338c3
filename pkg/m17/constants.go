// Package m17 implements the M17 reflector network protocol as spoken by
// M17 gateways and hotspots.
package m17

import "time"

// Opcodes are the first four bytes of every frame, read big endian
const (
	OpcodeConn  = 0x434F4E4E // "CONN"
	OpcodeDisc  = 0x44495343 // "DISC"
	OpcodeVoice = 0x4D313720 // "M17 "
	OpcodePong  = 0x504F4E47 // "PONG"
)

// Frame layout
const (
	ConnMinSize        = 11 // opcode + 6 byte callsign + module
	VoiceMinSize       = 18 // opcode + stream id + dst + src
	EncodedLength      = 6
	OffsetCallsign     = 4
	OffsetModule       = 10
	OffsetStreamID     = 4
	OffsetDst          = 6
	OffsetSrc          = 12
	PeerCallsignLength = 6
)

// Replies
var (
	ReplyAck  = []byte("ACKN")
	ReplyNack = []byte("NACK")
	ReplyPing = []byte("PING")
)

// CallHang closes a call after this much silence; M17 streams carry no end
// marker the reflector tracks
const CallHang = 500 * time.Millisecond
