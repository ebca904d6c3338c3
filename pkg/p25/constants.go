// Package p25 implements the P25 reflector network protocol as spoken by
// MMDVM P25Gateway.
package p25

import "time"

// Opcodes (byte 0 of every frame)
const (
	OpcodePoll   = 0xF0 // Poll: register and keepalive, echoed back
	OpcodeUnlink = 0xF1 // Unlink from the reflector
	OpcodeLDU1LC = 0x64 // LDU1 voice frame 1: link control format
	OpcodeLDU1DT = 0x65 // LDU1 voice frame 2: destination id
	OpcodeLDU1SR = 0x66 // LDU1 voice frame 3: source id
	OpcodeTerm   = 0x80 // Terminator
)

// Frame layout
const (
	PollFrameSize   = 11 // opcode + 10 byte callsign
	OffsetCallsign  = 1
	CallsignLength  = 10
	OffsetID        = 1 // 24-bit id in LDU1 frames 2 and 3
	OffsetLCF       = 1
	MinIDFrameSize  = 4
	MinLCFFrameSize = 2
)

// CallHang closes a call whose terminator was lost
const CallHang = 3 * time.Second
