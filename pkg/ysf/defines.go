// Package ysf implements the System Fusion reflector network protocol as
// spoken by MMDVM YSFGateway, plus a minimal gateway side client.
package ysf

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Frame signatures (bytes 0..3)
const (
	SignaturePoll   = "YSFP"
	SignatureUnlink = "YSFU"
	SignatureData   = "YSFD"
	SignatureStatus = "YSFS"
)

const (
	// YSFCallsignLength is the length of YSF callsign fields
	YSFCallsignLength = 10

	// YSFFrameLength is the total length of a YSF data frame
	YSFFrameLength = 155

	// YSFPollLength is the length of poll and unlink frames
	YSFPollLength = 14

	// YSFMinDataLength covers the header up to and including the
	// frame counter byte
	YSFMinDataLength = 35

	// YSFPayloadLength is the sync, FICH and payload part of a data frame
	YSFPayloadLength = 120
)

// Data frame offsets
const (
	OffsetGateway = 4
	OffsetSource  = 14
	OffsetDest    = 24
	OffsetCounter = 34
	OffsetPayload = 35
)

// CounterEOT marks the last frame of a transmission in the counter byte
const CounterEOT = 0x01

// UnknownCallsign replaces blank callsign fields in data frames
const UnknownCallsign = "?Unknown"

// ReflectorCallsign is the callsign field of a poll reply
const ReflectorCallsign = "REFLECTOR"

// CallHang closes a call whose end of transmission frame was lost
const CallHang = 3 * time.Second

// YSFFrame is the header of a YSFD data frame
type YSFFrame struct {
	Gateway string // 10 bytes: Gateway callsign
	Source  string // 10 bytes: Source callsign
	Dest    string // 10 bytes: Destination callsign
	Counter byte   // 1 byte: Frame counter, bit 0 = end of transmission
	Payload []byte // 120 bytes: sync, FICH and payload data
}

// NewYSFFrame creates a new YSF frame with default values
func NewYSFFrame() *YSFFrame {
	return &YSFFrame{
		Dest:    "ALL",
		Payload: make([]byte, YSFPayloadLength),
	}
}

// EOT reports whether the frame ends a transmission
func (f *YSFFrame) EOT() bool {
	return f.Counter&CounterEOT != 0
}

// Encode renders the frame as a 155 byte YSFD datagram
func (f *YSFFrame) Encode() []byte {
	buf := make([]byte, YSFFrameLength)
	copy(buf, SignatureData)
	copy(buf[OffsetGateway:], padCallsign(f.Gateway))
	copy(buf[OffsetSource:], padCallsign(f.Source))
	copy(buf[OffsetDest:], padCallsign(f.Dest))
	buf[OffsetCounter] = f.Counter
	copy(buf[OffsetPayload:], f.Payload)
	return buf
}

// DecodeFrame parses the header of a YSFD datagram. Blank callsigns decode
// as UnknownCallsign.
func DecodeFrame(data []byte) (*YSFFrame, error) {
	if len(data) < YSFMinDataLength {
		return nil, fmt.Errorf("ysf data frame too short: %d bytes", len(data))
	}
	if !bytes.HasPrefix(data, []byte(SignatureData)) {
		return nil, fmt.Errorf("not a ysf data frame")
	}
	f := &YSFFrame{
		Gateway: callsignField(data[OffsetGateway : OffsetGateway+YSFCallsignLength]),
		Source:  callsignField(data[OffsetSource : OffsetSource+YSFCallsignLength]),
		Dest:    callsignField(data[OffsetDest : OffsetDest+YSFCallsignLength]),
		Counter: data[OffsetCounter],
	}
	if len(data) > OffsetPayload {
		f.Payload = data[OffsetPayload:]
	}
	return f, nil
}

// PollFrame builds a 14 byte poll or unlink frame
func PollFrame(signature, callsign string) []byte {
	buf := make([]byte, YSFPollLength)
	copy(buf, signature)
	copy(buf[4:], padCallsign(callsign))
	return buf
}

func callsignField(b []byte) string {
	cs := strings.TrimSpace(string(b))
	if cs == "" {
		return UnknownCallsign
	}
	return cs
}

// padCallsign pads a callsign to YSFCallsignLength with spaces
func padCallsign(cs string) string {
	return padOrTruncate(cs, YSFCallsignLength)
}

func padOrTruncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
