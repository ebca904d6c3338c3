// Package nxdn implements the NXDN reflector network protocol as spoken by
// MMDVM NXDNGateway. A reflector serves a single talk group.
package nxdn

import "time"

// Frame signatures (bytes 0..4)
const (
	SignaturePoll   = "NXDNP"
	SignatureUnlink = "NXDNU"
	SignatureData   = "NXDND"
)

// Frame sizes
const (
	PollFrameSize = 17 // NXDNP and NXDNU
	DataFrameSize = 43
)

// Field offsets
const (
	OffsetCallsign = 5  // 10 bytes, space padded
	CallsignLength = 10 // in polls
	OffsetGroup    = 15 // 2 bytes BE, in polls
	OffsetSrcID    = 5  // 2 bytes BE, in data
	OffsetDstID    = 7  // 2 bytes BE, in data
	OffsetFlags    = 9  // in data
)

// Data flag bits
const (
	FlagGroupCall = 0x01
	FlagEnd       = 0x08
)

// CallHang closes a call whose end flag was lost
const CallHang = 3 * time.Second
