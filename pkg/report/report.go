// Package report defines the events the reflectors emit and the sinks that
// consume them.
package report

import (
	"strings"
	"time"
)

// Mode identifies a digital voice protocol. Values match the wire values
// used by existing dashboards.
type Mode uint8

const (
	ModeNXDN    Mode = 0
	ModeP25     Mode = 1
	ModeYSF     Mode = 2
	ModeM17     Mode = 3
	ModeUnknown Mode = 0xFF
)

func (m Mode) String() string {
	switch m {
	case ModeNXDN:
		return "NXDN"
	case ModeP25:
		return "P25"
	case ModeYSF:
		return "YSF"
	case ModeM17:
		return "M17"
	default:
		return "Unknown"
	}
}

// ParseMode maps a protocol name to its Mode, ignoring case
func ParseMode(name string) Mode {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nxdn":
		return ModeNXDN
	case "p25":
		return ModeP25
	case "ysf":
		return ModeYSF
	case "m17":
		return ModeM17
	default:
		return ModeUnknown
	}
}

// Type is the kind of event being reported
type Type uint8

const (
	CallStart     Type = 0
	CallEnd       Type = 1
	CallAlert     Type = 2
	AckResponse   Type = 3
	NewConnection Type = 4
	Unlink        Type = 5
	Connection    Type = 6
)

func (t Type) String() string {
	switch t {
	case CallStart:
		return "call_start"
	case CallEnd:
		return "call_end"
	case CallAlert:
		return "call_alert"
	case AckResponse:
		return "ack_rsp"
	case NewConnection:
		return "new_connection"
	case Unlink:
		return "unlink"
	case Connection:
		return "connection"
	default:
		return "unknown"
	}
}

// Report is a single reflector event
type Report struct {
	SrcID    string    `json:"SrcId"`
	DstID    string    `json:"DstId"`
	Peer     string    `json:"Peer"`
	Extra    string    `json:"Extra"`
	Mode     Mode      `json:"Mode"`
	Type     Type      `json:"Type"`
	DateTime time.Time `json:"DateTime"`

	// Call details, set on CallEnd
	StreamID uint32        `json:"StreamId,omitempty"`
	Duration time.Duration `json:"-"`
	Frames   int           `json:"-"`
}

// Sink consumes reports. Send must not block the caller.
type Sink interface {
	Send(r Report)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(r Report)

// Send calls f(r)
func (f SinkFunc) Send(r Report) { f(r) }

// Discard drops every report
var Discard Sink = SinkFunc(func(Report) {})

// Fanout delivers each report to every sink in order
type Fanout []Sink

// Send stamps the report time when unset and forwards it
func (f Fanout) Send(r Report) {
	if r.DateTime.IsZero() {
		r.DateTime = time.Now()
	}
	for _, s := range f {
		if s != nil {
			s.Send(r)
		}
	}
}
