package peer

import "time"

// TxState is the call sub-state of a peer
type TxState int

const (
	Idle TxState = iota
	Transmitting
)

func (s TxState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Transmitting:
		return "transmitting"
	default:
		return "unknown"
	}
}

// Call describes one transmission from a peer
type Call struct {
	StreamID uint32
	SrcID    string
	DstID    string
	Start    time.Time
	LastSeen time.Time
	End      time.Time
	Frames   int
}

// Duration returns how long the call lasted up to its last frame
func (c *Call) Duration() time.Duration {
	return c.LastSeen.Sub(c.Start)
}

type transmission struct {
	state  TxState
	call   Call
	expiry time.Time // zero when the call closes only on an explicit end
}

// TxState returns the current call sub-state
func (p *Peer) TxState() TxState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tx.state
}

// ActiveCall returns a copy of the open call, if any
func (p *Peer) ActiveCall() (Call, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.tx.state != Transmitting {
		return Call{}, false
	}
	return p.tx.call, true
}

// BeginTransmission records a data frame belonging to streamID.
//
// From Idle it opens a call and reports started. A frame of the open stream
// re-arms the expiry. A frame of a different stream closes the open call,
// returned as ended, and opens a new one. A hang of zero means the call has
// no inactivity deadline.
func (p *Peer) BeginTransmission(streamID uint32, src, dst string, now time.Time, hang time.Duration) (started bool, ended *Call) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tx.state == Transmitting {
		if p.tx.call.StreamID == streamID {
			p.tx.call.LastSeen = now
			p.tx.call.Frames++
			p.tx.expiry = deadline(now, hang)
			return false, nil
		}
		ended = p.closeLocked(now)
	}

	p.tx = transmission{
		state: Transmitting,
		call: Call{
			StreamID: streamID,
			SrcID:    src,
			DstID:    dst,
			Start:    now,
			LastSeen: now,
			Frames:   1,
		},
		expiry: deadline(now, hang),
	}
	return true, ended
}

// EndTransmission closes the open call on an explicit end of call. It
// returns nil when the peer is Idle.
func (p *Peer) EndTransmission(now time.Time) *Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tx.state != Transmitting {
		return nil
	}
	return p.closeLocked(now)
}

// ExpireTransmission closes the open call when its deadline has passed
func (p *Peer) ExpireTransmission(now time.Time) *Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tx.state != Transmitting || p.tx.expiry.IsZero() || now.Before(p.tx.expiry) {
		return nil
	}
	return p.closeLocked(now)
}

func (p *Peer) closeLocked(now time.Time) *Call {
	call := p.tx.call
	call.End = now
	p.tx = transmission{state: Idle}
	return &call
}

func deadline(now time.Time, hang time.Duration) time.Time {
	if hang <= 0 {
		return time.Time{}
	}
	return now.Add(hang)
}
