package peer

import (
	"net"
	"sync"
	"time"
)

// Peer represents a repeater, gateway or client linked to a reflector.
// Address, Callsign, Subchannel and ConnectedAt are fixed at creation; the
// remaining state is guarded by mu.
type Peer struct {
	Address     *net.UDPAddr
	Callsign    string
	Subchannel  string // M17 module; empty when the protocol has no scoping
	ConnectedAt time.Time

	mu         sync.RWMutex
	lastActive time.Time
	tx         transmission
	scratch    interface{}

	packetsReceived uint64
	bytesReceived   uint64
	packetsSent     uint64
	bytesSent       uint64
}

// Info is a point-in-time copy of a peer for status listings
type Info struct {
	Callsign        string    `json:"callsign"`
	Address         string    `json:"address"`
	Subchannel      string    `json:"module,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastActive      time.Time `json:"last_active"`
	Transmitting    bool      `json:"transmitting"`
	PacketsReceived uint64    `json:"packets_received"`
	PacketsSent     uint64    `json:"packets_sent"`
}

// NewPeer creates a peer first heard at now
func NewPeer(addr *net.UDPAddr, callsign, subchannel string, now time.Time) *Peer {
	return &Peer{
		Address:     addr,
		Callsign:    callsign,
		Subchannel:  subchannel,
		ConnectedAt: now,
		lastActive:  now,
	}
}

// Key returns the registry key for the peer's address
func (p *Peer) Key() string {
	return AddrKey(p.Address)
}

// AddrKey returns the registry key for addr
func AddrKey(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

// Touch records activity at now
func (p *Peer) Touch(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActive = now
}

// LastActive returns the time of the last accepted frame
func (p *Peer) LastActive() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastActive
}

// IsTimedOut reports whether the peer has been silent for longer than timeout
func (p *Peer) IsTimedOut(timeout time.Duration, now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return now.Sub(p.lastActive) > timeout
}

// Scratch returns protocol specific state attached by an adapter
func (p *Peer) Scratch() interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scratch
}

// SetScratch attaches protocol specific state
func (p *Peer) SetScratch(v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scratch = v
}

// RecordReceived counts an inbound frame
func (p *Peer) RecordReceived(bytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packetsReceived++
	p.bytesReceived += uint64(bytes)
}

// RecordSent counts an outbound frame
func (p *Peer) RecordSent(bytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packetsSent++
	p.bytesSent += uint64(bytes)
}

// Stats returns the frame and byte counters
func (p *Peer) Stats() (packetsReceived, bytesReceived, packetsSent, bytesSent uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.packetsReceived, p.bytesReceived, p.packetsSent, p.bytesSent
}

// Info returns a snapshot of the peer
func (p *Peer) Info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Info{
		Callsign:        p.Callsign,
		Address:         p.Key(),
		Subchannel:      p.Subchannel,
		ConnectedAt:     p.ConnectedAt,
		LastActive:      p.lastActive,
		Transmitting:    p.tx.state == Transmitting,
		PacketsReceived: p.packetsReceived,
		PacketsSent:     p.packetsSent,
	}
}
