package peer

import (
	"net"
	"strings"
	"sync"
	"time"
)

// Registry is the table of peers linked to one reflector, keyed by network
// address. Iteration order is registration order.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]*Peer),
	}
}

// Add registers p. It returns false and leaves the table unchanged when a
// peer with the same address is already present.
func (r *Registry) Add(p *Peer) bool {
	key := p.Key()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[key]; exists {
		return false
	}
	r.peers[key] = p
	r.order = append(r.order, key)
	return true
}

// Find returns the peer registered at addr, or nil
func (r *Registry) Find(addr *net.UDPAddr) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[AddrKey(addr)]
}

// FindByCallsign returns the earliest registered peer whose callsign matches
// case-insensitively, or nil
func (r *Registry) FindByCallsign(callsign string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := r.firstCallsignLocked(callsign)
	if key == "" {
		return nil
	}
	return r.peers[key]
}

// Remove unregisters the peer at addr and returns it, or nil
func (r *Registry) Remove(addr *net.UDPAddr) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(AddrKey(addr))
}

// RemoveByCallsign unregisters the earliest registered peer whose callsign
// matches case-insensitively and returns it, or nil
func (r *Registry) RemoveByCallsign(callsign string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.firstCallsignLocked(callsign)
	if key == "" {
		return nil
	}
	return r.removeLocked(key)
}

// Snapshot returns a copy of the peer list. The slice stays valid while the
// registry is mutated.
func (r *Registry) Snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]*Peer, 0, len(r.order))
	for _, key := range r.order {
		peers = append(peers, r.peers[key])
	}
	return peers
}

// Count returns the number of registered peers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// RemoveExpired unregisters every peer silent for longer than timeout and
// returns them
func (r *Registry) RemoveExpired(timeout time.Duration, now time.Time) []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Peer
	for _, key := range append([]string(nil), r.order...) {
		if p := r.peers[key]; p.IsTimedOut(timeout, now) {
			removed = append(removed, r.removeLocked(key))
		}
	}
	return removed
}

func (r *Registry) firstCallsignLocked(callsign string) string {
	callsign = strings.TrimSpace(callsign)
	for _, key := range r.order {
		if strings.EqualFold(strings.TrimSpace(r.peers[key].Callsign), callsign) {
			return key
		}
	}
	return ""
}

func (r *Registry) removeLocked(key string) *Peer {
	p, ok := r.peers[key]
	if !ok {
		return nil
	}
	delete(r.peers, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p
}
