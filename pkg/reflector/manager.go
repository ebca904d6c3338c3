package reflector

import (
	"strings"
	"sync"

	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// Controller is the management surface of one reflector
type Controller interface {
	Name() string
	Mode() report.Mode
	Disconnect(callsign string) bool
	Block(callsign string) bool
	UnBlock(callsign string) bool
	Status() Status
	Peers() []peer.Info
}

// Manager routes management operations to reflectors by protocol name
type Manager struct {
	mu          sync.RWMutex
	controllers map[string]Controller
	order       []string
}

// NewManager creates a manager over controllers
func NewManager(controllers ...Controller) *Manager {
	m := &Manager{controllers: make(map[string]Controller)}
	for _, c := range controllers {
		m.Register(c)
	}
	return m
}

// Register adds c, replacing any controller of the same name
func (m *Manager) Register(c Controller) {
	key := strings.ToLower(c.Name())
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.controllers[key]; !exists {
		m.order = append(m.order, key)
	}
	m.controllers[key] = c
}

// Lookup returns the controller for a protocol name, ignoring case
func (m *Manager) Lookup(mode string) (Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.controllers[strings.ToLower(strings.TrimSpace(mode))]
	return c, ok
}

// Disconnect removes callsign from the named reflector
func (m *Manager) Disconnect(mode, callsign string) bool {
	c, ok := m.Lookup(mode)
	return ok && c.Disconnect(callsign)
}

// Block denies callsign on the named reflector
func (m *Manager) Block(mode, callsign string) bool {
	c, ok := m.Lookup(mode)
	return ok && c.Block(callsign)
}

// UnBlock allows callsign again on the named reflector
func (m *Manager) UnBlock(mode, callsign string) bool {
	c, ok := m.Lookup(mode)
	return ok && c.UnBlock(callsign)
}

// Status returns the status of the named reflector. Unknown names yield a
// status with Mode "Unknown" and Status "Error".
func (m *Manager) Status(mode string) Status {
	c, ok := m.Lookup(mode)
	if !ok {
		return Status{Mode: report.ModeUnknown.String(), Status: "Error"}
	}
	return c.Status()
}

// AllStatus returns the status of every registered reflector in
// registration order
func (m *Manager) AllStatus() []Status {
	m.mu.RLock()
	controllers := make([]Controller, 0, len(m.order))
	for _, key := range m.order {
		controllers = append(controllers, m.controllers[key])
	}
	m.mu.RUnlock()

	statuses := make([]Status, 0, len(controllers))
	for _, c := range controllers {
		statuses = append(statuses, c.Status())
	}
	return statuses
}

// Peers returns the peers of the named reflector
func (m *Manager) Peers(mode string) ([]peer.Info, bool) {
	c, ok := m.Lookup(mode)
	if !ok {
		return nil, false
	}
	return c.Peers(), true
}
