package testhelpers

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/dbehnke/reflector-nexus/pkg/network"
)

// ErrInjectedSend is returned by MockTransport for addresses marked as failing
var ErrInjectedSend = errors.New("injected send failure")

// MockPacket is a frame sent through a MockTransport
type MockPacket struct {
	To   string
	Data []byte
}

type inbound struct {
	data []byte
	from *net.UDPAddr
}

// MockTransport is an in-memory network.Transport
type MockTransport struct {
	mu          sync.RWMutex
	local       *net.UDPAddr
	inbox       chan inbound
	sentPackets []MockPacket
	failing     map[string]bool
	closed      bool
	done        chan struct{}
}

var _ network.Transport = (*MockTransport)(nil)

// NewMockTransport creates a transport that pretends to be bound to port
func NewMockTransport(port int) *MockTransport {
	return &MockTransport{
		local:   &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		inbox:   make(chan inbound, 100),
		failing: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Deliver queues a frame as if it arrived from from
func (m *MockTransport) Deliver(from *net.UDPAddr, data []byte) {
	frame := make([]byte, len(data))
	copy(frame, data)
	select {
	case m.inbox <- inbound{data: frame, from: from}:
	case <-m.done:
	}
}

// FailSendsTo makes every Send to addr fail
func (m *MockTransport) FailSendsTo(addr *net.UDPAddr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[addr.String()] = true
}

// Receive returns the next delivered frame
func (m *MockTransport) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-m.done:
		return nil, nil, network.ErrClosed
	case in := <-m.inbox:
		return in.data, in.from, nil
	}
}

// Send records the frame
func (m *MockTransport) Send(frame []byte, addr *net.UDPAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return network.ErrClosed
	}
	if m.failing[addr.String()] {
		return ErrInjectedSend
	}

	packet := MockPacket{
		To:   addr.String(),
		Data: make([]byte, len(frame)),
	}
	copy(packet.Data, frame)
	m.sentPackets = append(m.sentPackets, packet)
	return nil
}

// Close stops Receive. It is safe to call more than once.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

// LocalAddr returns the pretend bound address
func (m *MockTransport) LocalAddr() *net.UDPAddr {
	return m.local
}

// GetSentPackets returns all sent packets
func (m *MockTransport) GetSentPackets() []MockPacket {
	m.mu.RLock()
	defer m.mu.RUnlock()

	packets := make([]MockPacket, len(m.sentPackets))
	copy(packets, m.sentPackets)
	return packets
}

// SentTo returns the frames sent to addr in order
func (m *MockTransport) SentTo(addr *net.UDPAddr) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var frames [][]byte
	for _, p := range m.sentPackets {
		if p.To == addr.String() {
			frames = append(frames, p.Data)
		}
	}
	return frames
}

// Reset forgets all sent packets
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentPackets = nil
}
