package testhelpers

import (
	"net"
	"sync"
	"time"
)

// MockPeer simulates a repeater or client talking to a reflector over UDP
type MockPeer struct {
	Callsign  string
	conn      *net.UDPConn
	reflector *net.UDPAddr
	mu        sync.RWMutex
	packets   [][]byte
	closed    bool
}

// NewMockPeer creates a new mock peer
func NewMockPeer(callsign string) *MockPeer {
	return &MockPeer{
		Callsign: callsign,
		packets:  make([][]byte, 0),
	}
}

// Connect dials the reflector
func (m *MockPeer) Connect(reflectorAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", reflectorAddr)
	if err != nil {
		return err
	}
	m.reflector = addr

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	m.conn = conn
	return nil
}

// LocalAddr returns the address the reflector sees the peer at
func (m *MockPeer) LocalAddr() *net.UDPAddr {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil
	}
	addr, _ := m.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Send writes a raw frame to the reflector
func (m *MockPeer) Send(frame []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.conn == nil {
		return net.ErrClosed
	}
	_, err := m.conn.Write(frame)
	return err
}

// ReceivePacket waits up to timeout for a frame from the reflector
func (m *MockPeer) ReceivePacket(timeout time.Duration) ([]byte, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return nil, net.ErrClosed
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	packet := make([]byte, n)
	copy(packet, buf[:n])

	m.mu.Lock()
	m.packets = append(m.packets, packet)
	m.mu.Unlock()

	return packet, nil
}

// GetReceivedPackets returns all received packets
func (m *MockPeer) GetReceivedPackets() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	packets := make([][]byte, len(m.packets))
	copy(packets, m.packets)
	return packets
}

// Close closes the mock peer connection
func (m *MockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// IsConnected returns whether the peer is connected
func (m *MockPeer) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil && !m.closed
}
