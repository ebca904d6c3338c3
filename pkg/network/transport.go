package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
)

// ErrClosed is returned by Receive and Send once the transport is closed
var ErrClosed = errors.New("transport closed")

// maxDatagram covers the largest frame of any supported protocol with room to spare
const maxDatagram = 4096

// pollInterval bounds how long Receive blocks before rechecking its context
const pollInterval = 100 * time.Millisecond

// Config holds the listening endpoint of one reflector
type Config struct {
	Host  string
	Port  int
	Debug bool // hex dump every frame in and out
}

// Transport is the datagram endpoint a reflector engine reads and writes
type Transport interface {
	Receive(ctx context.Context) ([]byte, *net.UDPAddr, error)
	Send(frame []byte, addr *net.UDPAddr) error
	Close() error
	LocalAddr() *net.UDPAddr
}

// Observer is notified of every frame moved by a transport
type Observer interface {
	FrameReceived(bytes int)
	FrameSent(bytes int)
}

// UDPTransport is a Transport bound to a local UDP port
type UDPTransport struct {
	conn     *net.UDPConn
	log      *logger.Logger
	debug    bool
	buf      []byte
	closed   atomic.Bool
	observer Observer
}

// Listen binds a UDP socket for cfg. An empty host listens on all interfaces.
func Listen(cfg Config, log *logger.Logger) (*UDPTransport, error) {
	host := cfg.Host
	if host == "" {
		host = "0.0.0.0"
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	return &UDPTransport{
		conn:  conn,
		log:   log,
		debug: cfg.Debug,
		buf:   make([]byte, maxDatagram),
	}, nil
}

// SetObserver installs o; call before the first Receive
func (t *UDPTransport) SetObserver(o Observer) {
	t.observer = o
}

// Receive blocks until a datagram arrives, ctx is done or the transport is
// closed. The returned slice is owned by the caller. Receive must not be
// called concurrently.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if t.closed.Load() {
			return nil, nil, ErrClosed
		}

		// Set read deadline to allow context checking
		if err := t.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			if t.closed.Load() {
				return nil, nil, ErrClosed
			}
			return nil, nil, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, addr, err := t.conn.ReadFromUDP(t.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil, nil, ErrClosed
			}
			return nil, nil, fmt.Errorf("failed to read from UDP: %w", err)
		}

		frame := make([]byte, n)
		copy(frame, t.buf[:n])

		if t.debug {
			t.log.Info("rx", logger.Addr("from", addr), logger.Int("len", n), logger.Hex("data", frame))
		}
		if t.observer != nil {
			t.observer.FrameReceived(n)
		}
		return frame, addr, nil
	}
}

// Send writes frame to addr
func (t *UDPTransport) Send(frame []byte, addr *net.UDPAddr) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.debug {
		t.log.Info("tx", logger.Addr("to", addr), logger.Int("len", len(frame)), logger.Hex("data", frame))
	}
	if _, err := t.conn.WriteToUDP(frame, addr); err != nil {
		return fmt.Errorf("failed to send to %s: %w", addr, err)
	}
	if t.observer != nil {
		t.observer.FrameSent(len(frame))
	}
	return nil
}

// Close releases the socket and unblocks a pending Receive. It is safe to
// call more than once.
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

// LocalAddr returns the bound address, useful when listening on port 0
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	return addr
}
