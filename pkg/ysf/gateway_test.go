package ysf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
)

const (
	defaultPollInterval = 5 * time.Second
	rxBufferSize        = 100
)

// gatewayConfig holds the settings of a gateway side connection
type gatewayConfig struct {
	Callsign     string
	ServerAddr   string
	ServerPort   int
	PollInterval time.Duration
	Debug        bool
}

// gatewayClient links to a YSF reflector the way a gateway does: it polls
// periodically, relays data frames and unlinks on shutdown
type gatewayClient struct {
	cfg        gatewayConfig
	conn       *net.UDPConn
	serverAddr *net.UDPAddr
	log        *logger.Logger

	rx      chan []byte
	linked  chan struct{}
	linkOne sync.Once

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// newGatewayClient creates a client; call Start to connect
func newGatewayClient(cfg gatewayConfig, log *logger.Logger) *gatewayClient {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &gatewayClient{
		cfg:    cfg,
		log:    log.WithComponent("ysf.client"),
		rx:     make(chan []byte, rxBufferSize),
		linked: make(chan struct{}),
	}
}

// Start opens the socket and runs the receive and poll loops until ctx is
// done, at which point an unlink is sent
func (c *gatewayClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("ysf client already started")
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.cfg.ServerAddr, strconv.Itoa(c.cfg.ServerPort)))
	if err != nil {
		return fmt.Errorf("failed to resolve server address: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("failed to create UDP socket: %w", err)
	}
	c.serverAddr = addr
	c.conn = conn
	c.running = true

	c.log.Info("YSF client started",
		logger.String("server", addr.String()),
		logger.String("callsign", c.cfg.Callsign))

	c.wg.Add(2)
	go c.receiveLoop(ctx)
	go c.pollLoop(ctx)
	return nil
}

// WaitLinked blocks until the reflector answered a poll
func (c *gatewayClient) WaitLinked(ctx context.Context) error {
	select {
	case <-c.linked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *gatewayClient) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	buffer := make([]byte, 512)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Set read deadline to allow context checking
		if err := c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return
		}

		n, remote, err := c.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.log.Error("Error reading from UDP socket", logger.Error(err))
			continue
		}

		// Relaxed check: same IP, any port
		if !remote.IP.Equal(c.serverAddr.IP) {
			if c.cfg.Debug {
				c.log.Debug("Received packet from unexpected address", logger.Addr("addr", remote))
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])

		if isPollReply(data) {
			c.linkOne.Do(func() { close(c.linked) })
			continue
		}

		select {
		case c.rx <- data:
		default:
			c.log.Warn("RX buffer full, dropping packet")
		}
	}
}

func (c *gatewayClient) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	if err := c.send(PollFrame(SignaturePoll, c.cfg.Callsign)); err != nil {
		c.log.Error("Failed to send initial poll", logger.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			if err := c.send(PollFrame(SignatureUnlink, c.cfg.Callsign)); err != nil {
				c.log.Error("Failed to send unlink", logger.Error(err))
			}
			return
		case <-ticker.C:
			if err := c.send(PollFrame(SignaturePoll, c.cfg.Callsign)); err != nil {
				c.log.Error("Failed to send poll", logger.Error(err))
			}
		}
	}
}

// Read returns the next frame relayed by the reflector, waiting up to
// timeout. It returns nil when nothing arrived.
func (c *gatewayClient) Read(timeout time.Duration) []byte {
	select {
	case data := <-c.rx:
		return data
	case <-time.After(timeout):
		return nil
	}
}

// Write sends a data frame to the reflector
func (c *gatewayClient) Write(f *YSFFrame) error {
	if f.Gateway == "" {
		f.Gateway = c.cfg.Callsign
	}
	return c.send(f.Encode())
}

func (c *gatewayClient) send(data []byte) error {
	c.mu.Lock()
	conn, addr, running := c.conn, c.serverAddr, c.running
	c.mu.Unlock()

	if !running {
		return fmt.Errorf("ysf client not started")
	}
	if _, err := conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("failed to write to UDP socket: %w", err)
	}
	return nil
}

// Close waits for the loops to finish and releases the socket. Cancel the
// context passed to Start first so the unlink goes out.
func (c *gatewayClient) Close() error {
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP socket: %w", err)
	}
	c.log.Info("YSF client closed")
	return nil
}

func isPollReply(frame []byte) bool {
	return len(frame) == YSFPollLength && bytes.HasPrefix(frame, []byte(SignaturePoll))
}
