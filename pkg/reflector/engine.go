// Package reflector implements the protocol independent core shared by every
// reflector: admission, peer tracking, call state, relaying and liveness.
// Each protocol plugs in through an Adapter.
package reflector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/acl"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/network"
	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// ErrRunning is returned by Run when the engine is already running
var ErrRunning = errors.New("reflector already running")

const (
	defaultReapInterval  = 5 * time.Second
	defaultSweepInterval = 100 * time.Millisecond

	// receiveBackoff spaces out retries after a failed read
	receiveBackoff = 50 * time.Millisecond
)

// Config is the runtime configuration of one engine
type Config struct {
	Host  string
	Port  int
	Debug bool
	// ACL enables access list enforcement at admission
	ACL bool
	// Timeout is the peer inactivity limit; zero disables reaping
	Timeout      time.Duration
	ReapInterval time.Duration
	// SweepInterval is how often open calls are checked for expiry
	SweepInterval time.Duration
}

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	FrameHandled(mode, kind string)
	PeersConnected(mode string, n int)
	CallStarted(mode string)
	CallEnded(mode string, d time.Duration)
	RegistrationRejected(mode string)
}

type nopMetrics struct{}

func (nopMetrics) FrameHandled(string, string)     {}
func (nopMetrics) PeersConnected(string, int)      {}
func (nopMetrics) CallStarted(string)              {}
func (nopMetrics) CallEnded(string, time.Duration) {}
func (nopMetrics) RegistrationRejected(string)     {}

// Options are the collaborators of an engine. Only Logger is required.
type Options struct {
	Config   Config
	ACL      ACL
	Reporter report.Sink
	Metrics  Metrics
	Logger   *logger.Logger
	// Transport replaces the UDP listener, mainly for tests
	Transport network.Transport
	// Observer is attached to the UDP listener created by Run
	Observer network.Observer
}

// Status is the management view of an engine
type Status struct {
	Mode           string      `json:"Mode"`
	Status         string      `json:"Status"`
	Port           int         `json:"Port"`
	ConnectedPeers int         `json:"ConnectedPeers"`
	ACL            []acl.Entry `json:"Acl"`
}

// Engine runs one protocol reflector
type Engine struct {
	adapter   Adapter
	cfg       Config
	acl       ACL
	admission *Admission
	reporter  report.Sink
	metrics   Metrics
	observer  network.Observer
	log       *logger.Logger
	registry  *peer.Registry

	mu        sync.Mutex
	transport network.Transport
	injected  network.Transport
	cancel    context.CancelFunc
	done      chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

// New creates an engine for adapter
func New(adapter Adapter, opts Options) *Engine {
	cfg := opts.Config
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = defaultReapInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	e := &Engine{
		adapter:  adapter,
		cfg:      cfg,
		acl:      opts.ACL,
		reporter: opts.Reporter,
		metrics:  opts.Metrics,
		observer: opts.Observer,
		log:      opts.Logger.WithComponent("reflector." + adapter.Name()),
		registry: peer.NewRegistry(),
		injected: opts.Transport,
		started:  make(chan struct{}),
	}
	if e.reporter == nil {
		e.reporter = report.Discard
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	e.admission = NewAdmission(cfg.ACL, opts.ACL, adapter.Permit)
	return e
}

// Name returns the protocol name
func (e *Engine) Name() string {
	return e.adapter.Name()
}

// Mode returns the protocol mode
func (e *Engine) Mode() report.Mode {
	return e.adapter.Mode()
}

// Run binds the listener and serves until ctx is canceled or Stop is
// called. A bind failure is returned immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return ErrRunning
	}

	tr := e.injected
	if tr == nil {
		udp, err := network.Listen(network.Config{Host: e.cfg.Host, Port: e.cfg.Port, Debug: e.cfg.Debug}, e.log)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("%s reflector: %w", e.adapter.Name(), err)
		}
		if e.observer != nil {
			udp.SetObserver(e.observer)
		}
		tr = udp
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.transport = tr
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	e.startOnce.Do(func() { close(e.started) })

	e.log.Info("Reflector started",
		logger.Addr("addr", tr.LocalAddr()),
		logger.Bool("acl", e.cfg.ACL),
		logger.Duration("timeout", e.cfg.Timeout))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.receiveLoop(ctx, tr)
	}()
	go func() {
		defer wg.Done()
		e.sweepLoop(ctx)
	}()

	<-ctx.Done()
	_ = tr.Close()
	wg.Wait()

	e.mu.Lock()
	e.cancel = nil
	e.mu.Unlock()
	cancel()
	close(done)

	e.log.Info("Reflector stopped")
	return nil
}

// Stop ends a running engine and waits until no frame is being processed.
// It is a no-op when the engine is not running.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// WaitStarted blocks until the listener is bound or ctx is done
func (e *Engine) WaitStarted(ctx context.Context) error {
	select {
	case <-e.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound address. It should be called after WaitStarted.
func (e *Engine) Addr() (*net.UDPAddr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil {
		return nil, fmt.Errorf("reflector not started")
	}
	return e.transport.LocalAddr(), nil
}

func (e *Engine) running() (network.Transport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport, e.cancel != nil
}

func (e *Engine) receiveLoop(ctx context.Context, tr network.Transport) {
	for {
		frame, addr, err := tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, network.ErrClosed) {
				return
			}
			e.log.Error("Receive failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		e.handleFrame(tr, frame, addr, time.Now())
	}
}

func (e *Engine) handleFrame(tr network.Transport, frame []byte, addr *net.UDPAddr, now time.Time) {
	kind := e.adapter.Classify(frame)
	e.metrics.FrameHandled(e.adapter.Name(), kind.String())

	switch kind {
	case FrameRegister:
		e.handleRegister(tr, frame, addr, now)
	case FrameKeepalive:
		e.handleKeepalive(tr, frame, addr, now)
	case FrameUnregister:
		e.handleUnregister(tr, frame, addr, now)
	case FrameData:
		e.handleData(tr, frame, addr, now)
	case FrameQuery:
		e.reply(tr, e.adapter.Answer(frame, e.registry.Count()), addr)
	default:
		e.log.Debug("Ignoring unknown frame",
			logger.Addr("from", addr),
			logger.Int("len", len(frame)))
	}
}

func (e *Engine) handleRegister(tr network.Transport, frame []byte, addr *net.UDPAddr, now time.Time) {
	reg, err := e.adapter.DecodeRegistration(frame)
	if err != nil {
		e.log.Debug("Malformed registration", logger.Addr("from", addr), logger.Error(err))
		return
	}

	if ok, reason := e.admission.Admit(reg); !ok {
		e.log.Warn("Registration rejected",
			logger.String("callsign", reg.Callsign),
			logger.Addr("addr", addr),
			logger.String("reason", reason))
		e.metrics.RegistrationRejected(e.adapter.Name())
		e.reply(tr, e.adapter.Reject(reg), addr)
		return
	}

	p := e.registry.Find(addr)
	if p != nil && (p.Callsign != reg.Callsign || p.Subchannel != reg.Subchannel) {
		// Same endpoint presenting a new identity, e.g. an M17 client
		// switching modules
		e.dropPeer(p, now)
		p = nil
	}

	if p == nil {
		p = peer.NewPeer(addr, reg.Callsign, reg.Subchannel, now)
		if e.registry.Add(p) {
			e.log.Info("New connection",
				logger.String("callsign", reg.Callsign),
				logger.String("subchannel", reg.Subchannel),
				logger.Addr("addr", addr))
			e.rosterChanged()
		}
	} else {
		p.Touch(now)
	}
	p.RecordReceived(len(frame))
	e.replyTo(tr, e.adapter.RegisterAck(frame), p)
}

func (e *Engine) handleKeepalive(tr network.Transport, frame []byte, addr *net.UDPAddr, now time.Time) {
	p := e.registry.Find(addr)
	if p == nil {
		e.log.Debug("Keepalive from unknown peer", logger.Addr("from", addr))
		e.reply(tr, e.adapter.UnknownPeer(), addr)
		return
	}
	p.Touch(now)
	p.RecordReceived(len(frame))
	e.replyTo(tr, e.adapter.KeepaliveAck(frame), p)
}

func (e *Engine) handleUnregister(tr network.Transport, frame []byte, addr *net.UDPAddr, now time.Time) {
	if f, ok := e.adapter.(UnregisterFilter); ok && !f.AcceptUnregister(frame) {
		e.log.Debug("Ignoring unlink", logger.Addr("from", addr))
		return
	}

	p := e.registry.Remove(addr)
	if p == nil {
		e.log.Debug("Unlink from unknown peer", logger.Addr("from", addr))
		e.reply(tr, e.adapter.UnknownPeer(), addr)
		return
	}
	e.log.Info("Peer unlinked",
		logger.String("callsign", p.Callsign),
		logger.Addr("addr", addr))
	e.closeCall(p, now)
	e.rosterChanged()
}

func (e *Engine) handleData(tr network.Transport, frame []byte, addr *net.UDPAddr, now time.Time) {
	p := e.registry.Find(addr)
	if p == nil {
		e.log.Debug("Data from unknown peer", logger.Addr("from", addr))
		e.reply(tr, e.adapter.UnknownPeer(), addr)
		return
	}
	p.Touch(now)
	p.RecordReceived(len(frame))

	cb, err := e.adapter.DecodeCallBoundary(frame, p)
	if err != nil {
		e.log.Debug("Malformed data frame",
			logger.String("callsign", p.Callsign),
			logger.Int("len", len(frame)),
			logger.Error(err))
		return
	}
	e.replyTo(tr, cb.Reply, p)

	if !e.admission.AdmitTalker(cb.Talker) {
		e.log.Debug("Talker denied by ACL",
			logger.String("callsign", p.Callsign),
			logger.Uint32("rid", cb.Talker))
		return
	}

	if cb.Start || e.continuesCall(p, cb.StreamID) {
		started, ended := p.BeginTransmission(cb.StreamID, cb.SrcID, cb.DstID, now, e.adapter.CallHang())
		if ended != nil {
			e.callEnded(p, ended)
		}
		if started {
			call, _ := p.ActiveCall()
			e.callStarted(p, call)
		}
	}
	if cb.End {
		if call := p.EndTransmission(now); call != nil {
			e.callEnded(p, call)
		}
	}

	if e.registry.Find(addr) != p {
		// Removed while this frame was being handled; nothing sweeps its
		// calls any more
		e.closeCall(p, now)
		return
	}

	if cb.Relay {
		Broadcast(tr, e.registry.Snapshot(), frame, addr, cb.Scope, e.log)
	}
}

// continuesCall reports whether a frame without a start marker belongs to
// the call p has open
func (e *Engine) continuesCall(p *peer.Peer, streamID uint32) bool {
	call, ok := p.ActiveCall()
	return ok && call.StreamID == streamID
}

func (e *Engine) reply(tr network.Transport, frame []byte, addr *net.UDPAddr) {
	if frame == nil {
		return
	}
	if err := tr.Send(frame, addr); err != nil {
		e.log.Warn("Failed to send reply", logger.Addr("to", addr), logger.Error(err))
	}
}

func (e *Engine) replyTo(tr network.Transport, frame []byte, p *peer.Peer) {
	if frame == nil {
		return
	}
	if err := tr.Send(frame, p.Address); err != nil {
		e.log.Warn("Failed to send reply", logger.Addr("to", p.Address), logger.Error(err))
		return
	}
	p.RecordSent(len(frame))
}

func (e *Engine) callStarted(p *peer.Peer, call peer.Call) {
	e.log.Info("Call started",
		logger.String("peer", p.Callsign),
		logger.String("src", call.SrcID),
		logger.String("dst", call.DstID),
		logger.Uint32("stream_id", call.StreamID))
	e.metrics.CallStarted(e.adapter.Name())
	e.reporter.Send(report.Report{
		SrcID:    call.SrcID,
		DstID:    call.DstID,
		Peer:     p.Callsign,
		Mode:     e.adapter.Mode(),
		Type:     report.CallStart,
		StreamID: call.StreamID,
	})
	e.rosterChanged()
}

func (e *Engine) callEnded(p *peer.Peer, call *peer.Call) {
	e.log.Info("Call ended",
		logger.String("peer", p.Callsign),
		logger.String("src", call.SrcID),
		logger.String("dst", call.DstID),
		logger.Duration("duration", call.Duration()),
		logger.Int("frames", call.Frames))
	e.metrics.CallEnded(e.adapter.Name(), call.Duration())
	e.reporter.Send(report.Report{
		SrcID:    call.SrcID,
		DstID:    call.DstID,
		Peer:     p.Callsign,
		Mode:     e.adapter.Mode(),
		Type:     report.CallEnd,
		StreamID: call.StreamID,
		Duration: call.Duration(),
		Frames:   call.Frames,
	})
	e.rosterChanged()
}

// closeCall ends an open call of a peer leaving the reflector
func (e *Engine) closeCall(p *peer.Peer, now time.Time) {
	if call := p.EndTransmission(now); call != nil {
		e.callEnded(p, call)
	}
}

func (e *Engine) dropPeer(p *peer.Peer, now time.Time) {
	if e.registry.Remove(p.Address) == nil {
		return
	}
	e.closeCall(p, now)
	e.rosterChanged()
}

type rosterEntry struct {
	CallSign     string `json:"CallSign"`
	Module       string `json:"Module"`
	Address      string `json:"Address"`
	Transmitting bool   `json:"Transmitting"`
}

// rosterChanged publishes the current peer list as a Connection report
func (e *Engine) rosterChanged() {
	peers := e.registry.Snapshot()
	e.metrics.PeersConnected(e.adapter.Name(), len(peers))

	roster := make([]rosterEntry, 0, len(peers))
	for _, p := range peers {
		roster = append(roster, rosterEntry{
			CallSign:     p.Callsign,
			Module:       p.Subchannel,
			Address:      p.Key(),
			Transmitting: p.TxState() == peer.Transmitting,
		})
	}
	extra, err := json.Marshal(roster)
	if err != nil {
		e.log.Error("Failed to encode roster", logger.Error(err))
		return
	}
	e.reporter.Send(report.Report{
		Mode:  e.adapter.Mode(),
		Type:  report.Connection,
		Extra: string(extra),
	})
}
