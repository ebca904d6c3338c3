// Package integration holds end-to-end tests that run reflector engines on
// loopback UDP sockets together with the persistence and management layers.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/dbehnke/reflector-nexus/internal/testhelpers"
	"github.com/dbehnke/reflector-nexus/pkg/acl"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// IntegrationSuite runs real reflector engines on loopback UDP sockets and
// talks to them through mock peers
type IntegrationSuite struct {
	T         *testing.T
	Logger    *logger.Logger
	Ctx       context.Context
	Cancel    context.CancelFunc
	ACL       *acl.Store
	Reports   *testhelpers.Recorder
	Metrics   reflector.Metrics // optional, set before StartReflector
	MockPeers []*testhelpers.MockPeer
	Engines   []*reflector.Engine
}

// NewIntegrationSuite creates a new integration test suite with an empty,
// in-memory access list
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	log := logger.New(logger.Config{
		Level:  "error",
		Format: "text",
	})

	return &IntegrationSuite{
		T:         t,
		Logger:    log,
		Ctx:       ctx,
		Cancel:    cancel,
		ACL:       acl.NewStore("", nil, log),
		Reports:   &testhelpers.Recorder{},
		MockPeers: make([]*testhelpers.MockPeer, 0),
	}
}

// DefaultReflectorConfig listens on an ephemeral loopback port and sweeps
// calls often enough for short tests
func DefaultReflectorConfig() reflector.Config {
	return reflector.Config{
		Host:          "127.0.0.1",
		Port:          0,
		ReapInterval:  50 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}
}

// StartReflector runs an engine for adapter and waits until it is bound.
// Reports go to the suite recorder and to any extra sinks.
func (s *IntegrationSuite) StartReflector(adapter reflector.Adapter, cfg reflector.Config, sinks ...report.Sink) *reflector.Engine {
	s.T.Helper()

	fanout := report.Fanout{s.Reports}
	fanout = append(fanout, sinks...)

	e := reflector.New(adapter, reflector.Options{
		Config:   cfg,
		ACL:      s.ACL,
		Reporter: fanout,
		Metrics:  s.Metrics,
		Logger:   s.Logger,
	})
	go func() {
		if err := e.Run(s.Ctx); err != nil {
			s.T.Errorf("%s reflector failed: %v", adapter.Name(), err)
		}
	}()

	ctx, cancel := context.WithTimeout(s.Ctx, 2*time.Second)
	defer cancel()
	if err := e.WaitStarted(ctx); err != nil {
		s.T.Fatalf("%s reflector did not start: %v", adapter.Name(), err)
	}
	s.Engines = append(s.Engines, e)
	return e
}

// CreateMockPeer creates a mock peer connected to e
func (s *IntegrationSuite) CreateMockPeer(callsign string, e *reflector.Engine) *testhelpers.MockPeer {
	s.T.Helper()

	addr, err := e.Addr()
	if err != nil {
		s.T.Fatalf("Reflector has no address: %v", err)
	}
	p := testhelpers.NewMockPeer(callsign)
	if err := p.Connect(addr.String()); err != nil {
		s.T.Fatalf("Failed to connect mock peer %s: %v", callsign, err)
	}
	s.MockPeers = append(s.MockPeers, p)
	return p
}

// Cleanup stops every engine and closes every mock peer
func (s *IntegrationSuite) Cleanup() {
	for _, e := range s.Engines {
		e.Stop()
	}
	for _, p := range s.MockPeers {
		_ = p.Close()
	}
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	s.T.Helper()
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}
