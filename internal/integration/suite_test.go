//go:build integration
// +build integration

package integration

import (
	"bytes"
	"testing"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/p25"
)

// TestIntegrationSuite_Basic tests basic integration suite functionality
func TestIntegrationSuite_Basic(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	if suite.Logger == nil {
		t.Error("Expected logger to be initialized")
	}
	if suite.Ctx == nil {
		t.Error("Expected context to be initialized")
	}
	if suite.ACL == nil || suite.Reports == nil {
		t.Error("Expected access list and recorder to be initialized")
	}
}

// TestIntegrationSuite_MockPeer tests linking a mock peer to a real engine
func TestIntegrationSuite_MockPeer(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	e := suite.StartReflector(p25.New(), DefaultReflectorConfig())
	peer := suite.CreateMockPeer("W1ABC", e)
	if !peer.IsConnected() {
		t.Fatal("Expected mock peer to be connected")
	}
	if len(suite.MockPeers) != 1 {
		t.Errorf("Expected 1 mock peer, got %d", len(suite.MockPeers))
	}

	poll := bytes.Repeat([]byte{' '}, p25.PollFrameSize)
	poll[0] = p25.OpcodePoll
	copy(poll[p25.OffsetCallsign:], "W1ABC")
	if err := peer.Send(poll); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	echo, err := peer.ReceivePacket(time.Second)
	if err != nil {
		t.Fatalf("Expected poll echo: %v", err)
	}
	if !bytes.Equal(echo, poll) {
		t.Errorf("Expected poll to be echoed, got % x", echo)
	}
	suite.AssertEventually(func() bool { return e.Status().ConnectedPeers == 1 }, time.Second, "peer registered")
}

// TestIntegrationSuite_WaitFor tests the WaitFor helper
func TestIntegrationSuite_WaitFor(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	counter := 0
	condition := func() bool {
		counter++
		return counter >= 5
	}

	result := suite.WaitFor(condition, 1*time.Second, "counter >= 5")
	if !result {
		t.Error("Expected WaitFor to succeed")
	}

	if counter < 5 {
		t.Errorf("Expected counter >= 5, got %d", counter)
	}
}

// TestIntegrationSuite_WaitForTimeout tests WaitFor timeout
func TestIntegrationSuite_WaitForTimeout(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	condition := func() bool {
		return false
	}

	result := suite.WaitFor(condition, 100*time.Millisecond, "always false")
	if result {
		t.Error("Expected WaitFor to timeout")
	}
}

func TestDefaultReflectorConfig(t *testing.T) {
	cfg := DefaultReflectorConfig()
	if cfg.Host != "127.0.0.1" || cfg.Port != 0 {
		t.Errorf("Expected an ephemeral loopback listener, got %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Timeout != 0 {
		t.Errorf("Expected reaping to be off by default, got %v", cfg.Timeout)
	}
}
