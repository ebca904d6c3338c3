package reflector

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dbehnke/reflector-nexus/internal/testhelpers"
	"github.com/dbehnke/reflector-nexus/pkg/acl"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

func TestDisconnect(t *testing.T) {
	f := newFixture(t, &testAdapter{}, Config{})
	now := time.Now()
	first, second := addr(3000), addr(3001)
	f.frame(first, "R|N0CALL", now)
	f.frame(second, "R|N0CALL", now)

	// Not running: removal works, the notice is not sent
	if !f.engine.Disconnect("n0call") {
		t.Fatal("Expected Disconnect to succeed")
	}
	if f.engine.registry.Find(first) != nil {
		t.Error("Expected earliest registration to be removed")
	}
	if f.engine.registry.Find(second) == nil {
		t.Error("Expected later registration to remain")
	}
	if f.engine.Disconnect("NOBODY") {
		t.Error("Expected Disconnect of unknown callsign to fail")
	}
}

func TestDisconnect_SendsNoticeWhileRunning(t *testing.T) {
	f := newFixture(t, &testAdapter{}, Config{})
	done := runFixture(t, f)
	defer done()

	a := addr(3010)
	f.tr.Deliver(a, []byte("R|N0CALL"))
	waitFor(t, func() bool { return f.engine.registry.Count() == 1 })

	if !f.engine.Disconnect("N0CALL") {
		t.Fatal("Expected Disconnect to succeed")
	}
	sent := f.tr.SentTo(a)
	if len(sent) == 0 || string(sent[len(sent)-1]) != "BYE" {
		t.Errorf("Expected disconnect notice, got %q", sent)
	}
}

func TestBlock(t *testing.T) {
	f := newFixture(t, &testAdapter{}, Config{ACL: true})
	now := time.Now()
	f.frame(addr(3020), "R|N0CALL", now)
	f.frame(addr(3021), "R|N0CALL", now)
	if f.engine.registry.Count() != 2 {
		t.Fatalf("Expected 2 peers, got %d", f.engine.registry.Count())
	}

	if !f.engine.Block("N0CALL") {
		t.Fatal("Expected Block to succeed")
	}
	if f.engine.registry.Count() != 0 {
		t.Errorf("Expected every registration of the callsign to be disconnected, %d left", f.engine.registry.Count())
	}
	if f.acl.Allowed("N0CALL") {
		t.Error("Expected callsign to be denied")
	}

	f.frame(addr(3022), "R|N0CALL", now)
	if f.engine.registry.Count() != 0 {
		t.Error("Expected blocked callsign to be rejected")
	}

	// Blocking an unlisted callsign creates a deny entry
	if !f.engine.Block("K9NEW") {
		t.Error("Expected Block of unlisted callsign to succeed")
	}
	if e, ok := f.acl.Lookup("K9NEW"); !ok || e.Allowed {
		t.Errorf("Expected deny entry for K9NEW, got %+v", e)
	}
}

func TestUnBlock(t *testing.T) {
	f := newFixture(t, &testAdapter{}, Config{ACL: true})

	if f.engine.UnBlock("NOT-LISTED") {
		t.Error("Expected UnBlock of unknown callsign to fail")
	}
	if !f.engine.UnBlock("w1bad") {
		t.Fatal("Expected UnBlock to succeed")
	}
	if !f.acl.Allowed("W1BAD") {
		t.Error("Expected callsign to be allowed again")
	}

	f.frame(addr(3030), "R|W1BAD", time.Now())
	if f.engine.registry.Count() != 1 {
		t.Error("Expected unblocked callsign to register")
	}
}

func TestBlock_PersistsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acl.yaml")
	store := acl.NewStore(path, nil, nil)
	e := New(&testAdapter{}, Options{
		Config:    Config{ACL: true},
		ACL:       store,
		Logger:    logger.New(logger.Config{Level: "error"}),
		Transport: testhelpers.NewMockTransport(0),
	})

	if !e.Block("N0CALL") {
		t.Fatal("Expected Block to succeed")
	}
	reloaded, err := acl.Load(path, nil)
	if err != nil {
		t.Fatalf("Failed to reload list: %v", err)
	}
	if entry, ok := reloaded.Lookup("N0CALL"); !ok || entry.Allowed {
		t.Errorf("Expected persisted deny entry, got %+v", entry)
	}
}

func TestBlock_WithoutACL(t *testing.T) {
	e := New(&testAdapter{}, Options{Logger: logger.New(logger.Config{Level: "error"})})
	if e.Block("N0CALL") || e.UnBlock("N0CALL") {
		t.Error("Expected Block and UnBlock to fail without an access list")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, &testAdapter{}, Config{Port: 41000, ACL: true})
	f.frame(addr(3040), "R|N0CALL", time.Now())

	st := f.engine.Status()
	if st.Mode != report.ModeP25.String() || st.Status != "Stopped" || st.Port != 41000 || st.ConnectedPeers != 1 {
		t.Errorf("Unexpected status: %+v", st)
	}
	if len(st.ACL) != 2 {
		t.Errorf("Expected ACL snapshot of 2 entries, got %d", len(st.ACL))
	}

	peers := f.engine.Peers()
	if len(peers) != 1 || peers[0].Callsign != "N0CALL" {
		t.Errorf("Unexpected peers: %+v", peers)
	}
}

func runFixture(t *testing.T, f *fixture) func() {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- f.engine.Run(t.Context()) }()
	waitFor(t, func() bool {
		_, ok := f.engine.running()
		return ok
	})
	return func() {
		f.engine.Stop()
		if err := <-errCh; err != nil {
			t.Errorf("Run returned %v", err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
