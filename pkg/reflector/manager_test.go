package reflector

import (
	"testing"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/report"
)

func TestManager_RoutesByMode(t *testing.T) {
	f := newFixture(t, &testAdapter{}, Config{Port: 41000})
	f.frame(addr(4000), "R|N0CALL", time.Now())
	m := NewManager(f.engine)

	if st := m.Status("TEST"); st.Mode != report.ModeP25.String() || st.ConnectedPeers != 1 {
		t.Errorf("Unexpected status: %+v", st)
	}
	if peers, ok := m.Peers("test"); !ok || len(peers) != 1 {
		t.Errorf("Expected one peer, got %v %v", peers, ok)
	}
	if !m.Disconnect("test", "N0CALL") {
		t.Error("Expected Disconnect to be routed")
	}
	if all := m.AllStatus(); len(all) != 1 {
		t.Errorf("Expected 1 status, got %d", len(all))
	}
}

func TestManager_UnknownMode(t *testing.T) {
	m := NewManager()

	st := m.Status("dstar")
	if st.Mode != "Unknown" || st.Status != "Error" {
		t.Errorf("Expected Unknown/Error, got %+v", st)
	}
	if m.Disconnect("dstar", "N0CALL") || m.Block("dstar", "N0CALL") || m.UnBlock("dstar", "N0CALL") {
		t.Error("Expected operations on unknown mode to fail")
	}
	if _, ok := m.Peers("dstar"); ok {
		t.Error("Expected Peers on unknown mode to fail")
	}
}
