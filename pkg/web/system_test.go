package web

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestAPI_System(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/api/system", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body systemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Goroutines <= 0 {
		t.Errorf("Expected a goroutine count, got %d", body.Goroutines)
	}
	if body.Uptime == "" {
		t.Error("Expected process uptime")
	}
	if body.LoadStatus == "" {
		t.Error("Expected a load status")
	}
	if body.Build.Version == "" || body.Build.Commit == "" {
		t.Errorf("Expected build info, got %+v", body.Build)
	}
}

func TestLoadStatus(t *testing.T) {
	tests := []struct {
		avg   float64
		cores int
		want  string
	}{
		{0.5, 4, "ok"},
		{4, 4, "warning"},
		{8.5, 4, "critical"},
		{1, 0, "unknown"},
	}
	for _, tt := range tests {
		if got := loadStatus(tt.avg, tt.cores); got != tt.want {
			t.Errorf("loadStatus(%v, %d): expected %s, got %s", tt.avg, tt.cores, tt.want, got)
		}
	}
}
