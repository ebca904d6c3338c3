package report

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
)

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"p25":   ModeP25,
		"NXDN":  ModeNXDN,
		" Ysf ": ModeYSF,
		"m17":   ModeM17,
		"dmr":   ModeUnknown,
		"":      ModeUnknown,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %v, expected %v", in, got, want)
		}
	}
}

func TestFanout_StampsTimeAndForwards(t *testing.T) {
	var got []Report
	sink := SinkFunc(func(r Report) { got = append(got, r) })

	Fanout{sink, nil, sink}.Send(Report{Type: CallStart, Mode: ModeYSF})

	if len(got) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(got))
	}
	if got[0].DateTime.IsZero() {
		t.Error("Expected fanout to stamp DateTime")
	}
}

func TestReport_JSONFieldNames(t *testing.T) {
	r := Report{SrcID: "1234", DstID: "10200", Peer: "W1ABC", Mode: ModeP25, Type: CallEnd}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"SrcId", "DstId", "Peer", "Extra", "Mode", "Type", "DateTime"} {
		if _, ok := m[key]; !ok {
			t.Errorf("Expected key %s in %s", key, data)
		}
	}
	if m["Mode"] != float64(1) || m["Type"] != float64(1) {
		t.Errorf("Expected numeric mode/type, got %v/%v", m["Mode"], m["Type"])
	}
}

func TestWebhook_PostsReport(t *testing.T) {
	received := make(chan Report, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/" {
			t.Errorf("Expected POST /, got %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var rep Report
		if err := json.Unmarshal(body, &rep); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		received <- rep
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	log := logger.New(logger.Config{Level: "error"})
	wh := NewWebhook(WebhookConfig{Enabled: true, Host: host, Port: port}, log)
	wh.Send(Report{SrcID: "W1ABC", Mode: ModeM17, Type: CallStart})

	select {
	case rep := <-received:
		if rep.SrcID != "W1ABC" || rep.Mode != ModeM17 || rep.Type != CallStart {
			t.Errorf("Unexpected report: %+v", rep)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
}

func TestWebhook_DisabledAndUnreachableDoNotBlock(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})

	disabled := NewWebhook(WebhookConfig{Enabled: false, Host: "127.0.0.1", Port: 1}, log)
	unreachable := NewWebhook(WebhookConfig{Enabled: true, Host: "127.0.0.1", Port: 1, Timeout: 100 * time.Millisecond}, log)

	start := time.Now()
	for i := 0; i < 10; i++ {
		disabled.Send(Report{Type: CallStart})
		unreachable.Send(Report{Type: CallStart})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Send blocked the caller for %v", elapsed)
	}
}
