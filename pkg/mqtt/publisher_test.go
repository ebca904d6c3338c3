package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements the parts of paho.Client the publisher uses
type fakeClient struct {
	paho.Client

	connectErr error
	opts       *paho.ClientOptions

	mu           sync.Mutex
	connected    bool
	disconnected bool
	messages     []published
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return doneToken{err: c.connectErr}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func newTestPublisher(t *testing.T, cfg Config, fake *fakeClient) *Publisher {
	t.Helper()
	pub := New(cfg, logger.New(logger.Config{Level: "error"}))
	pub.newClient = func(opts *paho.ClientOptions) paho.Client {
		fake.opts = opts
		return fake
	}
	return pub
}

func TestPublisher_StartWhenDisabled(t *testing.T) {
	fake := &fakeClient{}
	pub := newTestPublisher(t, Config{Enabled: false}, fake)

	if err := pub.Start(context.Background()); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if fake.opts != nil {
		t.Error("Expected no client to be created when disabled")
	}

	// Reports are dropped without a client
	pub.Send(report.Report{Type: report.CallStart})
	pub.Stop()
}

func TestPublisher_StartConnects(t *testing.T) {
	fake := &fakeClient{}
	pub := newTestPublisher(t, Config{
		Enabled:  true,
		Broker:   "tcp://localhost:1883",
		ClientID: "reflector-test",
		Username: "user",
	}, fake)

	if err := pub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if fake.opts.ClientID != "reflector-test" || fake.opts.Username != "user" {
		t.Errorf("Unexpected client options: %+v", fake.opts)
	}
	if len(fake.opts.Servers) != 1 || fake.opts.Servers[0].Host != "localhost:1883" {
		t.Errorf("Expected broker to be configured, got %v", fake.opts.Servers)
	}

	pub.Stop()
	if !fake.disconnected {
		t.Error("Expected Stop to disconnect")
	}
}

func TestPublisher_StartConnectError(t *testing.T) {
	fake := &fakeClient{connectErr: errors.New("connection refused")}
	pub := newTestPublisher(t, Config{Enabled: true, Broker: "tcp://localhost:1883"}, fake)

	if err := pub.Start(context.Background()); err == nil {
		t.Fatal("Expected connect error")
	}
	pub.Send(report.Report{Type: report.CallStart})
	if len(fake.Messages()) != 0 {
		t.Error("Expected nothing to be published without a connection")
	}
}

func TestPublisher_SendPublishesReports(t *testing.T) {
	fake := &fakeClient{}
	pub := newTestPublisher(t, Config{Enabled: true, TopicPrefix: "reflector/nexus/", QoS: 1, Retained: true}, fake)
	if err := pub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pub.Send(report.Report{
		Mode:     report.ModeYSF,
		Type:     report.CallEnd,
		SrcID:    "KO4UYJ",
		DstID:    "ALL",
		Peer:     "KO4UYJ",
		Duration: 1500 * time.Millisecond,
		Frames:   15,
	})
	pub.Send(report.Report{
		Mode:  report.ModeM17,
		Type:  report.Connection,
		Extra: `[{"CallSign":"N0CALL","Module":"A","Address":"192.0.2.1:17000","Transmitting":false}]`,
	})

	msgs := fake.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].topic != "reflector/nexus/ysf/calls/end" || msgs[0].qos != 1 || !msgs[0].retained {
		t.Errorf("Unexpected first message: %+v", msgs[0])
	}

	var ev Event
	if err := json.Unmarshal(msgs[0].payload, &ev); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	if ev.Mode != "YSF" || ev.Type != "call_end" || ev.SrcID != "KO4UYJ" || ev.Duration != 1.5 || ev.Frames != 15 {
		t.Errorf("Unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	if msgs[1].topic != "reflector/nexus/m17/peers" {
		t.Errorf("Expected roster topic, got %s", msgs[1].topic)
	}
	var roster Event
	if err := json.Unmarshal(msgs[1].payload, &roster); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	var peers []map[string]interface{}
	if err := json.Unmarshal(roster.Peers, &peers); err != nil || len(peers) != 1 || peers[0]["CallSign"] != "N0CALL" {
		t.Errorf("Expected roster to be embedded as JSON, got %s (%v)", roster.Peers, err)
	}
}

// TestTopicFormat tests topic formatting
func TestTopicFormat(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		suffix   string
		expected string
	}{
		{
			name:     "simple topic",
			prefix:   "reflector/nexus",
			suffix:   "p25/calls/start",
			expected: "reflector/nexus/p25/calls/start",
		},
		{
			name:     "trailing slash in prefix",
			prefix:   "reflector/nexus/",
			suffix:   "p25/peers",
			expected: "reflector/nexus/p25/peers",
		},
		{
			name:     "empty prefix",
			prefix:   "",
			suffix:   "p25/peers",
			expected: "p25/peers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := New(Config{TopicPrefix: tt.prefix}, nil)
			topic := pub.formatTopic(tt.suffix)
			if topic != tt.expected {
				t.Errorf("Expected topic %s, got %s", tt.expected, topic)
			}
		})
	}
}

func TestTopicSuffix(t *testing.T) {
	tests := map[report.Type]string{
		report.CallStart:     "calls/start",
		report.CallEnd:       "calls/end",
		report.Connection:    "peers",
		report.NewConnection: "peers/connect",
		report.Unlink:        "peers/disconnect",
		report.CallAlert:     "events",
	}
	for typ, want := range tests {
		if got := topicSuffix(typ); got != want {
			t.Errorf("topicSuffix(%v) = %s, want %s", typ, got, want)
		}
	}
}
