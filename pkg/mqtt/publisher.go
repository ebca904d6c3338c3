package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

const connectTimeout = 10 * time.Second

// Config holds MQTT publisher configuration
type Config struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// Publisher publishes reflector reports to an MQTT broker
type Publisher struct {
	config Config
	log    *logger.Logger

	// newClient is replaced in tests
	newClient func(*paho.ClientOptions) paho.Client

	mu     sync.RWMutex
	client paho.Client
}

var _ report.Sink = (*Publisher)(nil)

// Event is the JSON payload of every published message
type Event struct {
	Mode      string          `json:"mode"`
	Type      string          `json:"type"`
	SrcID     string          `json:"src_id,omitempty"`
	DstID     string          `json:"dst_id,omitempty"`
	Peer      string          `json:"peer,omitempty"`
	StreamID  uint32          `json:"stream_id,omitempty"`
	Duration  float64         `json:"duration,omitempty"` // Seconds, call end only
	Frames    int             `json:"frames,omitempty"`
	Peers     json.RawMessage `json:"peers,omitempty"` // Connection roster
	Timestamp time.Time       `json:"timestamp"`
}

// New creates a new MQTT publisher
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &Publisher{
		config:    config,
		log:       log.WithComponent("mqtt"),
		newClient: paho.NewClient,
	}
}

// Start connects to the broker. The client reconnects on its own after a
// lost connection; ctx bounds the initial connect only.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("MQTT publisher disabled")
		return nil
	}

	p.log.Info("Starting MQTT publisher",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	opts := paho.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
	}
	if p.config.Password != "" {
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("MQTT connection lost", logger.Error(err))
	})
	opts.SetOnConnectHandler(func(paho.Client) {
		p.log.Info("MQTT connected", logger.String("broker", p.config.Broker))
	})

	client := p.newClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return fmt.Errorf("timed out connecting to MQTT broker %s", p.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// Stop disconnects from the broker
func (p *Publisher) Stop() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return
	}
	p.log.Info("Stopping MQTT publisher")
	client.Disconnect(250)
}

// Send publishes r without waiting for the broker. Reports are dropped while
// disconnected.
func (p *Publisher) Send(r report.Report) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return
	}

	topic := p.formatTopic(strings.ToLower(r.Mode.String()) + "/" + topicSuffix(r.Type))
	payload, err := p.serializeEvent(eventFromReport(r))
	if err != nil {
		p.log.Error("Failed to serialize event",
			logger.String("topic", topic),
			logger.Error(err))
		return
	}

	token := client.Publish(topic, p.config.QoS, p.config.Retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.log.Warn("Failed to publish MQTT event",
				logger.String("topic", topic),
				logger.Error(token.Error()))
		}
	}()
}

func eventFromReport(r report.Report) Event {
	ev := Event{
		Mode:      r.Mode.String(),
		Type:      r.Type.String(),
		SrcID:     r.SrcID,
		DstID:     r.DstID,
		Peer:      r.Peer,
		StreamID:  r.StreamID,
		Timestamp: r.DateTime,
	}
	if r.Type == report.CallEnd {
		ev.Duration = r.Duration.Seconds()
		ev.Frames = r.Frames
	}
	if r.Type == report.Connection && json.Valid([]byte(r.Extra)) {
		ev.Peers = json.RawMessage(r.Extra)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return ev
}

func topicSuffix(t report.Type) string {
	switch t {
	case report.CallStart:
		return "calls/start"
	case report.CallEnd:
		return "calls/end"
	case report.Connection:
		return "peers"
	case report.NewConnection:
		return "peers/connect"
	case report.Unlink:
		return "peers/disconnect"
	default:
		return "events"
	}
}

// serializeEvent serializes an event to JSON
func (p *Publisher) serializeEvent(event interface{}) ([]byte, error) {
	return json.Marshal(event)
}

// formatTopic formats a topic with the configured prefix
func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}
