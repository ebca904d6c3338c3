package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
)

// WebhookConfig holds the outbound reporter settings
type WebhookConfig struct {
	Enabled bool
	Host    string
	Port    int
	Timeout time.Duration
}

// Webhook posts each report as JSON to http://host:port/. Delivery runs in
// its own goroutine; failures are logged and dropped.
type Webhook struct {
	config WebhookConfig
	url    string
	client *http.Client
	log    *logger.Logger
}

// NewWebhook creates a webhook reporter
func NewWebhook(cfg WebhookConfig, log *logger.Logger) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	w := &Webhook{
		config: cfg,
		url:    fmt.Sprintf("http://%s/", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithComponent("reporter"),
	}
	if cfg.Enabled {
		w.log.Info("Reporter enabled", logger.String("url", w.url))
	}
	return w
}

// Send implements Sink
func (w *Webhook) Send(r Report) {
	if !w.config.Enabled {
		return
	}
	if r.DateTime.IsZero() {
		r.DateTime = time.Now()
	}
	go w.post(r)
}

func (w *Webhook) post(r Report) {
	body, err := json.Marshal(r)
	if err != nil {
		w.log.Error("Failed to encode report", logger.Error(err))
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.log.Warn("Failed to send report", logger.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.log.Warn("Reporter rejected report",
			logger.Int("status", resp.StatusCode),
			logger.String("type", r.Type.String()))
	}
}
