// Package transport abstracts the outbound carrier messaging API. The
// outbox treats Send as a blocking call with its own timeout; a timeout
// with unknown outcome counts as a failure and the message is retried
// (duplicate SMS beats lost SMS).
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dahamkakooza/agrogram-gateway/internal/config"
)

// Transport delivers one message to one destination address.
type Transport interface {
	Send(ctx context.Context, to, body string) error
}

// New builds the transport selected by config ("http" or "log").
func New(cfg config.TransportConfig, senderID string) Transport {
	if cfg.Mode == "http" {
		return &HTTPTransport{
			url:      cfg.URL,
			apiKey:   cfg.APIKey,
			timeout:  cfg.Timeout.Std(),
			senderID: senderID,
			http:     &http.Client{},
		}
	}
	return &LogTransport{}
}

// HTTPTransport posts messages to a carrier messaging API.
type HTTPTransport struct {
	url      string
	apiKey   string
	timeout  time.Duration
	senderID string
	http     *http.Client
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

func (t *HTTPTransport) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendRequest{To: to, From: t.senderID, Body: body})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("carrier send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("carrier send: status %d", resp.StatusCode)
	}
	return nil
}

// LogTransport logs messages instead of sending them. Dev/test mode.
type LogTransport struct{}

func (t *LogTransport) Send(ctx context.Context, to, body string) error {
	slog.Info("outbound message (log transport)", "to", to, "body", body)
	return nil
}
