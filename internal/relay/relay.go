// Package relay sends presence signals to the relay endpoint.
//
// One PUT per signal, no retry: the beacon reports liveness continuously,
// so a lost signal is superseded by the next one rather than replayed.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Payload is the wire-level beacon body.
type Payload struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Image       string `json:"image"`
}

// Client PUTs presence payloads to {base}/beacon.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client targeting the given relay base URL.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Send issues one PUT carrying p. A network-level failure is returned to the
// caller; the relay's response body is not interpreted and an HTTP error
// status is logged but still counts as delivered.
func (c *Client) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/beacon", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: put: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.Warn("relay: beacon rejected", "status", resp.StatusCode, "url", p.URL)
	}
	return nil
}
