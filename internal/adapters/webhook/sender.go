package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mikey/clip-relay/internal/core"
	"go.uber.org/zap"
)

// Client delivers records to the configured webhook endpoint
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new webhook client
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Send delivers a single record as a JSON POST
func (c *Client) Send(ctx context.Context, record *core.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return &core.DeliveryError{
			Kind: core.FailureNetwork,
			Err:  fmt.Errorf("failed to encode record: %w", err),
		}
	}
	return c.post(ctx, payload)
}

// Probe sends a health check payload to the endpoint
func (c *Client) Probe(ctx context.Context, at time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"health_check": true,
		"timestamp":    at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return &core.DeliveryError{Kind: core.FailureNetwork, Err: err}
	}
	return c.post(ctx, payload)
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &core.DeliveryError{Kind: core.FailureNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &core.DeliveryError{
			Kind:       core.FailureStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return nil
}

// classify maps transport errors to delivery failure kinds
func classify(err error) *core.DeliveryError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &core.DeliveryError{Kind: core.FailureTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.DeliveryError{Kind: core.FailureTimeout, Err: err}
	}
	return &core.DeliveryError{Kind: core.FailureNetwork, Err: err}
}
