package tap

import (
	"net/http"

	"go.uber.org/zap"
)

// ClientTap runs the tap without a listener. It is used when nothing
// needs to be proxied and the relay polls the API itself through the
// instrumented client.
type ClientTap struct {
	transport *Transport
	logger    *zap.Logger
}

// NewClientTap creates a new client-mode tap
func NewClientTap(transport *Transport, logger *zap.Logger) *ClientTap {
	return &ClientTap{
		transport: transport,
		logger:    logger,
	}
}

// Start starts the tap
func (c *ClientTap) Start() error {
	c.logger.Info("Traffic tap running in client mode")
	return nil
}

// Stop stops the tap
func (c *ClientTap) Stop() error {
	return nil
}

// Client returns an HTTP client routed through the capturing transport
func (c *ClientTap) Client() *http.Client {
	return &http.Client{Transport: c.transport}
}
