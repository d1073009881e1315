package tap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Proxy hosts the tap as a reverse proxy in front of the application's
// API origin. Pointing the app's API base URL at the proxy routes every
// response through the capturing transport.
type Proxy struct {
	listenAddr string
	upstream   *url.URL
	transport  *Transport
	logger     *zap.Logger
	server     *http.Server
}

// NewProxy creates a new tap proxy
func NewProxy(listenAddr string, upstream string, transport *Transport, logger *zap.Logger) (*Proxy, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %q", upstream)
	}

	return &Proxy{
		listenAddr: listenAddr,
		upstream:   u,
		transport:  transport,
		logger:     logger,
	}, nil
}

// Start starts the proxy server
func (p *Proxy) Start() error {
	proxy := httputil.NewSingleHostReverseProxy(p.upstream)
	proxy.Transport = p.transport

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = p.upstream.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		p.logger.Error("Proxy request failed",
			zap.String("url", r.URL.String()),
			zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}

	p.server = &http.Server{
		Addr:    p.listenAddr,
		Handler: proxy,
	}

	p.logger.Info("Traffic tap starting",
		zap.String("address", p.listenAddr),
		zap.String("upstream", p.upstream.String()))

	// Start the server in a goroutine
	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.logger.Error("Tap server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the proxy server
func (p *Proxy) Stop() error {
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.server.Shutdown(ctx)
	}
	return nil
}

// Client returns an HTTP client routed through the capturing transport
func (p *Proxy) Client() *http.Client {
	return &http.Client{Transport: p.transport}
}
