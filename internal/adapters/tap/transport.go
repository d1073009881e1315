package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/metrics"
	"go.uber.org/zap"
)

// Sink consumes decoded response bodies captured by the tap
type Sink interface {
	// ProcessBody extracts and submits clips from a decoded body,
	// returning the number of records submitted
	ProcessBody(ctx context.Context, body any, source string) int
}

// Transport is an http.RoundTripper that inspects traffic passing
// through it. Responses on capture-listed URLs have their bodies copied
// as the caller reads them and handed to the sink once fully consumed,
// so the application sees its traffic unchanged. Requests to blocked
// hosts are answered locally and never reach the network.
type Transport struct {
	base     http.RoundTripper
	matcher  *Matcher
	sink     Sink
	logger   *zap.Logger
	metrics  *metrics.Metrics
	maxBytes int
}

// NewTransport wraps base with capture and blocking behavior.
// A nil base falls back to http.DefaultTransport.
func NewTransport(
	base http.RoundTripper,
	matcher *Matcher,
	sink Sink,
	logger *zap.Logger,
	m *metrics.Metrics,
	maxBytes int,
) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &Transport{
		base:     base,
		matcher:  matcher,
		sink:     sink,
		logger:   logger,
		metrics:  m,
		maxBytes: maxBytes,
	}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.matcher.Blocked(req.URL) {
		t.metrics.TapRequestsTotal.WithLabelValues("blocked").Inc()
		t.logger.Debug("Blocking tracker request", zap.String("url", req.URL.String()))
		return blockedResponse(req), nil
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if t.matcher.Captures(req.URL) {
		t.metrics.TapRequestsTotal.WithLabelValues("captured").Inc()
		resp.Body = t.captureBody(resp.Body, req.URL.String())
	} else {
		t.metrics.TapRequestsTotal.WithLabelValues("passed").Inc()
	}

	return resp, nil
}

// blockedResponse synthesizes an empty success so callers of blocked
// hosts carry on as if the request had been served.
func blockedResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "204 No Content",
		StatusCode: http.StatusNoContent,
		Proto:      req.Proto,
		ProtoMajor: req.ProtoMajor,
		ProtoMinor: req.ProtoMinor,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}
}

func (t *Transport) captureBody(body io.ReadCloser, urlStr string) io.ReadCloser {
	return &teeBody{
		inner:    body,
		maxBytes: t.maxBytes,
		onDone: func(data []byte, truncated bool) {
			if truncated {
				t.logger.Debug("Skipping capture, body exceeded size limit",
					zap.String("url", urlStr),
					zap.Int("max_bytes", t.maxBytes))
				return
			}
			if len(data) == 0 {
				return
			}
			go t.inspect(data, urlStr)
		},
	}
}

// inspect runs off the request path so the pipeline can never delay or
// break the application's own traffic.
func (t *Transport) inspect(data []byte, urlStr string) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Recovered from panic while inspecting response",
				zap.String("url", urlStr),
				zap.Any("panic", r))
		}
	}()

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		t.logger.Debug("Captured body is not JSON",
			zap.String("url", urlStr),
			zap.Error(err))
		return
	}

	count := t.sink.ProcessBody(context.Background(), body, core.SourceIntercept)
	if count > 0 {
		t.logger.Debug("Captured clips from response",
			zap.String("url", urlStr),
			zap.Int("count", count))
	}
}

// teeBody copies bytes into a bounded side buffer as the caller reads
// them, firing onDone exactly once when the body is fully read or closed.
type teeBody struct {
	inner    io.ReadCloser
	buf      bytes.Buffer
	maxBytes int
	overflow bool
	once     sync.Once
	onDone   func(data []byte, truncated bool)
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.inner.Read(p)
	if n > 0 && !b.overflow {
		if b.buf.Len()+n > b.maxBytes {
			b.overflow = true
			b.buf.Reset()
		} else {
			b.buf.Write(p[:n])
		}
	}
	if err == io.EOF {
		b.finish()
	}
	return n, err
}

func (b *teeBody) Close() error {
	err := b.inner.Close()
	b.finish()
	return err
}

func (b *teeBody) finish() {
	b.once.Do(func() {
		b.onDone(b.buf.Bytes(), b.overflow)
	})
}
