package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey/clip-relay/internal/adapters/notify"
	"github.com/mikey/clip-relay/internal/adapters/statestore"
	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/health"
	"github.com/mikey/clip-relay/internal/metrics"
)

// stubSender is a controllable core.Sender for control server tests
type stubSender struct {
	mu       sync.Mutex
	sends    int
	sendErr  error
	probeErr error
}

func (s *stubSender) Send(ctx context.Context, record *core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return s.sendErr
}

func (s *stubSender) Probe(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeErr
}

func (s *stubSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

// stubTap satisfies ports.Tap without a listener
type stubTap struct {
	client *http.Client
}

func (s *stubTap) Start() error { return nil }
func (s *stubTap) Stop() error  { return nil }

func (s *stubTap) Client() *http.Client {
	if s.client != nil {
		return s.client
	}
	return http.DefaultClient
}

type testRelay struct {
	server   *Server
	state    *core.State
	engine   *core.Engine
	sender   *stubSender
	logLevel zap.AtomicLevel
}

func newTestRelay(t *testing.T, feedURL string) *testRelay {
	t.Helper()

	sender := &stubSender{}
	m := metrics.New()
	logger := zap.NewNop()
	state := core.NewState(statestore.NewMemoryStore(), 50, 20, 0, logger)
	notifier := notify.NewNoopNotifier()
	engine := core.NewEngine(sender, state, notifier, logger, m, 3, time.Millisecond)
	t.Cleanup(engine.Close)

	pipeline := core.NewPipeline(engine, state, logger, m, "https://cdn.example.com/{id}.mp3")
	replayer := core.NewReplayer(engine, state, notifier, logger, 0, 0)
	monitor := health.NewMonitor(sender, logger, m, time.Minute, 0)
	logLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	server := NewServer("127.0.0.1:0", pipeline, replayer, state, monitor, &stubTap{}, m, logger, logLevel, feedURL)
	return &testRelay{
		server:   server,
		state:    state,
		engine:   engine,
		sender:   sender,
		logLevel: logLevel,
	}
}

func postJSON(t *testing.T, url string, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestServer_Healthz(t *testing.T) {
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, "ok", payload["status"])
}

func TestServer_Metrics(t *testing.T) {
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_Inject(t *testing.T) {
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/inject", `{"id": "clip-1"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	payload := decodeJSON(t, resp)
	record, ok := payload["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "clip-1", record["video_id"])
	assert.Equal(t, "https://cdn.example.com/clip-1.mp3", record["audio_url"])

	require.Eventually(t, func() bool {
		sent, err := relay.state.HasSent(context.Background(), "clip-1")
		return err == nil && sent
	}, 2*time.Second, 5*time.Millisecond)

	// A second injection of the same clip conflicts
	resp = postJSON(t, ts.URL+"/v1/inject", `{"id": "clip-1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_InjectRejectsBadRequests(t *testing.T) {
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/inject", `{"id": ""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/inject", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_ClearSent(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	require.NoError(t, relay.state.MarkSent(ctx, "clip-1", "One", time.Now()))
	require.NoError(t, relay.state.MarkSent(ctx, "clip-2", "Two", time.Now()))

	resp := postJSON(t, ts.URL+"/v1/actions/clear-sent", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, float64(2), payload["cleared"])

	count, err := relay.state.SentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestServer_Replay(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	_, err := relay.state.ParkFailed(ctx, core.FailedItem{
		Record:      core.Record{ID: "clip-1", Title: "One", AudioURL: "https://cdn.example.com/1.mp3"},
		FailureCode: 500,
		FailedAt:    time.Now(),
	})
	require.NoError(t, err)

	resp := postJSON(t, ts.URL+"/v1/actions/replay", `{}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, float64(1), payload["queued"])

	require.Eventually(t, func() bool {
		count, err := relay.state.FailedCount(ctx)
		return err == nil && count == 0
	}, 2*time.Second, 5*time.Millisecond, "replayed record should leave the queue")
}

func TestServer_HealthCheck(t *testing.T) {
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions/health-check", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeJSON(t, resp)
	assert.Equal(t, true, payload["healthy"])

	relay.sender.probeErr = errors.New("endpoint down")
	resp = postJSON(t, ts.URL+"/v1/actions/health-check", `{}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	payload = decodeJSON(t, resp)
	assert.Equal(t, false, payload["healthy"])
	assert.Contains(t, payload["error"], "endpoint down")
}

func TestServer_DebugToggle(t *testing.T) {
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions/debug", `{}`)
	payload := decodeJSON(t, resp)
	assert.Equal(t, true, payload["debug"])
	assert.Equal(t, zapcore.DebugLevel, relay.logLevel.Level())

	resp = postJSON(t, ts.URL+"/v1/actions/debug", `{}`)
	payload = decodeJSON(t, resp)
	assert.Equal(t, false, payload["debug"])
	assert.Equal(t, zapcore.InfoLevel, relay.logLevel.Level())
}

func TestServer_Stats(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	require.NoError(t, relay.state.InitStats(ctx, time.Now().Add(-time.Minute)))
	require.NoError(t, relay.state.UpdateStats(ctx, func(st *core.Stats) {
		st.TotalSent = 4
		st.TotalFailed = 1
	}))
	require.NoError(t, relay.state.MarkSent(ctx, "clip-1", "One", time.Now()))

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, float64(4), payload["total_sent"])
	assert.Equal(t, float64(1), payload["total_failed"])
	assert.Equal(t, float64(1), payload["sent_markers"])
	assert.Equal(t, float64(0), payload["failed_queue"])
	assert.NotEmpty(t, payload["uptime"])
}

func TestServer_Export(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	_, err := relay.state.ParkFailed(ctx, core.FailedItem{
		Record:      core.Record{ID: "clip-1", Title: "One"},
		FailureCode: 503,
		FailedAt:    time.Now(),
	})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/v1/failed/export")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), `attachment; filename="failed-queue-`))

	var items []core.FailedItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "clip-1", items[0].Record.ID)
}

func TestServer_RescanWithoutFeedURL(t *testing.T) {
	relay := newTestRelay(t, "")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions/rescan", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_RescanFetchesFeed(t *testing.T) {
	feedHits := 0
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feedHits++
		_, _ = w.Write([]byte(`{"clips": []}`))
	}))
	defer feed.Close()

	relay := newTestRelay(t, feed.URL+"/api/feed")
	ts := httptest.NewServer(relay.server.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions/rescan", `{}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	payload := decodeJSON(t, resp)
	assert.Equal(t, "rescan triggered", payload["status"])
	assert.Equal(t, float64(200), payload["feed_status"])
	assert.Equal(t, 1, feedHits)
}

func TestServer_StartAndStop(t *testing.T) {
	relay := newTestRelay(t, "")

	require.NoError(t, relay.server.Start())
	require.NoError(t, relay.server.Stop())
}
