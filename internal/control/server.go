package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/health"
	"github.com/mikey/clip-relay/internal/metrics"
	"github.com/mikey/clip-relay/internal/ports"
)

// Server exposes the relay's control actions over HTTP
type Server struct {
	listenAddr string
	pipeline   *core.Pipeline
	replayer   *core.Replayer
	state      *core.State
	monitor    *health.Monitor
	tap        ports.Tap
	metrics    *metrics.Metrics
	logger     *zap.Logger
	logLevel   zap.AtomicLevel
	feedURL    string
	server     *http.Server
}

// NewServer creates a new control server
func NewServer(
	listenAddr string,
	pipeline *core.Pipeline,
	replayer *core.Replayer,
	state *core.State,
	monitor *health.Monitor,
	tapPort ports.Tap,
	m *metrics.Metrics,
	logger *zap.Logger,
	logLevel zap.AtomicLevel,
	feedURL string,
) *Server {
	return &Server{
		listenAddr: listenAddr,
		pipeline:   pipeline,
		replayer:   replayer,
		state:      state,
		monitor:    monitor,
		tap:        tapPort,
		metrics:    m,
		logger:     logger,
		logLevel:   logLevel,
		feedURL:    feedURL,
	}
}

// Routes builds the control router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/actions/rescan", s.handleRescan)
		r.Post("/actions/replay", s.handleReplay)
		r.Post("/actions/clear-sent", s.handleClearSent)
		r.Post("/actions/health-check", s.handleHealthCheck)
		r.Post("/actions/debug", s.handleDebugToggle)
		r.Get("/stats", s.handleStats)
		r.Get("/failed/export", s.handleExport)
		r.Post("/inject", s.handleInject)
	})

	return r
}

// Start starts the control server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Routes(),
	}

	s.logger.Info("Control server starting", zap.String("address", s.listenAddr))

	// Start the server in a goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Control server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the control server
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleRescan fetches the configured feed through the tap client; the
// capturing transport picks up any clips in the response.
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if s.feedURL == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "no rescan feed URL configured")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.feedURL, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := s.tap.Client().Do(req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("feed request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("feed read failed: %v", err))
		return
	}

	s.logger.Info("Rescan triggered",
		zap.String("feed_url", s.feedURL),
		zap.Int("feed_status", resp.StatusCode))
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "rescan triggered",
		"feed_status": resp.StatusCode,
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	queued, err := s.state.FailedCount(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		if _, err := s.replayer.ReplayAll(context.Background()); err != nil {
			s.logger.Error("Replay failed", zap.Error(err))
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "replay started",
		"queued": queued,
	})
}

func (s *Server) handleClearSent(w http.ResponseWriter, r *http.Request) {
	count, err := s.state.SentCount(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.state.ClearSent(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("Cleared sent markers", zap.Int("count", count))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cleared": count,
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	result := s.monitor.Check(r.Context())
	status := http.StatusOK
	if !result.Healthy {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleDebugToggle(w http.ResponseWriter, r *http.Request) {
	var enabled bool
	if s.logLevel.Level() == zapcore.DebugLevel {
		s.logLevel.SetLevel(zapcore.InfoLevel)
	} else {
		s.logLevel.SetLevel(zapcore.DebugLevel)
		enabled = true
	}

	s.logger.Info("Debug logging toggled", zap.Bool("enabled", enabled))
	s.writeJSON(w, http.StatusOK, map[string]any{"debug": enabled})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.state.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sentCount, err := s.state.SentCount(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	failedCount, err := s.state.FailedCount(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	uptime := ""
	if !st.ProcessStart.IsZero() {
		uptime = time.Since(st.ProcessStart).Round(time.Second).String()
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_sent":    st.TotalSent,
		"total_failed":  st.TotalFailed,
		"last_sync":     st.LastSync,
		"process_start": st.ProcessStart,
		"uptime":        uptime,
		"sent_markers":  sentCount,
		"failed_queue":  failedCount,
		"skipped":       s.pipeline.Skipped(),
		"endpoint":      s.monitor.Last(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.replayer.Export(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("failed-queue-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := s.pipeline.Inject(r.Context(), req.ID)
	if errors.Is(err, core.ErrAlreadyDelivered) {
		s.writeError(w, http.StatusConflict, "clip already delivered")
		return
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		s.writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"record": record,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
