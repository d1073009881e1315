package health

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/clip-relay/internal/core"
	"github.com/mikey/clip-relay/internal/metrics"
	"go.uber.org/zap"
)

// Result describes the outcome of one endpoint health probe
type Result struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Latency   string    `json:"latency"`
	Error     string    `json:"error,omitempty"`
}

// Monitor probes the webhook endpoint on an interval. Probes carry a
// health check payload only and never touch the failed queue or the
// delivery counters.
type Monitor struct {
	sender       core.Sender
	logger       *zap.Logger
	metrics      *metrics.Metrics
	interval     time.Duration
	startupDelay time.Duration

	mu     sync.RWMutex
	last   Result
	stopCh chan struct{}
}

// NewMonitor creates a new health monitor
func NewMonitor(
	sender core.Sender,
	logger *zap.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	startupDelay time.Duration,
) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Monitor{
		sender:       sender,
		logger:       logger,
		metrics:      m,
		interval:     interval,
		startupDelay: startupDelay,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the periodic probe task
func (m *Monitor) Start() {
	go m.startProbeTask()
}

func (m *Monitor) startProbeTask() {
	select {
	case <-time.After(m.startupDelay):
	case <-m.stopCh:
		return
	}

	m.Check(context.Background())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Check probes the endpoint once and records the result
func (m *Monitor) Check(ctx context.Context) Result {
	start := time.Now()
	err := m.sender.Probe(ctx, start)
	result := Result{
		Healthy:   err == nil,
		CheckedAt: start,
		Latency:   time.Since(start).String(),
	}

	outcome := "ok"
	if err != nil {
		result.Error = err.Error()
		outcome = "error"
		m.logger.Warn("Webhook endpoint health probe failed",
			zap.Error(err),
			zap.String("latency", result.Latency))
	} else {
		m.logger.Debug("Webhook endpoint healthy", zap.String("latency", result.Latency))
	}
	m.metrics.HealthProbesTotal.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	m.last = result
	m.mu.Unlock()

	return result
}

// Last returns the most recent probe result
func (m *Monitor) Last() Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Stop stops the probe task
func (m *Monitor) Stop() {
	close(m.stopCh)
}
