package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/clip-relay/internal/metrics"
)

// Engine delivers records to the webhook endpoint with bounded retries.
// A record that exhausts its attempts is parked in the failed queue, and
// a record that succeeds is marked sent so it is never recorded twice.
type Engine struct {
	sender     Sender
	state      *State
	notifier   Notifier
	logger     *zap.Logger
	metrics    *metrics.Metrics
	maxRetries int
	baseDelay  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewEngine creates a new delivery engine
func NewEngine(
	sender Sender,
	state *State,
	notifier Notifier,
	logger *zap.Logger,
	m *metrics.Metrics,
	maxRetries int,
	baseDelay time.Duration,
) *Engine {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Engine{
		sender:     sender,
		state:      state,
		notifier:   notifier,
		logger:     logger,
		metrics:    m,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Deliver attempts delivery of a record. On failure it schedules retries
// in the background and returns the first attempt's error.
func (e *Engine) Deliver(ctx context.Context, record *Record) error {
	return e.deliver(ctx, record, 1)
}

// Submit queues a record for delivery without waiting for the outcome
func (e *Engine) Submit(record *Record) {
	if !e.track() {
		return
	}
	go func() {
		defer e.wg.Done()
		_ = e.deliver(context.Background(), record, 1)
	}()
}

// Close stops new background work and waits for in-flight deliveries.
// Retries whose timers have not fired yet are abandoned.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) deliver(ctx context.Context, record *Record, attempt int) error {
	sent, err := e.state.HasSent(ctx, record.ID)
	if err != nil {
		// Deliver anyway rather than stall the pipeline on a state error
		e.logger.Error("Failed to read sent markers",
			zap.Error(err),
			zap.String("clip_id", record.ID))
	} else if sent {
		e.logger.Debug("Skipping already delivered clip", zap.String("clip_id", record.ID))
		return nil
	}

	attemptID := uuid.New().String()
	e.logger.Info("Delivering clip to webhook",
		zap.String("clip_id", record.ID),
		zap.String("title", record.Title),
		zap.String("attempt_id", attemptID),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", e.maxRetries))

	start := time.Now()
	err = e.sender.Send(ctx, record)
	e.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		e.finishSuccess(ctx, record)
		return nil
	}

	e.logger.Warn("Webhook delivery failed",
		zap.String("clip_id", record.ID),
		zap.String("attempt_id", attemptID),
		zap.Int("attempt", attempt),
		zap.Error(err))

	if attempt < e.maxRetries {
		e.scheduleRetry(record, attempt)
	} else {
		e.park(ctx, record, err)
	}
	return err
}

func (e *Engine) finishSuccess(ctx context.Context, record *Record) {
	now := time.Now()
	if err := e.state.MarkSent(ctx, record.ID, record.Title, now); err != nil {
		e.logger.Error("Failed to record sent marker",
			zap.Error(err),
			zap.String("clip_id", record.ID))
	}
	if err := e.state.UpdateStats(ctx, func(st *Stats) {
		st.TotalSent++
		st.LastSync = now
	}); err != nil {
		e.logger.Error("Failed to update stats", zap.Error(err))
	}
	if removed, err := e.state.RemoveFailed(ctx, record.ID); err != nil {
		e.logger.Error("Failed to prune failed queue",
			zap.Error(err),
			zap.String("clip_id", record.ID))
	} else if removed {
		e.refreshQueueDepth(ctx)
	}
	e.metrics.DeliveriesTotal.WithLabelValues("success").Inc()
	e.notifier.DeliverySucceeded(record)
	e.logger.Info("Clip delivered",
		zap.String("clip_id", record.ID),
		zap.String("title", record.Title))
}

func (e *Engine) scheduleRetry(record *Record, attempt int) {
	delay := e.backoffDelay(attempt)
	e.metrics.DeliveriesTotal.WithLabelValues("retry").Inc()
	e.logger.Info("Scheduling delivery retry",
		zap.String("clip_id", record.ID),
		zap.Int("next_attempt", attempt+1),
		zap.Duration("delay", delay))
	time.AfterFunc(delay, func() {
		if !e.track() {
			return
		}
		defer e.wg.Done()
		_ = e.deliver(context.Background(), record, attempt+1)
	})
}

// backoffDelay doubles the base delay for each completed attempt
func (e *Engine) backoffDelay(attempt int) time.Duration {
	return e.baseDelay << (attempt - 1)
}

func (e *Engine) park(ctx context.Context, record *Record, cause error) {
	item := FailedItem{
		Record:      *record,
		FailureCode: FailureCodeFrom(cause),
		FailedAt:    time.Now(),
	}
	inserted, err := e.state.ParkFailed(ctx, item)
	if err != nil {
		e.logger.Error("Failed to park record",
			zap.Error(err),
			zap.String("clip_id", record.ID))
	} else if !inserted {
		e.logger.Debug("Clip already parked", zap.String("clip_id", record.ID))
	}
	if err := e.state.UpdateStats(ctx, func(st *Stats) {
		st.TotalFailed++
	}); err != nil {
		e.logger.Error("Failed to update stats", zap.Error(err))
	}
	e.refreshQueueDepth(ctx)
	e.metrics.DeliveriesTotal.WithLabelValues("parked").Inc()
	e.notifier.DeliveryFailed(record, item.FailureCode)
	e.logger.Warn("Parked clip after exhausting retries",
		zap.String("clip_id", record.ID),
		zap.Int("failure_code", item.FailureCode),
		zap.Int("attempts", e.maxRetries))
}

// track registers background work, refusing after Close
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *Engine) refreshQueueDepth(ctx context.Context) {
	if count, err := e.state.FailedCount(ctx); err == nil {
		e.metrics.FailedQueueDepth.Set(float64(count))
	}
}
