package core

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// ReplayResult summarizes one pass over the failed queue
type ReplayResult struct {
	Replayed  int `json:"replayed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Replayer re-delivers parked records from the failed queue
type Replayer struct {
	engine    *Engine
	state     *State
	notifier  Notifier
	logger    *zap.Logger
	itemDelay time.Duration
	interval  time.Duration
	stopCh    chan struct{}
}

// NewReplayer creates a new replayer. itemDelay spaces out consecutive
// redeliveries; a positive interval enables periodic replay.
func NewReplayer(
	engine *Engine,
	state *State,
	notifier Notifier,
	logger *zap.Logger,
	itemDelay time.Duration,
	interval time.Duration,
) *Replayer {
	return &Replayer{
		engine:    engine,
		state:     state,
		notifier:  notifier,
		logger:    logger,
		itemDelay: itemDelay,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// ReplayAll walks a snapshot of the failed queue and re-delivers each
// record in order. Counts reflect the immediate attempt per record;
// failed attempts re-enter the engine's retry chain in the background.
func (r *Replayer) ReplayAll(ctx context.Context) (ReplayResult, error) {
	items, err := r.state.FailedItems(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	if len(items) == 0 {
		r.logger.Info("Failed queue is empty, nothing to replay")
		return ReplayResult{}, nil
	}

	r.logger.Info("Replaying failed queue", zap.Int("count", len(items)))
	result := ReplayResult{Replayed: len(items)}
	for i, item := range items {
		if i > 0 && r.itemDelay > 0 {
			select {
			case <-time.After(r.itemDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		record := item.Record
		if err := r.engine.Deliver(ctx, &record); err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	r.notifier.ReplayCompleted(result.Succeeded, result.Failed)
	r.logger.Info("Replay finished",
		zap.Int("replayed", result.Replayed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result, nil
}

// Export serializes the current failed queue for download
func (r *Replayer) Export(ctx context.Context) ([]byte, error) {
	items, err := r.state.FailedItems(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []FailedItem{}
	}
	return json.MarshalIndent(items, "", "  ")
}

// Start launches the periodic replay task when an interval is configured
func (r *Replayer) Start() {
	if r.interval <= 0 {
		return
	}
	go r.startReplayTask()
}

func (r *Replayer) startReplayTask() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.ReplayAll(context.Background()); err != nil {
				r.logger.Error("Failed to replay failed queue", zap.Error(err))
			}
		case <-r.stopCh:
			return
		}
	}
}

// Stop stops the periodic replay task
func (r *Replayer) Stop() {
	close(r.stopCh)
}
