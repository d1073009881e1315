package notify

import (
	"github.com/mikey/clip-relay/internal/core"
	"go.uber.org/zap"
)

// LogNotifier reports delivery outcomes to the application log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// DeliverySucceeded reports a record accepted by the endpoint
func (n *LogNotifier) DeliverySucceeded(record *core.Record) {
	n.logger.Info("Delivery notification",
		zap.String("clip_id", record.ID),
		zap.String("title", record.Title),
		zap.String("outcome", "succeeded"))
}

// DeliveryFailed reports a record parked after exhausting retries
func (n *LogNotifier) DeliveryFailed(record *core.Record, failureCode int) {
	n.logger.Warn("Delivery notification",
		zap.String("clip_id", record.ID),
		zap.String("title", record.Title),
		zap.String("outcome", "failed"),
		zap.Int("failure_code", failureCode))
}

// ReplayCompleted reports the outcome of a failed queue replay
func (n *LogNotifier) ReplayCompleted(succeeded int, failed int) {
	n.logger.Info("Replay notification",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed))
}
