package notify

import (
	"github.com/mikey/clip-relay/internal/core"
)

// NoopNotifier discards all notifications
type NoopNotifier struct{}

// NewNoopNotifier creates a notifier that does nothing
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

// DeliverySucceeded does nothing
func (n *NoopNotifier) DeliverySucceeded(_ *core.Record) {}

// DeliveryFailed does nothing
func (n *NoopNotifier) DeliveryFailed(_ *core.Record, _ int) {}

// ReplayCompleted does nothing
func (n *NoopNotifier) ReplayCompleted(_ int, _ int) {}
