package core

import (
	"context"
	"time"
)

// StateStore defines the interface for the persistent relay state backends
type StateStore interface {
	// Get retrieves the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under key
	Set(ctx context.Context, key string, value []byte) error

	// Update applies fn to the current value of key and stores the result
	// atomically. fn receives nil when the key has no value yet.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error

	// Close releases the backing resources
	Close() error
}

// Sender defines the interface for pushing records to the webhook endpoint
type Sender interface {
	// Send delivers a single record. A non-nil error is a *DeliveryError.
	Send(ctx context.Context, record *Record) error

	// Probe sends a health check payload to the endpoint
	Probe(ctx context.Context, at time.Time) error
}

// Notifier defines the interface for delivery outcome notifications
type Notifier interface {
	// DeliverySucceeded reports a record accepted by the endpoint
	DeliverySucceeded(record *Record)

	// DeliveryFailed reports a record parked after exhausting retries
	DeliveryFailed(record *Record, failureCode int)

	// ReplayCompleted reports the outcome of a failed queue replay
	ReplayCompleted(succeeded int, failed int)
}
