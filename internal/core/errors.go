package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by state stores when a key has no value
var ErrNotFound = errors.New("not found")

// ErrAlreadyDelivered is returned when a clip already has a sent marker
var ErrAlreadyDelivered = errors.New("clip already delivered")

// ValidationError describes why a candidate was rejected before delivery
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid candidate: %s", e.Reason)
}

// FailureKind classifies a delivery failure
type FailureKind int

const (
	// FailureStatus means the endpoint answered with a non-2xx status
	FailureStatus FailureKind = iota
	// FailureNetwork means the request never produced a response
	FailureNetwork
	// FailureTimeout means the request exceeded its deadline
	FailureTimeout
)

// DeliveryError describes a failed webhook attempt
type DeliveryError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	switch e.Kind {
	case FailureStatus:
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	case FailureTimeout:
		return fmt.Sprintf("webhook request timed out: %v", e.Err)
	default:
		return fmt.Sprintf("webhook request failed: %v", e.Err)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// FailureCode returns the code stored on a parked record: the HTTP status
// for status failures, 0 for network errors and -1 for timeouts.
func (e *DeliveryError) FailureCode() int {
	switch e.Kind {
	case FailureStatus:
		return e.StatusCode
	case FailureTimeout:
		return -1
	default:
		return 0
	}
}

// FailureCodeFrom extracts a failure code from any delivery error
func FailureCodeFrom(err error) int {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.FailureCode()
	}
	return 0
}
