package ports

import (
	"net/http"
)

// Tap defines the interface for the traffic interception layer
type Tap interface {
	// Start starts the tap
	Start() error

	// Stop stops the tap
	Stop() error

	// Client returns an HTTP client whose traffic flows through the tap
	Client() *http.Client
}
