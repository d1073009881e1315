package core

import (
	"time"
)

// Source values recorded on delivered records.
const (
	SourceIntercept = "intercept"
	SourceManual    = "manual"
)

// StatusComplete is the only clip status eligible for delivery.
const StatusComplete = "complete"

// State store keys for the persistent relay documents.
const (
	KeySent   = "relay:sent"
	KeyFailed = "relay:failed"
	KeyStats  = "relay:stats"
)

// Candidate is a raw clip entity as parsed from an API response body.
type Candidate map[string]any

// Record represents a clip prepared for webhook delivery
type Record struct {
	ID        string    `json:"video_id"`
	Title     string    `json:"title"`
	AudioURL  string    `json:"audio_url"`
	VideoURL  string    `json:"video_url,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Tags      string    `json:"tags,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// SentMarker records a successful delivery for a clip ID
type SentMarker struct {
	Title  string    `json:"title"`
	SentAt time.Time `json:"sent_at"`
}

// FailedItem represents a record parked after exhausting all retries
type FailedItem struct {
	Record      Record    `json:"record"`
	FailureCode int       `json:"failure_code"`
	FailedAt    time.Time `json:"failed_at"`
}

// Stats holds the relay delivery counters
type Stats struct {
	TotalSent    int64     `json:"total_sent"`
	TotalFailed  int64     `json:"total_failed"`
	LastSync     time.Time `json:"last_sync"`
	ProcessStart time.Time `json:"process_start"`
}
