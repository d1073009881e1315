package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Validate reports why a candidate is not deliverable, or nil when it is.
// A missing is_trashed field reads as not trashed.
func Validate(c Candidate) *ValidationError {
	id, _ := c["id"].(string)
	if id == "" {
		return &ValidationError{Reason: "missing id"}
	}
	if url, _ := c["audio_url"].(string); url == "" {
		return &ValidationError{Reason: "missing audio_url"}
	}
	if status, _ := c["status"].(string); status != StatusComplete {
		return &ValidationError{Reason: fmt.Sprintf("status is %q", status)}
	}
	if trashed, _ := c["is_trashed"].(bool); trashed {
		return &ValidationError{Reason: "clip is trashed"}
	}
	return nil
}

// Normalize converts a validated candidate into a delivery record
func Normalize(c Candidate, source string, now time.Time) *Record {
	id, _ := c["id"].(string)
	audioURL, _ := c["audio_url"].(string)
	videoURL, _ := c["video_url"].(string)
	imageURL, _ := c["image_url"].(string)

	return &Record{
		ID:        id,
		Title:     titleOf(c, id),
		AudioURL:  audioURL,
		VideoURL:  videoURL,
		ImageURL:  imageURL,
		Tags:      tagsOf(c),
		Duration:  durationOf(c),
		Source:    source,
		CreatedAt: createdAtOf(c, now),
	}
}

// titleOf resolves the record title, falling back to a placeholder
// derived from the clip ID when no usable title is present.
func titleOf(c Candidate, id string) string {
	title, _ := c["title"].(string)
	if title == "" {
		title, _ = c["name"].(string)
	}
	title = strings.TrimSpace(norm.NFC.String(strings.ToValidUTF8(title, "")))
	if title == "" {
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		title = "Untitled " + short
	}
	return title
}

func tagsOf(c Candidate) string {
	if tags := joinTags(c["tags"]); tags != "" {
		return tags
	}
	if meta, ok := c["metadata"].(map[string]any); ok {
		return joinTags(meta["tags"])
	}
	return ""
}

func joinTags(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func durationOf(c Candidate) float64 {
	if d := asFloat(c["duration"]); d > 0 {
		return d
	}
	if meta, ok := c["metadata"].(map[string]any); ok {
		return asFloat(meta["duration"])
	}
	return 0
}

func asFloat(v any) float64 {
	switch d := v.(type) {
	case float64:
		return d
	case int:
		return float64(d)
	case json.Number:
		f, _ := d.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(d, 64)
		return f
	}
	return 0
}

func createdAtOf(c Candidate, now time.Time) time.Time {
	if s, _ := c["created_at"].(string); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return now
}
