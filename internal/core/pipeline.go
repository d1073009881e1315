package core

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/clip-relay/internal/metrics"
)

// Pipeline turns captured response bodies into delivery submissions
type Pipeline struct {
	engine           *Engine
	state            *State
	logger           *zap.Logger
	metrics          *metrics.Metrics
	audioURLTemplate string

	skipped atomic.Int64
}

// NewPipeline creates a new capture pipeline
func NewPipeline(
	engine *Engine,
	state *State,
	logger *zap.Logger,
	m *metrics.Metrics,
	audioURLTemplate string,
) *Pipeline {
	return &Pipeline{
		engine:           engine,
		state:            state,
		logger:           logger,
		metrics:          m,
		audioURLTemplate: audioURLTemplate,
	}
}

// ProcessBody parses a response body, validates and dedupes the clip
// candidates found in it and submits the new ones for delivery.
// Returns the number of records submitted.
func (p *Pipeline) ProcessBody(ctx context.Context, body any, source string) int {
	candidates := Parse(body)
	if len(candidates) == 0 {
		return 0
	}

	submitted := 0
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if verr := Validate(candidate); verr != nil {
			p.skip("invalid", verr.Reason, candidate)
			continue
		}
		id, _ := candidate["id"].(string)
		if _, dup := seen[id]; dup {
			p.skip("duplicate", "repeated in batch", candidate)
			continue
		}
		seen[id] = struct{}{}

		sent, err := p.state.HasSent(ctx, id)
		if err != nil {
			p.logger.Error("Failed to read sent markers",
				zap.Error(err),
				zap.String("clip_id", id))
		} else if sent {
			p.skip("duplicate", "already delivered", candidate)
			continue
		}

		record := Normalize(candidate, source, time.Now())
		p.engine.Submit(record)
		submitted++
	}

	if submitted > 0 {
		p.logger.Info("Submitted clips for delivery",
			zap.Int("count", submitted),
			zap.Int("candidates", len(candidates)),
			zap.String("source", source))
	}
	return submitted
}

// Inject builds a record for a known clip ID from the configured audio
// URL template and submits it for delivery. Returns ErrAlreadyDelivered
// when the clip has a sent marker.
func (p *Pipeline) Inject(ctx context.Context, id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &ValidationError{Reason: "missing id"}
	}

	sent, err := p.state.HasSent(ctx, id)
	if err != nil {
		return nil, err
	}
	if sent {
		return nil, ErrAlreadyDelivered
	}

	candidate := Candidate{
		"id":        id,
		"status":    StatusComplete,
		"audio_url": strings.ReplaceAll(p.audioURLTemplate, "{id}", id),
	}
	record := Normalize(candidate, SourceManual, time.Now())
	p.engine.Submit(record)

	p.logger.Info("Injected clip for delivery",
		zap.String("clip_id", id),
		zap.String("audio_url", record.AudioURL))
	return record, nil
}

// Skipped returns the number of candidates dropped since startup
func (p *Pipeline) Skipped() int64 {
	return p.skipped.Load()
}

func (p *Pipeline) skip(reason string, detail string, candidate Candidate) {
	p.skipped.Add(1)
	p.metrics.SkippedTotal.WithLabelValues(reason).Inc()
	id, _ := candidate["id"].(string)
	p.logger.Debug("Skipping candidate",
		zap.String("clip_id", id),
		zap.String("reason", reason),
		zap.String("detail", detail))
}
