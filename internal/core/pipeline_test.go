package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/clip-relay/internal/metrics"
)

func newTestPipeline(sender Sender) (*Pipeline, *Engine, *State) {
	state := NewState(newMemStore(), 50, 20, 0, zap.NewNop())
	engine := NewEngine(sender, state, &fakeNotifier{}, zap.NewNop(), metrics.New(), 3, time.Millisecond)
	pipeline := NewPipeline(engine, state, zap.NewNop(), metrics.New(), "https://cdn.example.com/{id}.mp3")
	return pipeline, engine, state
}

func TestPipeline_ProcessBody(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	pipeline, engine, state := newTestPipeline(sender)

	body := decodeBody(t, `{"clips": [
		{"id": "clip-1", "title": "First Title", "audio_url": "https://cdn.example.com/1.mp3", "status": "complete"},
		{"id": "clip-2", "audio_url": "https://cdn.example.com/2.mp3", "status": "complete"},
		{"id": "clip-3", "status": "complete"},
		{"id": "clip-1", "title": "Second Title", "audio_url": "https://cdn.example.com/1.mp3", "status": "complete"}
	]}`)

	submitted := pipeline.ProcessBody(ctx, body, SourceIntercept)
	engine.Close()

	assert.Equal(t, 2, submitted)
	assert.Equal(t, int64(2), pipeline.Skipped(), "one invalid, one batch duplicate")

	for _, id := range []string{"clip-1", "clip-2"} {
		sent, err := state.HasSent(ctx, id)
		require.NoError(t, err)
		assert.True(t, sent, "clip %s should be delivered", id)
	}
	assert.Equal(t, 2, sender.count())

	record, ok := sender.delivered("clip-1")
	require.True(t, ok)
	assert.Equal(t, "First Title", record.Title, "the first candidate for an id wins")
}

func TestPipeline_ProcessBodySkipsDelivered(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	pipeline, engine, state := newTestPipeline(sender)
	defer engine.Close()

	require.NoError(t, state.MarkSent(ctx, "clip-1", "Clip", time.Now()))

	body := decodeBody(t, `{"clips": [
		{"id": "clip-1", "audio_url": "https://cdn.example.com/1.mp3", "status": "complete"}
	]}`)

	submitted := pipeline.ProcessBody(ctx, body, SourceIntercept)
	assert.Equal(t, 0, submitted)
	assert.Equal(t, int64(1), pipeline.Skipped())
	assert.Equal(t, 0, sender.count())
}

func TestPipeline_ProcessBodyEmptyShapes(t *testing.T) {
	ctx := context.Background()
	pipeline, engine, _ := newTestPipeline(&fakeSender{})
	defer engine.Close()

	assert.Equal(t, 0, pipeline.ProcessBody(ctx, decodeBody(t, `{"unrelated": true}`), SourceIntercept))
	assert.Equal(t, 0, pipeline.ProcessBody(ctx, decodeBody(t, `[]`), SourceIntercept))
	assert.Equal(t, 0, pipeline.ProcessBody(ctx, nil, SourceIntercept))
}

func TestPipeline_Inject(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	pipeline, engine, state := newTestPipeline(sender)

	record, err := pipeline.Inject(ctx, "  abc12345xyz  ")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "abc12345xyz", record.ID)
	assert.Equal(t, "https://cdn.example.com/abc12345xyz.mp3", record.AudioURL)
	assert.Equal(t, SourceManual, record.Source)
	assert.Equal(t, "Untitled abc12345", record.Title)

	engine.Close()

	sent, err := state.HasSent(ctx, "abc12345xyz")
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestPipeline_InjectAlreadyDelivered(t *testing.T) {
	ctx := context.Background()
	pipeline, engine, state := newTestPipeline(&fakeSender{})
	defer engine.Close()

	require.NoError(t, state.MarkSent(ctx, "clip-1", "Clip", time.Now()))

	record, err := pipeline.Inject(ctx, "clip-1")
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	assert.Nil(t, record)
}

func TestPipeline_InjectMissingID(t *testing.T) {
	ctx := context.Background()
	pipeline, engine, _ := newTestPipeline(&fakeSender{})
	defer engine.Close()

	for _, id := range []string{"", "   "} {
		record, err := pipeline.Inject(ctx, id)
		assert.Nil(t, record)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "missing id", verr.Reason)
	}
}
