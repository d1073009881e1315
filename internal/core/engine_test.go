package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/clip-relay/internal/metrics"
)

// fakeSender fails the first failures attempts and succeeds afterwards
type fakeSender struct {
	mu       sync.Mutex
	attempts int
	failures int
	failWith error
	probeErr error
	records  []Record
}

func (f *fakeSender) Send(ctx context.Context, record *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		if f.failWith != nil {
			return f.failWith
		}
		return &DeliveryError{Kind: FailureStatus, StatusCode: 500, Err: errors.New("server error")}
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeSender) Probe(ctx context.Context, at time.Time) error {
	return f.probeErr
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// delivered returns the record that reached the endpoint for id, if any
func (f *fakeSender) delivered(id string) (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// fakeNotifier records notification calls
type fakeNotifier struct {
	mu        sync.Mutex
	succeeded []string
	failed    []int
	replays   [][2]int
}

func (n *fakeNotifier) DeliverySucceeded(record *Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded = append(n.succeeded, record.ID)
}

func (n *fakeNotifier) DeliveryFailed(record *Record, failureCode int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, failureCode)
}

func (n *fakeNotifier) ReplayCompleted(succeeded, failed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replays = append(n.replays, [2]int{succeeded, failed})
}

func (n *fakeNotifier) succeededIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.succeeded...)
}

func (n *fakeNotifier) failedCodes() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.failed...)
}

func (n *fakeNotifier) replayCalls() [][2]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][2]int(nil), n.replays...)
}

func testRecord(id string) *Record {
	return &Record{
		ID:        id,
		Title:     "Clip " + id,
		AudioURL:  "https://cdn.example.com/" + id + ".mp3",
		Source:    SourceIntercept,
		CreatedAt: time.Now(),
	}
}

func newTestEngine(sender Sender, maxRetries int) (*Engine, *State, *fakeNotifier) {
	state := NewState(newMemStore(), 50, 20, 0, zap.NewNop())
	notifier := &fakeNotifier{}
	engine := NewEngine(sender, state, notifier, zap.NewNop(), metrics.New(), maxRetries, time.Millisecond)
	return engine, state, notifier
}

func TestEngine_DeliverSuccess(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	engine, state, notifier := newTestEngine(sender, 3)
	defer engine.Close()

	require.NoError(t, engine.Deliver(ctx, testRecord("clip-1")))

	assert.Equal(t, 1, sender.count())

	sent, err := state.HasSent(ctx, "clip-1")
	require.NoError(t, err)
	assert.True(t, sent)

	st, err := state.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.TotalSent)
	assert.False(t, st.LastSync.IsZero())

	assert.Equal(t, []string{"clip-1"}, notifier.succeededIDs())
}

func TestEngine_ExhaustsRetriesAndParks(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{failures: 100}
	engine, state, notifier := newTestEngine(sender, 3)
	defer engine.Close()

	err := engine.Deliver(ctx, testRecord("clip-1"))
	require.Error(t, err, "first attempt error is surfaced")

	require.Eventually(t, func() bool {
		items, err := state.FailedItems(ctx)
		return err == nil && len(items) == 1
	}, 2*time.Second, 5*time.Millisecond, "record should be parked after all attempts")

	assert.Equal(t, 3, sender.count())

	items, err := state.FailedItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "clip-1", items[0].Record.ID)
	assert.Equal(t, 500, items[0].FailureCode)

	sent, err := state.HasSent(ctx, "clip-1")
	require.NoError(t, err)
	assert.False(t, sent)

	st, err := state.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.TotalSent)
	assert.Equal(t, int64(1), st.TotalFailed)

	assert.Equal(t, []int{500}, notifier.failedCodes())
}

func TestEngine_RecoversOnRetry(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{failures: 1}
	engine, state, _ := newTestEngine(sender, 3)
	defer engine.Close()

	err := engine.Deliver(ctx, testRecord("clip-1"))
	require.Error(t, err, "first attempt fails")

	require.Eventually(t, func() bool {
		sent, err := state.HasSent(ctx, "clip-1")
		return err == nil && sent
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, sender.count())

	items, err := state.FailedItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items, "recovered record must not be parked")
}

func TestEngine_SuccessPrunesFailedQueue(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	engine, state, _ := newTestEngine(sender, 3)
	defer engine.Close()

	_, err := state.ParkFailed(ctx, parkedItem("clip-1", 500))
	require.NoError(t, err)

	require.NoError(t, engine.Deliver(ctx, testRecord("clip-1")))

	items, err := state.FailedItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items, "delivery should remove the stale failed entry")
}

func TestEngine_SkipsAlreadyDelivered(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	engine, state, notifier := newTestEngine(sender, 3)
	defer engine.Close()

	require.NoError(t, state.MarkSent(ctx, "clip-1", "Clip clip-1", time.Now()))

	require.NoError(t, engine.Deliver(ctx, testRecord("clip-1")))

	assert.Equal(t, 0, sender.count(), "no webhook call for a delivered clip")
	assert.Empty(t, notifier.succeededIDs())
}

func TestEngine_SubmitAfterCloseIsDropped(t *testing.T) {
	sender := &fakeSender{}
	engine, _, _ := newTestEngine(sender, 3)

	engine.Close()
	engine.Submit(testRecord("clip-1"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sender.count())
}

func TestEngine_BackoffDelayDoubles(t *testing.T) {
	state := NewState(newMemStore(), 50, 20, 0, zap.NewNop())
	engine := NewEngine(&fakeSender{}, state, &fakeNotifier{}, zap.NewNop(), metrics.New(), 3, 100*time.Millisecond)
	defer engine.Close()

	assert.Equal(t, 100*time.Millisecond, engine.backoffDelay(1))
	assert.Equal(t, 200*time.Millisecond, engine.backoffDelay(2))
	assert.Equal(t, 400*time.Millisecond, engine.backoffDelay(3))
}

func TestEngine_FailureCodes(t *testing.T) {
	statusErr := &DeliveryError{Kind: FailureStatus, StatusCode: 503, Err: errors.New("unavailable")}
	assert.Equal(t, 503, FailureCodeFrom(statusErr))

	timeoutErr := &DeliveryError{Kind: FailureTimeout, Err: errors.New("deadline exceeded")}
	assert.Equal(t, -1, FailureCodeFrom(timeoutErr))

	networkErr := &DeliveryError{Kind: FailureNetwork, Err: errors.New("connection refused")}
	assert.Equal(t, 0, FailureCodeFrom(networkErr))

	assert.Equal(t, 0, FailureCodeFrom(errors.New("plain error")))
}
