package statestore

import (
	"context"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/clip-relay/internal/core"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	store := NewBadgerStoreFromDB(db, zap.NewNop())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestBadgerStore_GetMissingKey(t *testing.T) {
	store := newTestBadgerStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBadgerStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)

	require.NoError(t, store.Set(ctx, "key", []byte(`{"a":1}`)))

	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), value)
}

func TestBadgerStore_Update(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)

	err := store.Update(ctx, "key", func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return []byte("v1"), nil
	})
	require.NoError(t, err)

	err = store.Update(ctx, "key", func(current []byte) ([]byte, error) {
		assert.Equal(t, []byte("v1"), current)
		return append(current, []byte("+v2")...), nil
	})
	require.NoError(t, err)

	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1+v2"), value)
}

func TestBadgerStore_UpdateErrorAborts(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)

	require.NoError(t, store.Set(ctx, "key", []byte("v1")))

	err := store.Update(ctx, "key", func(current []byte) ([]byte, error) {
		return nil, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
}

func TestBadgerStore_BacksRelayState(t *testing.T) {
	ctx := context.Background()
	store := newTestBadgerStore(t)
	state := core.NewState(store, 50, 20, 0, zap.NewNop())

	require.NoError(t, state.MarkSent(ctx, "clip-1", "Clip", time.Now()))

	sent, err := state.HasSent(ctx, "clip-1")
	require.NoError(t, err)
	assert.True(t, sent)

	inserted, err := state.ParkFailed(ctx, core.FailedItem{
		Record:      core.Record{ID: "clip-2", Title: "Other"},
		FailureCode: 500,
		FailedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := state.FailedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
