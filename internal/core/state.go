package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// State manages the persistent relay documents on top of a StateStore.
// All mutations run inside the store's atomic Update so concurrent
// deliveries cannot lose markers or queue entries.
type State struct {
	store    StateStore
	capacity int
	trimTo   int
	maxSent  int
	logger   *zap.Logger
}

// NewState creates a new State. capacity bounds the failed queue,
// trimTo is the size it is cut back to after overflowing, and maxSent
// caps the sent marker map (0 keeps markers forever).
func NewState(store StateStore, capacity int, trimTo int, maxSent int, logger *zap.Logger) *State {
	if capacity <= 0 {
		capacity = 50
	}
	if trimTo <= 0 || trimTo > capacity {
		trimTo = capacity
	}
	return &State{
		store:    store,
		capacity: capacity,
		trimTo:   trimTo,
		maxSent:  maxSent,
		logger:   logger,
	}
}

// HasSent reports whether a clip ID already has a sent marker
func (s *State) HasSent(ctx context.Context, id string) (bool, error) {
	markers, err := s.sentMarkers(ctx)
	if err != nil {
		return false, err
	}
	_, ok := markers[id]
	return ok, nil
}

// MarkSent records a successful delivery for a clip ID
func (s *State) MarkSent(ctx context.Context, id string, title string, at time.Time) error {
	return s.store.Update(ctx, KeySent, func(current []byte) ([]byte, error) {
		markers := s.decodeSent(current)
		markers[id] = SentMarker{Title: title, SentAt: at}
		if s.maxSent > 0 && len(markers) > s.maxSent {
			evictOldestMarkers(markers, len(markers)-s.maxSent)
		}
		return json.Marshal(markers)
	})
}

// SentCount returns the number of sent markers
func (s *State) SentCount(ctx context.Context) (int, error) {
	markers, err := s.sentMarkers(ctx)
	if err != nil {
		return 0, err
	}
	return len(markers), nil
}

// ClearSent removes all sent markers
func (s *State) ClearSent(ctx context.Context) error {
	return s.store.Set(ctx, KeySent, []byte("{}"))
}

// ParkFailed adds a failed item to the queue unless its clip is already
// queued. When the queue grows past its capacity it is cut back to the
// newest trimTo entries. Returns whether the item was inserted.
func (s *State) ParkFailed(ctx context.Context, item FailedItem) (bool, error) {
	var inserted bool
	err := s.store.Update(ctx, KeyFailed, func(current []byte) ([]byte, error) {
		inserted = false
		items := s.decodeFailed(current)
		for _, existing := range items {
			if existing.Record.ID == item.Record.ID {
				return json.Marshal(items)
			}
		}
		items = append(items, item)
		if len(items) > s.capacity {
			items = items[len(items)-s.trimTo:]
		}
		inserted = true
		return json.Marshal(items)
	})
	return inserted, err
}

// RemoveFailed removes a clip from the failed queue if present
func (s *State) RemoveFailed(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.store.Update(ctx, KeyFailed, func(current []byte) ([]byte, error) {
		removed = false
		items := s.decodeFailed(current)
		kept := items[:0]
		for _, item := range items {
			if item.Record.ID == id {
				removed = true
				continue
			}
			kept = append(kept, item)
		}
		return json.Marshal(kept)
	})
	return removed, err
}

// FailedItems returns a snapshot of the failed queue, oldest first
func (s *State) FailedItems(ctx context.Context) ([]FailedItem, error) {
	raw, err := s.store.Get(ctx, KeyFailed)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decodeFailed(raw), nil
}

// FailedCount returns the number of parked records
func (s *State) FailedCount(ctx context.Context) (int, error) {
	items, err := s.FailedItems(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Stats returns the current delivery counters
func (s *State) Stats(ctx context.Context) (Stats, error) {
	raw, err := s.store.Get(ctx, KeyStats)
	if errors.Is(err, ErrNotFound) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		s.logger.Warn("Resetting corrupt stats document", zap.Error(err))
		return Stats{}, nil
	}
	return st, nil
}

// UpdateStats applies fn to the stats document atomically
func (s *State) UpdateStats(ctx context.Context, fn func(*Stats)) error {
	return s.store.Update(ctx, KeyStats, func(current []byte) ([]byte, error) {
		var st Stats
		if len(current) > 0 {
			if err := json.Unmarshal(current, &st); err != nil {
				s.logger.Warn("Resetting corrupt stats document", zap.Error(err))
				st = Stats{}
			}
		}
		fn(&st)
		return json.Marshal(st)
	})
}

// InitStats stamps the process start time, keeping the historical counters
func (s *State) InitStats(ctx context.Context, startedAt time.Time) error {
	return s.UpdateStats(ctx, func(st *Stats) {
		st.ProcessStart = startedAt
	})
}

// sentMarkers loads the sent marker map, empty when absent
func (s *State) sentMarkers(ctx context.Context) (map[string]SentMarker, error) {
	raw, err := s.store.Get(ctx, KeySent)
	if errors.Is(err, ErrNotFound) {
		return map[string]SentMarker{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decodeSent(raw), nil
}

// decodeSent tolerates corrupt documents by starting over rather than
// blocking every future delivery.
func (s *State) decodeSent(raw []byte) map[string]SentMarker {
	markers := map[string]SentMarker{}
	if len(raw) == 0 {
		return markers
	}
	if err := json.Unmarshal(raw, &markers); err != nil {
		s.logger.Warn("Resetting corrupt sent marker document", zap.Error(err))
		return map[string]SentMarker{}
	}
	return markers
}

func (s *State) decodeFailed(raw []byte) []FailedItem {
	if len(raw) == 0 {
		return nil
	}
	var items []FailedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn("Resetting corrupt failed queue document", zap.Error(err))
		return nil
	}
	return items
}

func evictOldestMarkers(markers map[string]SentMarker, n int) {
	for ; n > 0; n-- {
		oldestID := ""
		var oldestAt time.Time
		for id, m := range markers {
			if oldestID == "" || m.SentAt.Before(oldestAt) {
				oldestID = id
				oldestAt = m.SentAt
			}
		}
		delete(markers, oldestID)
	}
}
