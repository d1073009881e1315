package statestore

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/mikey/clip-relay/internal/core"
	"go.uber.org/zap"
)

// BadgerStore is a BadgerDB implementation of the StateStore interface
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens a Badger database at dir and wraps it as a state store
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger database: %w", err)
	}

	return &BadgerStore{
		db:     db,
		logger: logger,
	}, nil
}

// NewBadgerStoreFromDB wraps an already opened Badger database
func NewBadgerStoreFromDB(db *badger.DB, logger *zap.Logger) *BadgerStore {
	return &BadgerStore{db: db, logger: logger}
}

// Get retrieves the value stored under key
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get state: %w", err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value under key
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Update applies fn inside a Badger transaction, retrying on conflict
func (s *BadgerStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			var current []byte
			item, err := txn.Get([]byte(key))
			if err == nil {
				current, err = item.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("read state: %w", err)
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("get state: %w", err)
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			return txn.Set([]byte(key), next)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Debug("Retrying state update after transaction conflict", zap.String("key", key))
	}
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
