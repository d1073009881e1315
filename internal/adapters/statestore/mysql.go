package statestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/clip-relay/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the StateStore interface
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL state store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS relay_state (
			name VARCHAR(191) PRIMARY KEY,
			value MEDIUMBLOB
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves the value stored under key
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM relay_state WHERE name = ?
	`, key).Scan(&value)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query state: %w", err)
	}

	return value, nil
}

// Set stores a value under key
func (s *MySQLStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_state (name, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = ?
	`, key, value, value)

	if err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}

	return nil
}

// Update applies fn to the current value of key inside a transaction,
// holding a row lock so concurrent updates serialize.
func (s *MySQLStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, `
		SELECT value FROM relay_state WHERE name = ? FOR UPDATE
	`, key).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query state: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relay_state (name, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = ?
	`, key, next, next)
	if err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}

	return tx.Commit()
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
