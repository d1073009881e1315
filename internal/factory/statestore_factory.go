package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/clip-relay/internal/adapters/statestore"
	"github.com/mikey/clip-relay/internal/config"
	"github.com/mikey/clip-relay/internal/core"
	"go.uber.org/zap"
)

// StateStoreFactory creates state stores based on configuration
type StateStoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStateStoreFactory creates a new state store factory
func NewStateStoreFactory(cfg *config.Config, logger *zap.Logger) *StateStoreFactory {
	return &StateStoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStateStore creates a state store based on the configuration
func (f *StateStoreFactory) CreateStateStore() (core.StateStore, error) {
	stateCfg := f.cfg.GetState()

	switch stateCfg.Backend {
	case "memory":
		return statestore.NewMemoryStore(), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(stateCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return statestore.NewSQLiteStore(stateCfg.SQLitePath, f.logger)
	case "mysql":
		return statestore.NewMySQLStore(stateCfg.MySQLDSN, f.logger)
	case "badger":
		if err := os.MkdirAll(stateCfg.BadgerDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create Badger directory: %w", err)
		}
		return statestore.NewBadgerStore(stateCfg.BadgerDir, f.logger)
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", stateCfg.Backend)
	}
}
