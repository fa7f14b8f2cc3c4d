package history

import (
	"fmt"
	"os"
	"path/filepath"

	"rmt-go/internal/config"
	"rmt-go/internal/history/migrations"
)

// NewStoreFromConfig creates a Store based on the database config type.
// Memory stores get their schema applied immediately; on-disk stores are
// migrated in place.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return newMigratedStore(filepath.Join(cfg.DataDir, "history.db"))
	case "memory":
		return newMigratedStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func newMigratedStore(path string) (*Store, error) {
	store, err := NewStore(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(store.DB()); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	if err := migrations.CheckDBMigrationStatus(store.DB()); err != nil {
		store.Close()
		return nil, fmt.Errorf("verifying history schema: %w", err)
	}
	return store, nil
}
