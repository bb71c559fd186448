package storage

import (
	"context"
	"fmt"

	"outfitter/internal/models"
)

// Factory provides a centralized way to create storage instances based on
// configuration. This allows for easy extensibility and backend swapping
// without code changes.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage backend based on the provided configuration.
// Supported backends:
//   - memory: In-memory storage (default, for development and testing)
//   - sqlite: SQLite database storage (single-node persistence)
//   - postgres: PostgreSQL database storage (production-ready)
func (f *Factory) Create(ctx context.Context, config models.StorageConfig) (Storage, error) {
	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStorage(), nil
	case models.StorageTypeSQLite:
		return NewSQLiteStorage(config.Database.DSN)
	case models.StorageTypePostgres:
		return NewPostgresStorage(ctx, config.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// SupportedBackends returns a list of all supported storage backend types
func (f *Factory) SupportedBackends() []string {
	return []string{models.StorageTypeMemory, models.StorageTypeSQLite, models.StorageTypePostgres}
}
