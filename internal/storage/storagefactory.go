package storage

import (
	"fmt"
	"log"
)

// NewStorage creates a StorageService for the configured backend type and
// ensures its schema exists (idempotent), important for in-memory SQLite.
func NewStorage(storageType, connectionString string) (StorageService, error) {
	var service StorageService
	var err error

	switch storageType {
	case "sqlite":
		service, err = NewSQLiteStorage(connectionString)
	case "redis":
		service, err = NewRedisStorage(connectionString)
	case "memory":
		service = NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", storageType)
	}
	if err != nil {
		return nil, err
	}

	log.Print("initializing storage schema (ensuring tables exist)")
	if err = service.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return service, nil
}
