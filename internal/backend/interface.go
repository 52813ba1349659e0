package backend

import (
	"context"

	"cashplan/internal/store"
)

// Backend is the unified persistence surface the application wires
// against: load, save, delete, and change subscription for project
// documents.
type Backend interface {
	store.ProjectLoader
	store.ProjectWriter
	store.ProjectWatcher
}

// CleanupFunc releases backend resources on shutdown.
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup.
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresURL string

	// Memory backend seed directory (optional)
	DataDirectory string
}

// Type selects the document store implementation.
type Type string

const (
	MemoryBackend   Type = "memory"
	SQLiteBackend   Type = "sqlite"
	PostgresBackend Type = "postgres"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// Types returns all valid backend types.
func Types() []Type {
	return []Type{MemoryBackend, SQLiteBackend, PostgresBackend}
}
