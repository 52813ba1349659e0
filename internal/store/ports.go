package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrProjectNotFound is returned by Load when no document exists for
// the requested id.
var ErrProjectNotFound = errors.New("project document not found")

// Callback receives the full document set after a change, or the error
// that prevented reading it.
type Callback func(docs map[string]Document, err error)

// Ports for project document stores.
type (
	ProjectLoader interface {
		// Load returns the document for one project.
		Load(ctx context.Context, id string) (Document, error)
		// LoadAll returns every stored document keyed by project id.
		LoadAll(ctx context.Context) (map[string]Document, error)
	}

	ProjectWriter interface {
		// Save upserts the document for a project.
		Save(ctx context.Context, id string, doc Document) error
		// Delete removes the document for a project.
		Delete(ctx context.Context, id string) error
	}

	// ProjectWatcher notifies subscribers after every successful write
	// through this store instance.
	ProjectWatcher interface {
		// Subscribe registers a callback and returns its unsubscribe
		// function.
		Subscribe(cb Callback) (unsubscribe func())
	}
)

// PersistenceError wraps a boundary failure so callers can report it as
// a non-fatal notification without rolling back in-memory state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
