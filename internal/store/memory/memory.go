package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cashplan/internal/store"
)

// Store keeps project documents in memory. It is the default backend
// and the one the test suites run against. Documents are held in
// serialized form so callers can never share mutable state with the
// store.
type Store struct {
	mu   sync.Mutex
	docs map[string][]byte
	hub  store.Hub
}

func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// NewFromDir seeds the store with any *.json project documents found
// under base. Unreadable or malformed files are skipped.
func NewFromDir(base string) *Store {
	s := New()
	entries, err := os.ReadDir(base)
	if err != nil {
		return s
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(base, e.Name()))
		if err != nil {
			continue
		}
		doc, err := store.DecodeDocument(data)
		if err != nil {
			continue
		}
		id := doc.Project.ID
		if id == "" {
			id = strings.TrimSuffix(e.Name(), ".json")
		}
		if encoded, err := doc.Encode(); err == nil {
			s.docs[id] = encoded
		}
	}
	return s
}

func (s *Store) Load(_ context.Context, id string) (store.Document, error) {
	s.mu.Lock()
	data, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		return store.Document{}, fmt.Errorf("%w: %s", store.ErrProjectNotFound, id)
	}
	return store.DecodeDocument(data)
}

func (s *Store) LoadAll(_ context.Context) (map[string]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]store.Document, len(s.docs))
	for id, data := range s.docs {
		doc, err := store.DecodeDocument(data)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		out[id] = doc
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, id string, doc store.Document) error {
	data, err := doc.Encode()
	if err != nil {
		return &store.PersistenceError{Op: "save", Err: err}
	}
	s.mu.Lock()
	s.docs[id] = data
	s.mu.Unlock()

	s.hub.Notify(ctx, s)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrProjectNotFound, id)
	}

	s.hub.Notify(ctx, s)
	return nil
}

func (s *Store) Subscribe(cb store.Callback) func() {
	return s.hub.Subscribe(cb)
}
