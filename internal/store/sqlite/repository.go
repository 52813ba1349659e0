package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cashplan/internal/store"

	_ "modernc.org/sqlite"
)

// Repository stores project documents in a local SQLite database, one
// JSON document per row.
type Repository struct {
	db  *sql.DB
	hub store.Hub
}

func New(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, id string) (store.Document, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT document FROM projects WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, fmt.Errorf("%w: %s", store.ErrProjectNotFound, id)
	}
	if err != nil {
		return store.Document{}, &store.PersistenceError{Op: "load", Err: err}
	}

	doc, err := store.DecodeDocument(data)
	if err != nil {
		return store.Document{}, &store.PersistenceError{Op: "load", Err: err}
	}
	return doc, nil
}

func (r *Repository) LoadAll(ctx context.Context) (map[string]store.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, document FROM projects`)
	if err != nil {
		return nil, &store.PersistenceError{Op: "load_all", Err: err}
	}
	defer rows.Close()

	out := make(map[string]store.Document)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, &store.PersistenceError{Op: "load_all", Err: err}
		}
		doc, err := store.DecodeDocument(data)
		if err != nil {
			// A single corrupt row must not hide every other project.
			slog.WarnContext(ctx, "Skipping undecodable project document",
				"id", id, "error", err)
			continue
		}
		out[id] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, &store.PersistenceError{Op: "load_all", Err: err}
	}
	return out, nil
}

func (r *Repository) Save(ctx context.Context, id string, doc store.Document) error {
	data, err := doc.Encode()
	if err != nil {
		return &store.PersistenceError{Op: "save", Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at`,
		id, data, time.Now().UTC())
	if err != nil {
		return &store.PersistenceError{Op: "save", Err: err}
	}

	slog.InfoContext(ctx, "Project document saved to SQLite",
		"id", id, "bytes", len(data))

	r.hub.Notify(ctx, r)
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return &store.PersistenceError{Op: "delete", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", store.ErrProjectNotFound, id)
	}

	r.hub.Notify(ctx, r)
	return nil
}

func (r *Repository) Subscribe(cb store.Callback) func() {
	return r.hub.Subscribe(cb)
}
