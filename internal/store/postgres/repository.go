package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cashplan/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id         TEXT PRIMARY KEY,
    document   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Repository stores project documents in Postgres as JSONB rows.
type Repository struct {
	pool *pgxpool.Pool
	hub  store.Hub
}

func New(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, id string) (store.Document, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT document FROM projects WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := r.pool.Query(ctx, `SELECT id, document FROM projects`)
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

	_, err = r.pool.Exec(ctx, `
		INSERT INTO projects (id, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = NOW()`,
		id, data)
	if err != nil {
		return &store.PersistenceError{Op: "save", Err: err}
	}

	slog.InfoContext(ctx, "Project document saved to Postgres",
		"id", id, "bytes", len(data))

	r.hub.Notify(ctx, r)
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return &store.PersistenceError{Op: "delete", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrProjectNotFound, id)
	}

	r.hub.Notify(ctx, r)
	return nil
}

func (r *Repository) Subscribe(cb store.Callback) func() {
	return r.hub.Subscribe(cb)
}
