package respcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore persists cache entries in SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore prepares the backing tables.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS response_cache (
			user_id    TEXT NOT NULL,
			context_id TEXT NOT NULL,
			key        TEXT NOT NULL,
			scope      TEXT NOT NULL DEFAULT '',
			answer     TEXT NOT NULL,
			model      TEXT NOT NULL,
			provider   TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, context_id, key)
		);
		CREATE TABLE IF NOT EXISTS upload_marks (
			user_id     TEXT PRIMARY KEY,
			uploaded_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating cache tables: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Get implements Store. A missing key returns (nil, nil).
func (s *SQLStore) Get(ctx context.Context, userID, contextID, key string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, context_id, key, scope, answer, model, provider, created_at, expires_at
		 FROM response_cache WHERE user_id = ? AND context_id = ? AND key = ?`,
		userID, contextID, key).
		Scan(&e.UserID, &e.ContextID, &e.Key, &e.Scope, &e.Answer, &e.Model, &e.Provider,
			&e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}
	return &e, nil
}

// Put implements Store, replacing any previous entry for the scoped key.
func (s *SQLStore) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache
			(user_id, context_id, key, scope, answer, model, provider, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, context_id, key) DO UPDATE SET
			scope = excluded.scope, answer = excluded.answer,
			model = excluded.model, provider = excluded.provider,
			created_at = excluded.created_at, expires_at = excluded.expires_at`,
		e.UserID, e.ContextID, e.Key, e.Scope, e.Answer, e.Model, e.Provider, e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// LastDocumentUpload implements Store. An unmarked user returns the zero time.
func (s *SQLStore) LastDocumentUpload(ctx context.Context, userID string) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT uploaded_at FROM upload_marks WHERE user_id = ?`, userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading upload mark: %w", err)
	}
	return at, nil
}

// MarkDocumentUpload implements Store.
func (s *SQLStore) MarkDocumentUpload(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_marks (user_id, uploaded_at) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET uploaded_at = excluded.uploaded_at`,
		userID, at)
	if err != nil {
		return fmt.Errorf("writing upload mark: %w", err)
	}
	return nil
}

// Prune removes expired rows. Meant for a periodic maintenance call.
func (s *SQLStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
