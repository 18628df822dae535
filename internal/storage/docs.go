// Package storage holds the gateway's external data collaborators: the
// document/profile store backing context assembly and the object store for
// uploaded files.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docuquery/llm-gateway/internal/prompt"
)

// DocumentStore serves the per-user material that context assembly draws on.
type DocumentStore interface {
	// GetDocumentText returns the chunked text of a user's documents.
	// fileID narrows to one file when non-empty.
	GetDocumentText(ctx context.Context, userID, fileID string) ([]prompt.ContextBlock, error)
	// GetChatHistory returns the session's turns, oldest first.
	GetChatHistory(ctx context.Context, sessionID string) ([]prompt.HistoryTurn, error)
	// GetUserProfile returns the user's profile text, empty when absent.
	GetUserProfile(ctx context.Context, userID string) (string, error)
}

// SQLDocumentStore is the relational DocumentStore.
type SQLDocumentStore struct {
	db *sql.DB
}

// NewSQLDocumentStore prepares the backing tables.
func NewSQLDocumentStore(db *sql.DB) (*SQLDocumentStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS document_chunks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			file_id    TEXT NOT NULL,
			file_name  TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			body       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_user ON document_chunks (user_id, file_id, seq);
		CREATE TABLE IF NOT EXISTS chat_turns (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON chat_turns (session_id, id);
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id    TEXT PRIMARY KEY,
			body       TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating document tables: %w", err)
	}
	return &SQLDocumentStore{db: db}, nil
}

// GetDocumentText implements DocumentStore.
func (s *SQLDocumentStore) GetDocumentText(ctx context.Context, userID, fileID string) ([]prompt.ContextBlock, error) {
	query := `SELECT file_name, body FROM document_chunks WHERE user_id = ?`
	args := []any{userID}
	if fileID != "" {
		query += ` AND file_id = ?`
		args = append(args, fileID)
	}
	query += ` ORDER BY file_id, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading document chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blocks []prompt.ContextBlock
	for rows.Next() {
		var b prompt.ContextBlock
		if err := rows.Scan(&b.SourceLabel, &b.Text); err != nil {
			return nil, fmt.Errorf("scanning document chunk: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// GetChatHistory implements DocumentStore.
func (s *SQLDocumentStore) GetChatHistory(ctx context.Context, sessionID string) ([]prompt.HistoryTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, answer, created_at FROM chat_turns
		 WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading chat history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []prompt.HistoryTurn
	for rows.Next() {
		var t prompt.HistoryTurn
		if err := rows.Scan(&t.Question, &t.Answer, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning chat turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// GetUserProfile implements DocumentStore.
func (s *SQLDocumentStore) GetUserProfile(ctx context.Context, userID string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM user_profiles WHERE user_id = ?`, userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading user profile: %w", err)
	}
	return body, nil
}

// AppendTurn records a completed exchange for later history assembly.
func (s *SQLDocumentStore) AppendTurn(ctx context.Context, sessionID, question, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (session_id, question, answer, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, question, answer, time.Now())
	if err != nil {
		return fmt.Errorf("recording chat turn: %w", err)
	}
	return nil
}

// StoreChunks replaces a file's chunks with a new sequence.
func (s *SQLDocumentStore) StoreChunks(ctx context.Context, userID, fileID, fileName string, chunks []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storing document chunks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE user_id = ? AND file_id = ?`, userID, fileID); err != nil {
		return fmt.Errorf("storing document chunks: %w", err)
	}
	for i, body := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_chunks (user_id, file_id, file_name, seq, body)
			 VALUES (?, ?, ?, ?, ?)`, userID, fileID, fileName, i, body); err != nil {
			return fmt.Errorf("storing document chunks: %w", err)
		}
	}
	return tx.Commit()
}
