package providers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/config"
)

// genericInstruction is the compiled-in fallback used when the instruction
// source has never answered successfully.
const genericInstruction = "You are a helpful assistant. Answer using the provided context when it is relevant, and say so when the context does not contain the answer."

// InstructionSource loads the current system instruction text.
type InstructionSource interface {
	CurrentInstruction(ctx context.Context) (string, error)
}

// SystemPromptCache serves the system instruction with a TTL cache. A failed
// refresh serves the last known good value; if there never was one, a
// compiled-in generic instruction.
type SystemPromptCache struct {
	source InstructionSource
	ttl    time.Duration

	mu        sync.Mutex
	value     string
	fetchedAt time.Time
	now       func() time.Time
}

// NewSystemPromptCache creates a cache. Zero ttl uses the default.
func NewSystemPromptCache(source InstructionSource, ttl time.Duration) *SystemPromptCache {
	if ttl <= 0 {
		ttl = config.DefaultSystemPromptTTL
	}
	return &SystemPromptCache{source: source, ttl: ttl, now: time.Now}
}

// Instruction returns the system instruction, refreshing when stale.
// Never returns an error: degraded refreshes fall back instead.
func (c *SystemPromptCache) Instruction(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != "" && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value
	}

	fresh, err := c.source.CurrentInstruction(ctx)
	if err != nil || fresh == "" {
		if err != nil {
			log.Warn().Err(err).Msg("system instruction refresh failed, serving fallback")
		}
		if c.value != "" {
			return c.value
		}
		return genericInstruction
	}

	c.value = fresh
	c.fetchedAt = c.now()
	return c.value
}

// SQLInstructionSource reads the newest active system instruction row.
type SQLInstructionSource struct {
	db *sql.DB
}

// NewSQLInstructionSource prepares the backing table.
func NewSQLInstructionSource(db *sql.DB) (*SQLInstructionSource, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS system_instructions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			body       TEXT NOT NULL,
			active     INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating system_instructions table: %w", err)
	}
	return &SQLInstructionSource{db: db}, nil
}

// CurrentInstruction implements InstructionSource.
func (s *SQLInstructionSource) CurrentInstruction(ctx context.Context) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM system_instructions WHERE active = 1 ORDER BY id DESC LIMIT 1`).
		Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading system instruction: %w", err)
	}
	return body, nil
}

// SetInstruction stores a new active instruction, deactivating prior rows.
func (s *SQLInstructionSource) SetInstruction(ctx context.Context, body string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storing system instruction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE system_instructions SET active = 0 WHERE active = 1`); err != nil {
		return fmt.Errorf("storing system instruction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO system_instructions (body, active) VALUES (?, 1)`, body); err != nil {
		return fmt.Errorf("storing system instruction: %w", err)
	}
	return tx.Commit()
}
