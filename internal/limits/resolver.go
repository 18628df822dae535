// Package limits resolves the maximum output tokens for a (provider, model)
// pair.
//
// DESIGN: Limits live in a relational table and are cached in memory keyed
// "provider::model". The historical behavior is a process-lifetime cache
// (TTL zero); deployments can opt into a refresh TTL. Resolution never
// fails — a missing row or a down store falls back to hard-coded family
// limits, then to a conservative default.
package limits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/docuquery/llm-gateway/internal/config"
)

// ModelLimit is one row of the limits table.
type ModelLimit struct {
	Provider        string
	Model           string
	MaxOutputTokens int
}

// ErrNotFound is returned by stores when no limit row exists.
var ErrNotFound = errors.New("model limit not found")

// Store is the persistence behind the resolver.
type Store interface {
	GetLimit(ctx context.Context, provider, model string) (int, error)
}

// familyFallbacks are hard-coded limits applied when the table has no row.
// Longest-prefix match on the model name.
var familyFallbacks = map[string]int{
	"gemini-2.5-pro":   65536,
	"gemini-2.5-flash": 65536,
	"gemini-1.5":       8192,
	"gemini":           8192,
	"claude-opus":      32000,
	"claude-sonnet":    64000,
	"claude-haiku":     8192,
	"claude":           8192,
	"gpt-4o":           16384,
	"gpt-4":            8192,
}

// Resolver caches limit lookups in memory.
type Resolver struct {
	store Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group
	now   func() time.Time
}

type cacheEntry struct {
	limit    int
	loadedAt time.Time
}

// NewResolver creates a resolver over store. ttl zero means entries live for
// the process lifetime (invalidation requires Clear or restart).
func NewResolver(store Store, ttl time.Duration) *Resolver {
	return &Resolver{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// MaxOutputTokens resolves the output-token ceiling for provider/model.
// Never fails; store errors degrade to hard-coded fallbacks.
func (r *Resolver) MaxOutputTokens(ctx context.Context, provider, model string) int {
	key := provider + "::" + model

	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok && (r.ttl == 0 || r.now().Sub(e.loadedAt) < r.ttl) {
		return e.limit
	}

	// Collapse concurrent loads for the same key.
	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		limit := r.load(ctx, provider, model)
		r.mu.Lock()
		r.entries[key] = cacheEntry{limit: limit, loadedAt: r.now()}
		r.mu.Unlock()
		return limit, nil
	})
	return v.(int)
}

// Clear drops all cached entries. The next lookup per key reloads.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]cacheEntry)
	r.mu.Unlock()
}

func (r *Resolver) load(ctx context.Context, provider, model string) int {
	if r.store != nil {
		limit, err := r.store.GetLimit(ctx, provider, model)
		if err == nil && limit > 0 {
			return limit
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("provider", provider).Str("model", model).
				Msg("limits store unavailable, using fallback")
		}
	}
	return FallbackLimit(model)
}

// FallbackLimit returns the hard-coded limit for a model name, longest
// matching family prefix wins, then the conservative default.
func FallbackLimit(model string) int {
	bestPrefix := ""
	best := 0
	for prefix, limit := range familyFallbacks {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			best = limit
		}
	}
	if bestPrefix != "" {
		return best
	}
	return config.DefaultMaxOutputTokens
}

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLStore persists model limits in sqlite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps db and ensures the limits table exists.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	const ddl = `
CREATE TABLE IF NOT EXISTS model_limits (
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	max_output_tokens INTEGER NOT NULL,
	PRIMARY KEY (provider, model)
)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("creating model_limits table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// GetLimit returns the configured limit or ErrNotFound.
func (s *SQLStore) GetLimit(ctx context.Context, provider, model string) (int, error) {
	var limit int
	err := s.db.QueryRowContext(ctx,
		`SELECT max_output_tokens FROM model_limits WHERE provider = ? AND model = ?`,
		provider, model).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying model_limits: %w", err)
	}
	return limit, nil
}

// UpsertLimit inserts or replaces a limit row.
func (s *SQLStore) UpsertLimit(ctx context.Context, l ModelLimit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_limits (provider, model, max_output_tokens) VALUES (?, ?, ?)
		 ON CONFLICT (provider, model) DO UPDATE SET max_output_tokens = excluded.max_output_tokens`,
		l.Provider, l.Model, l.MaxOutputTokens)
	if err != nil {
		return fmt.Errorf("upserting model limit: %w", err)
	}
	return nil
}
