// Package respcache is the content-addressed response cache.
//
// DESIGN: The cache key is a SHA-256 of the whitespace-collapsed, lowercased
// prompt, optionally prefixed with a deployment secret so identical prompts
// hash differently across deployments. Entries are scoped by
// (userID, contextID, hash). A lookup hits only when all of:
//   - the scoped key matches
//   - the entry's scope tag matches the caller's scope
//   - the entry has not expired
//   - the entry is newer than the user's last document upload
//
// Store failures on either path degrade to a miss; the cache never makes a
// request fail.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/monitoring"
	"github.com/docuquery/llm-gateway/internal/utils"
)

// Entry is one cached answer, keyed by (UserID, ContextID, Key). Scope tags
// the answer mode it was produced under; a lookup from a different scope
// misses rather than replaying an answer built for another surface.
type Entry struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	ContextID string    `json:"context_id"`
	Scope     string    `json:"scope"`
	Answer    string    `json:"answer"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists entries and per-user document upload marks.
type Store interface {
	Get(ctx context.Context, userID, contextID, key string) (*Entry, error)
	Put(ctx context.Context, e Entry) error
	LastDocumentUpload(ctx context.Context, userID string) (time.Time, error)
	MarkDocumentUpload(ctx context.Context, userID string, at time.Time) error
}

// Cache wraps a Store with hashing and invalidation rules.
type Cache struct {
	store   Store
	ttl     time.Duration
	secret  string
	metrics *monitoring.MetricsCollector
	now     func() time.Time
}

// New creates a cache. Zero ttl uses the default; metrics may be nil.
func New(store Store, ttl time.Duration, secret string, metrics *monitoring.MetricsCollector) *Cache {
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}
	return &Cache{store: store, ttl: ttl, secret: secret, metrics: metrics, now: time.Now}
}

// Hash derives the cache key for a prompt. Whitespace runs and letter case do
// not change the key.
func (c *Cache) Hash(prompt string) string {
	sum := sha256.Sum256([]byte(c.secret + utils.CollapseWhitespace(prompt)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached answer for prompt, or nil on any kind of miss.
func (c *Cache) Get(ctx context.Context, prompt, userID, contextID, scope string) *Entry {
	key := c.Hash(prompt)

	e, err := c.store.Get(ctx, userID, contextID, key)
	if err != nil {
		log.Warn().Err(err).Msg("cache lookup failed, treating as miss")
		c.recordMiss()
		return nil
	}
	if e == nil || e.Scope != scope || c.now().After(e.ExpiresAt) {
		c.recordMiss()
		return nil
	}

	lastUpload, err := c.store.LastDocumentUpload(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("upload mark lookup failed, treating as miss")
		c.recordMiss()
		return nil
	}
	if e.CreatedAt.Before(lastUpload) {
		// Document context changed after this answer was produced.
		c.recordMiss()
		return nil
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
	return e
}

// Put stores an answer. Failures are logged and swallowed.
func (c *Cache) Put(ctx context.Context, prompt, userID, contextID, scope, answer, model, provider string) {
	now := c.now()
	e := Entry{
		Key:       c.Hash(prompt),
		UserID:    userID,
		ContextID: contextID,
		Scope:     scope,
		Answer:    answer,
		Model:     model,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.store.Put(ctx, e); err != nil {
		log.Warn().Err(err).Msg("cache write failed")
	}
}

// RecordDocumentUpload invalidates the user's earlier entries by moving the
// upload mark forward.
func (c *Cache) RecordDocumentUpload(ctx context.Context, userID string) {
	if err := c.store.MarkDocumentUpload(ctx, userID, c.now()); err != nil {
		log.Warn().Err(err).Msg("upload mark write failed")
	}
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}
