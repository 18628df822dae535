package respcache

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestCache(t *testing.T) (*Cache, *SQLStore) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return New(store, time.Hour, "", nil), store
}

func TestHashNormalizesWhitespaceAndCase(t *testing.T) {
	c, _ := newTestCache(t)

	base := c.Hash("What is the  capital of France?")
	assert.Equal(t, base, c.Hash("what is the capital of france?"))
	assert.Equal(t, base, c.Hash("  What\tis the\ncapital   of France?  "))
	assert.NotEqual(t, base, c.Hash("What is the capital of Spain?"))
}

func TestHashVariesWithSecret(t *testing.T) {
	_, store := newTestCache(t)
	plain := New(store, time.Hour, "", nil)
	salted := New(store, time.Hour, "deployment-secret", nil)

	assert.NotEqual(t, plain.Hash("same prompt"), salted.Hash("same prompt"))
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	assert.Nil(t, c.Get(ctx, "the prompt", "u1", "file-1", "chat"))

	c.Put(ctx, "the prompt", "u1", "file-1", "chat", "the answer", "gemini-2.0-flash", "gemini")

	e := c.Get(ctx, "The  Prompt", "u1", "file-1", "chat")
	require.NotNil(t, e)
	assert.Equal(t, "the answer", e.Answer)
	assert.Equal(t, "gemini-2.0-flash", e.Model)
}

func TestCacheScopeIsolation(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Put(ctx, "shared prompt", "u1", "file-1", "chat", "scoped answer", "m", "p")

	assert.NotNil(t, c.Get(ctx, "shared prompt", "u1", "file-1", "chat"))
	assert.Nil(t, c.Get(ctx, "shared prompt", "u2", "file-1", "chat"), "other user must miss")
	assert.Nil(t, c.Get(ctx, "shared prompt", "u1", "file-2", "chat"), "other context must miss")
}

func TestCacheScopeTagMustMatch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Put(ctx, "shared prompt", "u1", "file-1", "chat", "chat answer", "m", "p")

	assert.Nil(t, c.Get(ctx, "shared prompt", "u1", "file-1", "summary"),
		"an answer produced under one scope must not serve another")
	assert.NotNil(t, c.Get(ctx, "shared prompt", "u1", "file-1", "chat"))

	// Rewriting under a new scope retags the entry.
	c.Put(ctx, "shared prompt", "u1", "file-1", "summary", "summary answer", "m", "p")
	assert.Nil(t, c.Get(ctx, "shared prompt", "u1", "file-1", "chat"))
	e := c.Get(ctx, "shared prompt", "u1", "file-1", "summary")
	require.NotNil(t, e)
	assert.Equal(t, "summary answer", e.Answer)
}

func TestCacheExpiry(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put(ctx, "prompt", "u", "f", "chat", "answer", "m", "p")

	assert.NotNil(t, c.Get(ctx, "prompt", "u", "f", "chat"))

	now = now.Add(2 * time.Hour)
	assert.Nil(t, c.Get(ctx, "prompt", "u", "f", "chat"))
}

func TestDocumentUploadInvalidates(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(ctx, "prompt", "u", "f", "chat", "stale answer", "m", "p")

	now = now.Add(time.Second)
	c.RecordDocumentUpload(ctx, "u")
	assert.Nil(t, c.Get(ctx, "prompt", "u", "f", "chat"), "entries older than the upload must miss")

	// Uploads by another user do not invalidate.
	c.Put(ctx, "other prompt", "v", "f", "chat", "fresh answer", "m", "p")
	now = now.Add(time.Second)
	c.RecordDocumentUpload(ctx, "u")
	assert.NotNil(t, c.Get(ctx, "other prompt", "v", "f", "chat"))

	// A newer answer after the upload hits again.
	now = now.Add(time.Second)
	c.Put(ctx, "prompt", "u", "f", "chat", "fresh answer", "m", "p")
	e := c.Get(ctx, "prompt", "u", "f", "chat")
	require.NotNil(t, e)
	assert.Equal(t, "fresh answer", e.Answer)
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string, string, string) (*Entry, error) {
	return nil, errors.New("store down")
}
func (brokenStore) Put(context.Context, Entry) error { return errors.New("store down") }
func (brokenStore) LastDocumentUpload(context.Context, string) (time.Time, error) {
	return time.Time{}, errors.New("store down")
}
func (brokenStore) MarkDocumentUpload(context.Context, string, time.Time) error {
	return errors.New("store down")
}

func TestCacheDegradesToMissOnStoreFailure(t *testing.T) {
	c := New(brokenStore{}, time.Hour, "", nil)
	ctx := context.Background()

	assert.Nil(t, c.Get(ctx, "prompt", "u", "f", "chat"))
	assert.NotPanics(t, func() {
		c.Put(ctx, "prompt", "u", "f", "chat", "answer", "m", "p")
		c.RecordDocumentUpload(ctx, "u")
	})
}

func TestSQLStorePrune(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store, err := NewSQLStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Put(ctx, Entry{Key: "old", UserID: "u", ContextID: "f", Answer: "a",
		Model: "m", Provider: "p", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Put(ctx, Entry{Key: "new", UserID: "u", ContextID: "f", Answer: "a",
		Model: "m", Provider: "p", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	n, err := store.Prune(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	e, err := store.Get(ctx, "u", "f", "new")
	require.NoError(t, err)
	assert.NotNil(t, e)
}
