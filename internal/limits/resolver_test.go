package limits

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/docuquery/llm-gateway/internal/config"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetLimit(ctx, "gemini", "gemini-2.5-pro")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpsertLimit(ctx, ModelLimit{
		Provider: "gemini", Model: "gemini-2.5-pro", MaxOutputTokens: 32000,
	}))

	limit, err := store.GetLimit(ctx, "gemini", "gemini-2.5-pro")
	require.NoError(t, err)
	assert.Equal(t, 32000, limit)

	// Upsert replaces.
	require.NoError(t, store.UpsertLimit(ctx, ModelLimit{
		Provider: "gemini", Model: "gemini-2.5-pro", MaxOutputTokens: 16000,
	}))
	limit, err = store.GetLimit(ctx, "gemini", "gemini-2.5-pro")
	require.NoError(t, err)
	assert.Equal(t, 16000, limit)
}

func TestResolverCachesProcessLifetime(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertLimit(ctx, ModelLimit{
		Provider: "claude", Model: "claude-sonnet-4", MaxOutputTokens: 64000,
	}))

	r := NewResolver(store, 0)
	assert.Equal(t, 64000, r.MaxOutputTokens(ctx, "claude", "claude-sonnet-4"))

	// Table change is invisible until Clear (stale-until-restart behavior).
	require.NoError(t, store.UpsertLimit(ctx, ModelLimit{
		Provider: "claude", Model: "claude-sonnet-4", MaxOutputTokens: 1,
	}))
	assert.Equal(t, 64000, r.MaxOutputTokens(ctx, "claude", "claude-sonnet-4"))

	r.Clear()
	assert.Equal(t, 1, r.MaxOutputTokens(ctx, "claude", "claude-sonnet-4"))
}

func TestResolverTTLRefresh(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertLimit(ctx, ModelLimit{
		Provider: "gemini", Model: "gemini-1.5-flash", MaxOutputTokens: 8192,
	}))

	r := NewResolver(store, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	assert.Equal(t, 8192, r.MaxOutputTokens(ctx, "gemini", "gemini-1.5-flash"))

	require.NoError(t, store.UpsertLimit(ctx, ModelLimit{
		Provider: "gemini", Model: "gemini-1.5-flash", MaxOutputTokens: 4096,
	}))

	// Within TTL: cached value.
	assert.Equal(t, 8192, r.MaxOutputTokens(ctx, "gemini", "gemini-1.5-flash"))

	// Past TTL: reloaded.
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 4096, r.MaxOutputTokens(ctx, "gemini", "gemini-1.5-flash"))
}

type failingStore struct{}

func (failingStore) GetLimit(context.Context, string, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestResolverFallsBackWhenStoreDown(t *testing.T) {
	r := NewResolver(failingStore{}, 0)
	ctx := context.Background()

	assert.Equal(t, 65536, r.MaxOutputTokens(ctx, "gemini", "gemini-2.5-pro"))
	assert.Equal(t, 64000, r.MaxOutputTokens(ctx, "claude", "claude-sonnet-4-5"))
	assert.Equal(t, config.DefaultMaxOutputTokens, r.MaxOutputTokens(ctx, "x", "mystery-model"))
}

func TestFallbackLimitLongestPrefixWins(t *testing.T) {
	assert.Equal(t, 65536, FallbackLimit("gemini-2.5-pro-preview"))
	assert.Equal(t, 8192, FallbackLimit("gemini-1.5-pro"))
	assert.Equal(t, 16384, FallbackLimit("gpt-4o-mini"))
	assert.Equal(t, 8192, FallbackLimit("gpt-4-turbo"))
}
