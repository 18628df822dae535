package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLDocumentStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLDocumentStore(db)
	require.NoError(t, err)
	return s
}

func TestDocumentChunksRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreChunks(ctx, "u1", "f1", "contract.pdf",
		[]string{"clause one", "clause two"}))
	require.NoError(t, s.StoreChunks(ctx, "u1", "f2", "notes.txt",
		[]string{"note"}))
	require.NoError(t, s.StoreChunks(ctx, "u2", "f3", "other.txt",
		[]string{"other user"}))

	all, err := s.GetDocumentText(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "contract.pdf", all[0].SourceLabel)
	assert.Equal(t, "clause one", all[0].Text)

	one, err := s.GetDocumentText(ctx, "u1", "f2")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "note", one[0].Text)

	// Re-storing a file replaces its chunks.
	require.NoError(t, s.StoreChunks(ctx, "u1", "f1", "contract.pdf",
		[]string{"revised clause"}))
	replaced, err := s.GetDocumentText(ctx, "u1", "f1")
	require.NoError(t, err)
	require.Len(t, replaced, 1)
	assert.Equal(t, "revised clause", replaced[0].Text)
}

func TestChatHistoryOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "sess", "first?", "one"))
	require.NoError(t, s.AppendTurn(ctx, "sess", "second?", "two"))
	require.NoError(t, s.AppendTurn(ctx, "other", "third?", "three"))

	turns, err := s.GetChatHistory(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first?", turns[0].Question)
	assert.Equal(t, "two", turns[1].Answer)
}

func TestUserProfileMissingIsEmpty(t *testing.T) {
	s := newTestStore(t)

	body, err := s.GetUserProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, body)
}
