package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	value string
	err   error
	calls int
}

func (s *fakeSource) CurrentInstruction(context.Context) (string, error) {
	s.calls++
	return s.value, s.err
}

func TestSystemPromptCacheServesGenericWhenSourceNeverWorked(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	c := NewSystemPromptCache(src, time.Minute)

	got := c.Instruction(context.Background())
	assert.Equal(t, genericInstruction, got)
}

func TestSystemPromptCacheServesLastKnownGood(t *testing.T) {
	src := &fakeSource{value: "custom instruction"}
	c := NewSystemPromptCache(src, time.Minute)

	assert.Equal(t, "custom instruction", c.Instruction(context.Background()))

	// Expire the entry, then break the source.
	src.value = ""
	src.err = errors.New("db down")
	c.mu.Lock()
	c.fetchedAt = c.fetchedAt.Add(-2 * time.Minute)
	c.mu.Unlock()

	assert.Equal(t, "custom instruction", c.Instruction(context.Background()))
}

func TestSystemPromptCacheRespectsTTL(t *testing.T) {
	src := &fakeSource{value: "v1"}
	c := NewSystemPromptCache(src, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }

	assert.Equal(t, "v1", c.Instruction(context.Background()))
	assert.Equal(t, "v1", c.Instruction(context.Background()))
	assert.Equal(t, 1, src.calls, "fresh entry must not refetch")

	src.value = "v2"
	now = now.Add(2 * time.Minute)
	assert.Equal(t, "v2", c.Instruction(context.Background()))
	assert.Equal(t, 2, src.calls)
}
