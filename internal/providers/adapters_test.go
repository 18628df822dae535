package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestClaudeCompleteParsesResponse(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content":[{"type":"text","text":"Hello from Claude"}],
			"usage":{"input_tokens":15,"output_tokens":5}
		}`))
	}))
	defer srv.Close()

	a := NewClaudeAdapter("secret-key", srv.URL, time.Second)
	c, err := a.Complete(context.Background(), CallParams{
		Model:    "claude-sonnet-4",
		System:   "be brief",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello from Claude", c.Text)
	assert.Equal(t, 15, c.Usage.InputTokens)
	assert.Equal(t, 5, c.Usage.OutputTokens)

	assert.Equal(t, "claude-sonnet-4", gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "be brief", gjson.GetBytes(gotBody, "system").String())
	assert.Equal(t, "user", gjson.GetBytes(gotBody, "messages.0.role").String())
	assert.Greater(t, gjson.GetBytes(gotBody, "max_tokens").Int(), int64(0))
	assert.False(t, gjson.GetBytes(gotBody, "stream").Exists())
}

func TestClaudeStreamRequestsStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(body, "stream").Bool())
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	a := NewClaudeAdapter("k", srv.URL, time.Second)
	body, err := a.OpenStream(context.Background(), CallParams{
		Model:    "claude-sonnet-4",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	_ = body.Close()
}

func TestGeminiCompleteMapsRolesAndUsage(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"parts":[{"text":"Gemini says hi"}]}}],
			"usageMetadata":{"promptTokenCount":30,"candidatesTokenCount":8}
		}`))
	}))
	defer srv.Close()

	a := NewGeminiAdapter("g-key", srv.URL, time.Second)
	c, err := a.Complete(context.Background(), CallParams{
		Model:  "gemini-2.0-flash",
		System: "sys",
		Messages: []Message{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "reply"},
			{Role: "user", Content: "second"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Gemini says hi", c.Text)
	assert.Equal(t, 30, c.Usage.InputTokens)
	assert.Equal(t, 8, c.Usage.OutputTokens)

	assert.Equal(t, "sys", gjson.GetBytes(gotBody, "systemInstruction.parts.0.text").String())
	assert.Equal(t, "model", gjson.GetBytes(gotBody, "contents.1.role").String())
	assert.Equal(t, "second", gjson.GetBytes(gotBody, "contents.2.parts.0.text").String())
}

func TestOpenAICompleteInlinesSystemMessage(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer o-key", r.Header.Get("Authorization"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"gpt answer"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":4}
		}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("", "o-key", srv.URL, time.Second)
	c, err := a.Complete(context.Background(), CallParams{
		Model:    "gpt-4o",
		System:   "sys",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt answer", c.Text)
	assert.Equal(t, 12, c.Usage.InputTokens)
	assert.Equal(t, "system", gjson.GetBytes(gotBody, "messages.0.role").String())
	assert.Equal(t, "user", gjson.GetBytes(gotBody, "messages.1.role").String())
}

func TestAdapterClassifiesErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", 401, `{"error":"invalid api key"}`, KindConfig},
		{"missing model", 404, `{"error":"model not found"}`, KindNotFound},
		{"rate limited", 429, `{"error":"rate limit exceeded"}`, KindRateLimited},
		{"overloaded by body", 400, `{"error":{"message":"the engine is overloaded"}}`, KindRateLimited},
		{"unknown model by body", 400, `{"error":"unknown model xyz"}`, KindNotFound},
		{"server error", 500, `{"error":"boom"}`, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewOpenAIAdapter("", "k", srv.URL, time.Second)
			_, err := a.Complete(context.Background(), CallParams{
				Model:    "gpt-4o",
				Messages: []Message{{Role: "user", Content: "hi"}},
			})
			require.Error(t, err)

			var ce *CallError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.want, ce.Kind)
			assert.Equal(t, tt.status, ce.Status)
		})
	}
}

func TestOpenStreamSurfacesErrorBeforeFirstByte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota exhausted"}`))
	}))
	defer srv.Close()

	a := NewClaudeAdapter("k", srv.URL, time.Second)
	_, err := a.OpenStream(context.Background(), CallParams{
		Model:    "claude-sonnet-4",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindRateLimited, ce.Kind)
}
