package providers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/streaming"
)

const (
	defaultClaudeBaseURL = "https://api.anthropic.com"
	claudeAPIVersion     = "2023-06-01"
)

// ClaudeAdapter speaks the Anthropic messages API over SSE.
type ClaudeAdapter struct {
	httpAdapter
}

// NewClaudeAdapter creates an adapter. Empty baseURL uses the public endpoint.
func NewClaudeAdapter(apiKey, baseURL string, timeout time.Duration) *ClaudeAdapter {
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	return &ClaudeAdapter{httpAdapter: newHTTPAdapter("claude", baseURL, apiKey, timeout)}
}

func (a *ClaudeAdapter) Name() string { return a.name }

func (a *ClaudeAdapter) Dialect() streaming.Dialect { return streaming.DialectSSE }

func (a *ClaudeAdapter) buildBody(p CallParams, stream bool) ([]byte, error) {
	maxTokens := p.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxOutputTokens
	}

	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, path, value)
	}

	set("model", p.Model)
	// max_tokens is mandatory on this API.
	set("max_tokens", maxTokens)
	if p.System != "" {
		set("system", p.System)
	}
	for i, m := range p.Messages {
		set(fmt.Sprintf("messages.%d.role", i), m.Role)
		set(fmt.Sprintf("messages.%d.content", i), m.Content)
	}
	if stream {
		set("stream", true)
	}
	if err != nil {
		return nil, fmt.Errorf("building claude request: %w", err)
	}
	return body, nil
}

func (a *ClaudeAdapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": claudeAPIVersion,
	}
}

// Complete implements Adapter.
func (a *ClaudeAdapter) Complete(ctx context.Context, p CallParams) (*Completion, error) {
	body, err := a.buildBody(p, false)
	if err != nil {
		return nil, err
	}
	resp, err := a.doPost(ctx, p.Model, a.baseURL+"/v1/messages", a.headers(), body)
	if err != nil {
		return nil, err
	}

	return &Completion{
		Text:     gjson.GetBytes(resp, "content.0.text").String(),
		Model:    p.Model,
		Provider: a.name,
		Usage: Usage{
			InputTokens:  int(gjson.GetBytes(resp, "usage.input_tokens").Int()),
			OutputTokens: int(gjson.GetBytes(resp, "usage.output_tokens").Int()),
		},
	}, nil
}

// OpenStream implements Adapter.
func (a *ClaudeAdapter) OpenStream(ctx context.Context, p CallParams) (io.ReadCloser, error) {
	body, err := a.buildBody(p, true)
	if err != nil {
		return nil, err
	}
	return a.openPost(ctx, p.Model, a.baseURL+"/v1/messages", a.headers(), body)
}
