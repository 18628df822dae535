package providers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/docuquery/llm-gateway/internal/streaming"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIAdapter speaks the chat-completions API over SSE. It also covers
// OpenAI-compatible vendors (Groq, Together, local gateways) via baseURL.
type OpenAIAdapter struct {
	httpAdapter
}

// NewOpenAIAdapter creates an adapter. name lets compatible vendors keep
// their own provider key; empty baseURL uses the public OpenAI endpoint.
func NewOpenAIAdapter(name, apiKey, baseURL string, timeout time.Duration) *OpenAIAdapter {
	if name == "" {
		name = "openai"
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIAdapter{httpAdapter: newHTTPAdapter(name, baseURL, apiKey, timeout)}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) Dialect() streaming.Dialect { return streaming.DialectSSE }

func (a *OpenAIAdapter) buildBody(p CallParams, stream bool) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, path, value)
	}

	set("model", p.Model)
	idx := 0
	if p.System != "" {
		set(fmt.Sprintf("messages.%d.role", idx), "system")
		set(fmt.Sprintf("messages.%d.content", idx), p.System)
		idx++
	}
	for _, m := range p.Messages {
		set(fmt.Sprintf("messages.%d.role", idx), m.Role)
		set(fmt.Sprintf("messages.%d.content", idx), m.Content)
		idx++
	}
	if p.MaxOutputTokens > 0 {
		set("max_completion_tokens", p.MaxOutputTokens)
	}
	if stream {
		set("stream", true)
		// Usage arrives in a final chunk only when asked for.
		set("stream_options.include_usage", true)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", a.name, err)
	}
	return body, nil
}

func (a *OpenAIAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

// Complete implements Adapter.
func (a *OpenAIAdapter) Complete(ctx context.Context, p CallParams) (*Completion, error) {
	body, err := a.buildBody(p, false)
	if err != nil {
		return nil, err
	}
	resp, err := a.doPost(ctx, p.Model, a.baseURL+"/v1/chat/completions", a.headers(), body)
	if err != nil {
		return nil, err
	}

	return &Completion{
		Text:     gjson.GetBytes(resp, "choices.0.message.content").String(),
		Model:    p.Model,
		Provider: a.name,
		Usage: Usage{
			InputTokens:  int(gjson.GetBytes(resp, "usage.prompt_tokens").Int()),
			OutputTokens: int(gjson.GetBytes(resp, "usage.completion_tokens").Int()),
		},
	}, nil
}

// OpenStream implements Adapter.
func (a *OpenAIAdapter) OpenStream(ctx context.Context, p CallParams) (io.ReadCloser, error) {
	body, err := a.buildBody(p, true)
	if err != nil {
		return nil, err
	}
	return a.openPost(ctx, p.Model, a.baseURL+"/v1/chat/completions", a.headers(), body)
}
