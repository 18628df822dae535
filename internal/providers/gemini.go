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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter speaks the Google generateContent API. Streaming uses the
// chunked-JSON endpoint rather than alt=sse.
type GeminiAdapter struct {
	httpAdapter
}

// NewGeminiAdapter creates an adapter. Empty baseURL uses the public endpoint.
func NewGeminiAdapter(apiKey, baseURL string, timeout time.Duration) *GeminiAdapter {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiAdapter{httpAdapter: newHTTPAdapter("gemini", baseURL, apiKey, timeout)}
}

func (a *GeminiAdapter) Name() string { return a.name }

func (a *GeminiAdapter) Dialect() streaming.Dialect { return streaming.DialectChunkedJSON }

func (a *GeminiAdapter) buildBody(p CallParams) ([]byte, error) {
	body := []byte(`{}`)
	var err error

	if p.System != "" {
		body, err = sjson.SetBytes(body, "systemInstruction.parts.0.text", p.System)
		if err != nil {
			return nil, fmt.Errorf("building gemini request: %w", err)
		}
	}
	for i, m := range p.Messages {
		role := m.Role
		// Gemini names the assistant role "model".
		if role == "assistant" {
			role = "model"
		}
		body, err = sjson.SetBytes(body, fmt.Sprintf("contents.%d.role", i), role)
		if err != nil {
			return nil, fmt.Errorf("building gemini request: %w", err)
		}
		body, err = sjson.SetBytes(body, fmt.Sprintf("contents.%d.parts.0.text", i), m.Content)
		if err != nil {
			return nil, fmt.Errorf("building gemini request: %w", err)
		}
	}
	if p.MaxOutputTokens > 0 {
		body, err = sjson.SetBytes(body, "generationConfig.maxOutputTokens", p.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("building gemini request: %w", err)
		}
	}
	return body, nil
}

func (a *GeminiAdapter) endpoint(model, verb string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", a.baseURL, model, verb)
}

func (a *GeminiAdapter) headers() map[string]string {
	return map[string]string{"x-goog-api-key": a.apiKey}
}

// Complete implements Adapter.
func (a *GeminiAdapter) Complete(ctx context.Context, p CallParams) (*Completion, error) {
	body, err := a.buildBody(p)
	if err != nil {
		return nil, err
	}
	resp, err := a.doPost(ctx, p.Model, a.endpoint(p.Model, "generateContent"), a.headers(), body)
	if err != nil {
		return nil, err
	}

	text := gjson.GetBytes(resp, "candidates.0.content.parts.0.text").String()
	return &Completion{
		Text:     text,
		Model:    p.Model,
		Provider: a.name,
		Usage: Usage{
			InputTokens:  int(gjson.GetBytes(resp, "usageMetadata.promptTokenCount").Int()),
			OutputTokens: int(gjson.GetBytes(resp, "usageMetadata.candidatesTokenCount").Int()),
		},
	}, nil
}

// OpenStream implements Adapter.
func (a *GeminiAdapter) OpenStream(ctx context.Context, p CallParams) (io.ReadCloser, error) {
	body, err := a.buildBody(p)
	if err != nil {
		return nil, err
	}
	return a.openPost(ctx, p.Model, a.endpoint(p.Model, "streamGenerateContent"), a.headers(), body)
}
