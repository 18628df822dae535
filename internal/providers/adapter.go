package providers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/utils"
)

// maxErrorBodyLen bounds error bodies kept for classification and logs.
const maxErrorBodyLen = 2000

// httpAdapter holds the transport shared by all vendor adapters.
type httpAdapter struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newHTTPAdapter(name, baseURL, apiKey string, timeout time.Duration) httpAdapter {
	if timeout <= 0 {
		timeout = config.DefaultProviderTimeout
	}
	return httpAdapter{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Streaming bodies outlive the response header exchange; the
			// per-call context carries the real deadline.
			Timeout: 0,
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

// doPost sends a JSON POST and returns the full response body.
// Non-2xx responses become classified CallErrors.
func (a *httpAdapter) doPost(ctx context.Context, model, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Provider: a.name, Model: model, Kind: KindOther, Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &CallError{Provider: a.name, Model: model, Kind: KindOther, Body: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Provider: a.name, Model: model, Status: resp.StatusCode, Kind: KindOther, Body: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return nil, a.callError(model, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// openPost sends a JSON POST and returns the response body stream.
// Non-2xx responses are drained and become classified CallErrors.
func (a *httpAdapter) openPost(ctx context.Context, model, url string, headers map[string]string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Provider: a.name, Model: model, Kind: KindOther, Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &CallError{Provider: a.name, Model: model, Kind: KindOther, Body: err.Error()}
	}

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		_ = resp.Body.Close()
		return nil, a.callError(model, resp.StatusCode, errBody)
	}
	return resp.Body, nil
}

func (a *httpAdapter) callError(model string, status int, body []byte) *CallError {
	text := utils.Truncate(string(body), maxErrorBodyLen)
	kind := classifyFailure(status, text)

	log.Debug().
		Str("provider", a.name).
		Str("model", model).
		Int("status", status).
		Str("kind", kind.String()).
		Str("api_key", utils.MaskKey(a.apiKey)).
		Msg("provider call failed")

	return &CallError{Provider: a.name, Model: model, Status: status, Kind: kind, Body: text}
}
