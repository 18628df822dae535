package webaugment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docuquery/llm-gateway/internal/config"
)

// SearchClient calls the web-search collaborator. Failures are non-fatal
// upstream — the gateway degrades to answering without live results.
type SearchClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// SearchResult is one hit returned by the collaborator.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// NewSearchClient creates a search client. Zero timeout uses the default.
func NewSearchClient(endpoint, apiKey string, timeout time.Duration) *SearchClient {
	if timeout <= 0 {
		timeout = config.DefaultSearchTimeout
	}
	return &SearchClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a search endpoint is set.
func (c *SearchClient) Configured() bool {
	return c.endpoint != ""
}

// Search runs a query and returns results formatted as prompt context.
func (c *SearchClient) Search(ctx context.Context, q string) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("search endpoint not configured")
	}

	payload, err := json.Marshal(struct {
		Query string `json:"query"`
	}{Query: q})
	if err != nil {
		return "", fmt.Errorf("marshaling query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing search response: %w", err)
	}

	return FormatResults(parsed.Results), nil
}

// FormatResults renders search hits as a plain-text context block.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n", i+1, r.Title, r.Snippet)
		if r.URL != "" {
			b.WriteString(r.URL + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
