package webaugment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/config"
)

// Fetcher downloads URL content referenced in a query and reduces it to
// plain text for prompt inclusion.
type Fetcher struct {
	httpClient *http.Client
	cap        int
}

// NewFetcher creates a fetcher with the given timeout. Zero timeout uses the
// default fetch timeout; a non-positive cap uses URLContentCap.
func NewFetcher(timeout time.Duration, cap int) *Fetcher {
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	if cap <= 0 {
		cap = config.URLContentCap
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		cap:        cap,
	}
}

// FetchPlainText downloads url, strips HTML to plain text and caps the
// result. Errors degrade to "no content" at the caller.
func (f *Fetcher) FetchPlainText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html, text/plain")
	req.Header.Set("User-Agent", "docuquery-gateway/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	// Read at most 10x the text cap of raw HTML; markup inflates the source
	// well beyond the visible text.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.cap)*10))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	text := StripHTML(string(body))
	if len(text) > f.cap {
		text = text[:f.cap]
	}

	log.Debug().Str("url", url).Int("chars", len(text)).Msg("fetched url content")
	return text, nil
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces an HTML document to readable plain text.
func StripHTML(html string) string {
	text := scriptPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)
	text = spacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = blankPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
