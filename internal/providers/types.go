// Package providers dispatches calls across LLM vendors with model fallback.
//
// DESIGN: Main pieces:
//   - Adapter:       one per vendor dialect (Gemini, Claude, OpenAI-compatible)
//   - Dispatcher:    explicit TRYING → SUCCESS | EXHAUSTED state machine over
//     a provider's ordered model fallback list
//   - SystemPromptCache: TTL-cached system instruction with last-known-good
//     and hard-coded fallbacks
//
// The adapter set is fixed; this is not a plugin system.
package providers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docuquery/llm-gateway/internal/streaming"
)

// Message is one role-tagged turn sent to a provider.
type Message struct {
	Role    string
	Content string
}

// CallParams is a single adapter invocation.
type CallParams struct {
	Model           string
	System          string
	Messages        []Message
	MaxOutputTokens int
}

// Usage holds token counts reported by a provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is a successful non-streaming result.
type Completion struct {
	Text     string
	Model    string
	Provider string
	Usage    Usage

	// UsageEstimated is set when the provider omitted usage figures and the
	// counts were backfilled from the token estimator.
	UsageEstimated bool
}

// Adapter speaks one vendor's wire protocol.
type Adapter interface {
	Name() string
	Dialect() streaming.Dialect
	Complete(ctx context.Context, p CallParams) (*Completion, error)
	OpenStream(ctx context.Context, p CallParams) (io.ReadCloser, error)
}

// ProviderModelSpec is the static per-provider configuration: the ordered
// model fallback list and wire dialect. Loaded once at process start.
type ProviderModelSpec struct {
	Key     string
	Models  []string
	Dialect streaming.Dialect
}

// =============================================================================
// FAILURE TAXONOMY
// =============================================================================

// ErrorKind classifies an adapter failure for the dispatcher.
type ErrorKind int

const (
	// KindOther is any unclassified failure: advance to the next model.
	KindOther ErrorKind = iota
	// KindNotFound means the model is unknown/unsupported: advance with no delay.
	KindNotFound
	// KindRateLimited means quota/overload: back off before retrying.
	KindRateLimited
	// KindConfig means missing/invalid credentials: fatal, never retried.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindConfig:
		return "config"
	default:
		return "other"
	}
}

// CallError is a classified provider failure.
type CallError struct {
	Provider string
	Model    string
	Status   int
	Kind     ErrorKind
	Body     string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s/%s: %s (status %d): %s", e.Provider, e.Model, e.Kind, e.Status, e.Body)
}

var notFoundMarkers = []string{
	"not found",
	"not_found",
	"does not exist",
	"unknown model",
	"is not supported",
	"unsupported model",
}

var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"quota",
	"overloaded",
	"resource has been exhausted",
	"too many requests",
	"capacity",
}

// classifyFailure maps an HTTP status and response body to an ErrorKind.
// Keyword matching covers vendors that return errors with misleading codes.
func classifyFailure(status int, body string) ErrorKind {
	lower := strings.ToLower(body)

	switch status {
	case 401, 403:
		return KindConfig
	case 404:
		return KindNotFound
	case 429, 503:
		return KindRateLimited
	}

	for _, m := range notFoundMarkers {
		if strings.Contains(lower, m) {
			return KindNotFound
		}
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return KindRateLimited
		}
	}
	return KindOther
}

// ExhaustedError aggregates a fully failed fallback chain.
type ExhaustedError struct {
	Provider    string
	ModelsTried int
	LastErr     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("provider %s exhausted after %d model(s): %v", e.Provider, e.ModelsTried, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }
