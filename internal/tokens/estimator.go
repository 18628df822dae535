// Package tokens approximates token counts for context-sizing decisions.
//
// DESIGN: Two paths:
//   - Estimate():      char-ratio heuristic (~4 chars/token), always available
//   - CountExact():    tiktoken encoding when one exists for the model,
//     falling back to the heuristic otherwise
//
// The heuristic is good enough for trimming thresholds and usage backfill;
// it is not a billing-grade count.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docuquery/llm-gateway/internal/config"
)

// Estimator approximates token counts from text length.
type Estimator struct {
	charsPerToken int

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewEstimator creates an estimator with the given chars-per-token ratio.
// A non-positive ratio uses the default (4).
func NewEstimator(charsPerToken int) *Estimator {
	if charsPerToken <= 0 {
		charsPerToken = config.TokenEstimateRatio
	}
	return &Estimator{
		charsPerToken: charsPerToken,
		encodings:     make(map[string]*tiktoken.Tiktoken),
	}
}

// Estimate returns the approximate token count for text.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / e.charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateAll returns the approximate token count across several blocks.
func (e *Estimator) EstimateAll(blocks ...string) int {
	total := 0
	for _, b := range blocks {
		total += e.Estimate(b)
	}
	return total
}

// CountExact counts tokens with the model's tiktoken encoding when available.
// Unknown models fall back to Estimate.
func (e *Estimator) CountExact(model, text string) int {
	if text == "" {
		return 0
	}

	e.mu.Lock()
	enc, ok := e.encodings[model]
	if !ok {
		var err error
		enc, err = tiktoken.EncodingForModel(model)
		if err != nil {
			enc = nil
		}
		e.encodings[model] = enc
	}
	e.mu.Unlock()

	if enc == nil {
		return e.Estimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}
