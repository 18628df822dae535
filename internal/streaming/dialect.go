// Package streaming normalizes provider-native incremental output into a
// uniform sequence of text fragments.
//
// DESIGN: Protocol quirks live in small ChunkParser implementations selected
// by the provider's wire dialect; the normalizer owns framing, the inactivity
// watchdog and error recovery. Two dialects ship:
//   - sse:          line-delimited "data: {json}" events with a [DONE]
//     sentinel and keep-alive ping lines
//   - chunked_json: incrementally flushed JSON objects
//
// Vendors vary the nested shape of their deltas between models, so parsers
// probe several known paths rather than binding to one.
package streaming

import "github.com/tidwall/gjson"

// Dialect names a streaming wire format.
type Dialect string

const (
	// DialectSSE is server-sent-events framing (Claude- and OpenAI-style).
	DialectSSE Dialect = "sse"
	// DialectChunkedJSON is incrementally flushed JSON objects (Gemini-style).
	DialectChunkedJSON Dialect = "chunked_json"
)

// ChunkParser extracts the text delta from one raw frame.
// ok=false means the frame carries no text (control frames, malformed data).
type ChunkParser interface {
	ParseChunk(frame []byte) (text string, ok bool)
}

// DeltaParser probes a list of gjson paths and returns the first non-empty
// match. Tolerates shape variation between models of the same vendor.
type DeltaParser struct {
	paths []string
}

// NewDeltaParser creates a parser probing the given paths in order.
func NewDeltaParser(paths ...string) *DeltaParser {
	return &DeltaParser{paths: paths}
}

// ParseChunk implements ChunkParser.
func (p *DeltaParser) ParseChunk(frame []byte) (string, bool) {
	if !gjson.ValidBytes(frame) {
		return "", false
	}
	for _, path := range p.paths {
		if r := gjson.GetBytes(frame, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String(), true
		}
	}
	return "", false
}

// ParserForDialect returns the stock parser for a dialect, covering the known
// delta shapes of the fixed adapter set.
func ParserForDialect(d Dialect) ChunkParser {
	switch d {
	case DialectChunkedJSON:
		return NewDeltaParser(
			"candidates.0.content.parts.0.text",
			"candidates.0.content.parts.#(text).text",
			"text",
		)
	default:
		return NewDeltaParser(
			"delta.text",                // Claude content_block_delta
			"content_block.text",        // Claude content_block_start
			"choices.0.delta.content",   // OpenAI-compatible chat chunks
			"choices.0.text",            // OpenAI-compatible completions
			"candidates.0.content.parts.0.text", // Gemini alt=sse
		)
	}
}

func gjsonValid(frame []byte) bool {
	return gjson.ValidBytes(frame)
}

// UsageTally accumulates usage figures surfaced inside stream frames.
// Input takes the latest positive value; output takes the running maximum,
// since vendors emit cumulative counts in trailing frames.
type UsageTally struct {
	InputTokens  int
	OutputTokens int
}

var usageInputPaths = []string{
	"usage.input_tokens",
	"message.usage.input_tokens",
	"usage.prompt_tokens",
	"usageMetadata.promptTokenCount",
}

var usageOutputPaths = []string{
	"usage.output_tokens",
	"message.usage.output_tokens",
	"usage.completion_tokens",
	"usageMetadata.candidatesTokenCount",
}

// Feed inspects one frame for usage figures.
func (u *UsageTally) Feed(frame []byte) {
	if !gjson.ValidBytes(frame) {
		return
	}
	for _, p := range usageInputPaths {
		if r := gjson.GetBytes(frame, p); r.Exists() && r.Int() > 0 {
			u.InputTokens = int(r.Int())
			break
		}
	}
	for _, p := range usageOutputPaths {
		if r := gjson.GetBytes(frame, p); r.Exists() && int(r.Int()) > u.OutputTokens {
			u.OutputTokens = int(r.Int())
			break
		}
	}
}
