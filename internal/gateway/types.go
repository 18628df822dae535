package gateway

import (
	"context"

	"github.com/docuquery/llm-gateway/internal/metering"
	"github.com/docuquery/llm-gateway/internal/prompt"
	"github.com/docuquery/llm-gateway/internal/providers"
	"github.com/docuquery/llm-gateway/internal/streaming"
)

// Answer is the terminal result of a non-streaming ask.
type Answer struct {
	Text     string
	Sources  []prompt.SourceKind
	Model    string
	Provider string
	Cached   bool
	CostUSD  float64
}

// StreamAnswer hands the caller a live fragment channel. Model and Provider
// are known as soon as the stream opens; Sources reflect the assembled
// context. The channel closing is the termination marker.
type StreamAnswer struct {
	Fragments <-chan streaming.Fragment
	Sources   []prompt.SourceKind
	Model     string
	Provider  string
	Cached    bool
}

// dispatcher is the provider fallback entry point.
type dispatcher interface {
	Dispatch(ctx context.Context, req providers.DispatchRequest) (*providers.Completion, error)
	DispatchStream(ctx context.Context, req providers.DispatchRequest) (*providers.StreamHandle, error)
}

// instructionSource serves the current system instruction.
type instructionSource interface {
	Instruction(ctx context.Context) string
}

// searcher runs live web searches.
type searcher interface {
	Configured() bool
	Search(ctx context.Context, q string) (string, error)
}

// urlFetcher downloads linked page content as plain text.
type urlFetcher interface {
	FetchPlainText(ctx context.Context, url string) (string, error)
}

// usageRecorder prices and persists one metered call.
type usageRecorder interface {
	Record(ctx context.Context, rec metering.UsageRecord) (metering.UsageRecord, error)
}

// turnRecorder appends a completed exchange to session history.
type turnRecorder interface {
	AppendTurn(ctx context.Context, sessionID, question, answer string) error
}
