// Package prompt holds the request data model and context assembly.
//
// DESIGN: PromptRequest is immutable once built; AssembledPrompt is derived
// from it and never mutated after construction. SourceDescriptors list
// exactly the optional sections that were appended — consumers rely on there
// being no phantom citations.
package prompt

import "time"

// ContextBlock is one labeled piece of document context.
type ContextBlock struct {
	SourceLabel string
	Text        string
}

// HistoryTurn is one prior question/answer exchange, most-recent-last.
type HistoryTurn struct {
	Question  string
	Answer    string
	Timestamp time.Time
}

// CallerMetadata identifies the caller for caching, metering and tracing.
type CallerMetadata struct {
	UserID    string
	SessionID string
	FileID    string
	Endpoint  string
	RequestID string
}

// PromptRequest is the inbound ask. Build it once; do not mutate.
type PromptRequest struct {
	Question        string
	DocumentContext []ContextBlock
	History         []HistoryTurn
	ProviderHint    string
	Metadata        CallerMetadata
}

// SourceKind tags a context section included in an assembled prompt.
type SourceKind string

const (
	SourceDocuments SourceKind = "documents"
	SourceProfile   SourceKind = "profile"
	SourceWeb       SourceKind = "web"
	SourceURL       SourceKind = "url"
)

// AssembledPrompt is the final payload handed to the dispatcher.
type AssembledPrompt struct {
	SystemInstruction string
	UserMessage       string
	Sources           []SourceKind
}

// HasSource reports whether the assembled prompt includes the given section.
func (p AssembledPrompt) HasSource(kind SourceKind) bool {
	for _, s := range p.Sources {
		if s == kind {
			return true
		}
	}
	return false
}
