// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used for rough token counting when exact counts aren't available.
const TokenEstimateRatio = 4

// =============================================================================
// CONTEXT ASSEMBLY
// =============================================================================

// DefaultContextTokenBudget is the maximum estimated tokens for a single
// context block before tail truncation kicks in.
const DefaultContextTokenBudget = 20000

// TruncationMarker is appended to context blocks cut at the budget boundary.
const TruncationMarker = "\n\n[...content truncated...]"

// DefaultMaxChunks is the candidate chunk count above which relevance
// filtering is applied.
const DefaultMaxChunks = 12

// KeywordMinLength is the minimum word length (exclusive) for query keywords.
const KeywordMinLength = 3

// MaxQueryKeywords caps how many query keywords score chunks.
const MaxQueryKeywords = 10

// =============================================================================
// WEB AUGMENTATION
// =============================================================================

// DefaultContextLengthThreshold is the document-context size (chars) below
// which a general-knowledge question triggers web search.
const DefaultContextLengthThreshold = 500

// URLContentCap is the maximum plain-text length kept from a fetched URL.
const URLContentCap = 10000

// DefaultSearchTimeout bounds calls to the web-search collaborator.
const DefaultSearchTimeout = 10 * time.Second

// DefaultFetchTimeout bounds URL content fetches.
const DefaultFetchTimeout = 15 * time.Second

// =============================================================================
// PROVIDER DISPATCH
// =============================================================================

// DefaultBackoffBase is the base delay for rate-limit backoff. The actual
// wait is base * attempt number.
const DefaultBackoffBase = 2 * time.Second

// DefaultMaxBackoffAttempts is the number of rate-limit retries per model.
const DefaultMaxBackoffAttempts = 3

// DefaultProviderTimeout bounds a single non-streaming provider call.
const DefaultProviderTimeout = 240 * time.Second

// DefaultSystemPromptTTL is how long a resolved system instruction is cached.
const DefaultSystemPromptTTL = 5 * time.Minute

// =============================================================================
// STREAMING
// =============================================================================

// DefaultStreamIdleTimeout terminates a stream with no inter-chunk data.
const DefaultStreamIdleTimeout = 30 * time.Second

// DefaultBufferSize is the standard I/O buffer size.
const DefaultBufferSize = 4096

// MaxStreamLineSize is the largest single frame a streaming scanner accepts.
const MaxStreamLineSize = 1024 * 1024

// =============================================================================
// MODEL LIMITS
// =============================================================================

// DefaultMaxOutputTokens is the hard-coded fallback when no limit row exists.
const DefaultMaxOutputTokens = 4096

// DefaultLimitsTTL is the model-limits cache TTL. Zero means process-lifetime
// (the historical behavior); deployments can opt into refresh.
const DefaultLimitsTTL = time.Duration(0)

// =============================================================================
// RESPONSE CACHE
// =============================================================================

// DefaultCacheTTL is the response-cache entry lifetime. Zero disables expiry.
const DefaultCacheTTL = 24 * time.Hour

// =============================================================================
// USAGE METERING
// =============================================================================

// DefaultBillingTimeout bounds the fire-and-forget usage forwarding call.
const DefaultBillingTimeout = 5 * time.Second
