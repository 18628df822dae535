// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:   Total and successful ask counts
//   - cache_hits/misses:    Response cache performance
//   - fallbacks/exhausted:  Provider fallback activity
//   - web_searches:         Live augmentation fetches
//   - stream_timeouts:      Inactivity watchdog terminations
//
// Counters are idempotent overwrites-free accumulations; races on reads are
// tolerated. For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests  atomic.Int64
	successes atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	modelFallbacks     atomic.Int64
	providersExhausted atomic.Int64

	webSearches    atomic.Int64
	urlFetches     atomic.Int64
	streamTimeouts atomic.Int64

	totalInputTokens  atomic.Int64
	totalOutputTokens atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startedAt: time.Now()}
}

// RecordRequest records a completed ask.
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordCacheHit records a response-cache hit.
func (mc *MetricsCollector) RecordCacheHit() { mc.cacheHits.Add(1) }

// RecordCacheMiss records a response-cache miss.
func (mc *MetricsCollector) RecordCacheMiss() { mc.cacheMisses.Add(1) }

// RecordModelFallback records one advance along a fallback chain.
func (mc *MetricsCollector) RecordModelFallback() { mc.modelFallbacks.Add(1) }

// RecordExhausted records a fully exhausted fallback chain.
func (mc *MetricsCollector) RecordExhausted() { mc.providersExhausted.Add(1) }

// RecordWebSearch records a live search call.
func (mc *MetricsCollector) RecordWebSearch() { mc.webSearches.Add(1) }

// RecordURLFetch records a URL content fetch.
func (mc *MetricsCollector) RecordURLFetch() { mc.urlFetches.Add(1) }

// RecordStreamTimeout records an inactivity watchdog termination.
func (mc *MetricsCollector) RecordStreamTimeout() { mc.streamTimeouts.Add(1) }

// RecordAPIUsage records actual token usage from a provider response.
func (mc *MetricsCollector) RecordAPIUsage(inputTokens, outputTokens int) {
	mc.totalInputTokens.Add(int64(inputTokens))
	mc.totalOutputTokens.Add(int64(outputTokens))
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":            mc.requests.Load(),
		"successes":           mc.successes.Load(),
		"cache_hits":          mc.cacheHits.Load(),
		"cache_misses":        mc.cacheMisses.Load(),
		"model_fallbacks":     mc.modelFallbacks.Load(),
		"providers_exhausted": mc.providersExhausted.Load(),
		"web_searches":        mc.webSearches.Load(),
		"url_fetches":         mc.urlFetches.Load(),
		"stream_timeouts":     mc.streamTimeouts.Load(),
		"input_tokens":        mc.totalInputTokens.Load(),
		"output_tokens":       mc.totalOutputTokens.Load(),
	}
}

// CacheHitRate returns the hit percentage, 0 when no lookups yet.
func (mc *MetricsCollector) CacheHitRate() float64 {
	hits := mc.cacheHits.Load()
	total := hits + mc.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
