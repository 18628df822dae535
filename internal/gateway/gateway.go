// Package gateway orchestrates one ask end to end: gather context, decide on
// web augmentation, assemble the prompt, consult the response cache, dispatch
// through provider fallback, and meter the outcome.
//
// DESIGN: Collaborator failures (document store, search, url fetch, cache,
// metering) degrade the answer, never abort it. Only dispatcher exhaustion
// and assembly of an empty question are fatal.
package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/metering"
	"github.com/docuquery/llm-gateway/internal/monitoring"
	"github.com/docuquery/llm-gateway/internal/prompt"
	"github.com/docuquery/llm-gateway/internal/providers"
	"github.com/docuquery/llm-gateway/internal/respcache"
	"github.com/docuquery/llm-gateway/internal/storage"
	"github.com/docuquery/llm-gateway/internal/streaming"
	"github.com/docuquery/llm-gateway/internal/tokens"
	"github.com/docuquery/llm-gateway/internal/webaugment"
)

// ErrEmptyQuestion rejects asks with no usable question text.
var ErrEmptyQuestion = errors.New("empty question")

// Gateway is the orchestrator. All collaborators except the dispatcher and
// assembler are optional; nil disables the corresponding step.
type Gateway struct {
	assembler  *prompt.Assembler
	sysPrompt  instructionSource
	decider    *webaugment.Decider
	search     searcher
	fetcher    urlFetcher
	cache      *respcache.Cache
	dispatcher dispatcher
	normalizer *streaming.Normalizer
	docs       storage.DocumentStore
	meter      usageRecorder
	turns      turnRecorder
	estimator  *tokens.Estimator
	metrics    *monitoring.MetricsCollector
}

// Options wires a Gateway.
type Options struct {
	Assembler  *prompt.Assembler
	SysPrompt  instructionSource
	Decider    *webaugment.Decider
	Search     searcher
	Fetcher    urlFetcher
	Cache      *respcache.Cache
	Dispatcher dispatcher
	Normalizer *streaming.Normalizer
	Docs       storage.DocumentStore
	Meter      usageRecorder
	Turns      turnRecorder
	Estimator  *tokens.Estimator
	Metrics    *monitoring.MetricsCollector
}

// New creates a gateway from options.
func New(o Options) *Gateway {
	return &Gateway{
		assembler:  o.Assembler,
		sysPrompt:  o.SysPrompt,
		decider:    o.Decider,
		search:     o.Search,
		fetcher:    o.Fetcher,
		cache:      o.Cache,
		dispatcher: o.Dispatcher,
		normalizer: o.Normalizer,
		docs:       o.Docs,
		meter:      o.Meter,
		turns:      o.Turns,
		estimator:  o.Estimator,
		metrics:    o.Metrics,
	}
}

// prepared is the outcome of the shared pre-dispatch pipeline.
type prepared struct {
	assembled prompt.AssembledPrompt
	userID    string
	contextID string
	scope     string
	webUsed   bool
}

// prepare gathers context, runs the augmentation decision and assembles the
// prompt. It never fails on collaborator errors.
func (g *Gateway) prepare(ctx context.Context, req prompt.PromptRequest) (prepared, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return prepared{}, ErrEmptyQuestion
	}
	meta := req.Metadata

	documents := req.DocumentContext
	history := req.History
	var profile string
	if g.docs != nil {
		if documents == nil {
			blocks, err := g.docs.GetDocumentText(ctx, meta.UserID, meta.FileID)
			if err != nil {
				log.Warn().Err(err).Str("user_id", meta.UserID).Msg("document lookup failed")
			} else {
				documents = blocks
			}
		}
		if history == nil && meta.SessionID != "" {
			turns, err := g.docs.GetChatHistory(ctx, meta.SessionID)
			if err != nil {
				log.Warn().Err(err).Str("session_id", meta.SessionID).Msg("history lookup failed")
			} else {
				history = turns
			}
		}
		p, err := g.docs.GetUserProfile(ctx, meta.UserID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", meta.UserID).Msg("profile lookup failed")
		} else {
			profile = p
		}
	}

	contextLen := 0
	for _, d := range documents {
		contextLen += len(d.Text)
	}

	var decision webaugment.Decision
	if g.decider != nil {
		decision = g.decider.Decide(question, contextLen)
	}

	webResults, urlContent := g.augment(ctx, question, decision)

	instruction := ""
	if g.sysPrompt != nil {
		instruction = g.sysPrompt.Instruction(ctx)
	}

	assembled := g.assembler.Assemble(prompt.AssembleInput{
		Question:          question,
		SystemInstruction: instruction,
		Documents:         documents,
		Profile:           profile,
		WebResults:        webResults,
		URLContent:        urlContent,
		History:           history,
		ExplicitExternal:  decision.ExplicitOverride,
	})

	return prepared{
		assembled: assembled,
		userID:    meta.UserID,
		contextID: meta.FileID,
		scope:     meta.Endpoint,
		webUsed:   webResults != "" || urlContent != "",
	}, nil
}

// augment runs the web search and URL fetches concurrently. Both paths
// degrade to empty content on failure.
func (g *Gateway) augment(ctx context.Context, question string, decision webaugment.Decision) (webResults, urlContent string) {
	urls := webaugment.ExtractURLs(question)

	var wg sync.WaitGroup
	if decision.ShouldSearch && g.search != nil && g.search.Configured() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := g.search.Search(ctx, question)
			if err != nil {
				log.Warn().Err(err).Str("rule", decision.Rule).Msg("web search failed")
				return
			}
			webResults = results
			if g.metrics != nil {
				g.metrics.RecordWebSearch()
			}
		}()
	}

	if len(urls) > 0 && g.fetcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var parts []string
			for _, u := range urls {
				text, err := g.fetcher.FetchPlainText(ctx, u)
				if err != nil {
					log.Warn().Err(err).Str("url", u).Msg("url fetch failed")
					continue
				}
				parts = append(parts, text)
				if g.metrics != nil {
					g.metrics.RecordURLFetch()
				}
			}
			urlContent = strings.Join(parts, "\n\n")
		}()
	}
	wg.Wait()
	return webResults, urlContent
}

// Ask answers a request synchronously.
func (g *Gateway) Ask(ctx context.Context, req prompt.PromptRequest) (*Answer, error) {
	start := time.Now()
	prep, err := g.prepare(ctx, req)
	if err != nil {
		g.recordRequest(false)
		return nil, err
	}

	// Web-augmented answers depend on live data and are never cached.
	if g.cache != nil && !prep.webUsed {
		if e := g.cache.Get(ctx, req.Question, prep.userID, prep.contextID, prep.scope); e != nil {
			g.recordRequest(true)
			g.record(ctx, req, metering.UsageRecord{
				Provider: e.Provider, Model: e.Model, Cached: true,
			})
			return &Answer{
				Text:     e.Answer,
				Sources:  prep.assembled.Sources,
				Model:    e.Model,
				Provider: e.Provider,
				Cached:   true,
			}, nil
		}
	}

	completion, err := g.dispatcher.Dispatch(ctx, providers.DispatchRequest{
		Provider: req.ProviderHint,
		System:   prep.assembled.SystemInstruction,
		Messages: []providers.Message{{Role: "user", Content: prep.assembled.UserMessage}},
	})
	if err != nil {
		g.recordRequest(false)
		return nil, err
	}

	rec := g.record(ctx, req, metering.UsageRecord{
		Provider:     completion.Provider,
		Model:        completion.Model,
		InputTokens:  completion.Usage.InputTokens,
		OutputTokens: completion.Usage.OutputTokens,
		Estimated:    completion.UsageEstimated,
	})

	if g.cache != nil && !prep.webUsed {
		g.cache.Put(ctx, req.Question, prep.userID, prep.contextID, prep.scope, completion.Text, completion.Model, completion.Provider)
	}
	g.appendTurn(ctx, req, completion.Text)
	g.recordRequest(true)

	log.Info().
		Str("provider", completion.Provider).
		Str("model", completion.Model).
		Strs("sources", sourceNames(prep.assembled.Sources)).
		Dur("elapsed", time.Since(start)).
		Msg("ask completed")

	return &Answer{
		Text:     completion.Text,
		Sources:  prep.assembled.Sources,
		Model:    completion.Model,
		Provider: completion.Provider,
		CostUSD:  rec.CostUSD,
	}, nil
}

// AskStream answers a request as a fragment stream. Cache hits replay the
// stored answer as a single fragment.
func (g *Gateway) AskStream(ctx context.Context, req prompt.PromptRequest) (*StreamAnswer, error) {
	prep, err := g.prepare(ctx, req)
	if err != nil {
		g.recordRequest(false)
		return nil, err
	}

	if g.cache != nil && !prep.webUsed {
		if e := g.cache.Get(ctx, req.Question, prep.userID, prep.contextID, prep.scope); e != nil {
			out := make(chan streaming.Fragment, 1)
			out <- streaming.Fragment{Text: e.Answer}
			close(out)
			g.recordRequest(true)
			g.record(ctx, req, metering.UsageRecord{
				Provider: e.Provider, Model: e.Model, Cached: true,
			})
			return &StreamAnswer{
				Fragments: out,
				Sources:   prep.assembled.Sources,
				Model:     e.Model,
				Provider:  e.Provider,
				Cached:    true,
			}, nil
		}
	}

	handle, err := g.dispatcher.DispatchStream(ctx, providers.DispatchRequest{
		Provider: req.ProviderHint,
		System:   prep.assembled.SystemInstruction,
		Messages: []providers.Message{{Role: "user", Content: prep.assembled.UserMessage}},
	})
	if err != nil {
		g.recordRequest(false)
		return nil, err
	}

	frags, tally := g.normalizer.Stream(ctx, handle.Body, handle.Dialect, handle.Parser)

	out := make(chan streaming.Fragment)
	go func() {
		defer close(out)
		var full strings.Builder
		failed := false
		for f := range frags {
			if f.Err != nil {
				failed = true
			} else {
				full.WriteString(f.Text)
			}
			select {
			case out <- f:
			case <-ctx.Done():
				failed = true
			}
		}

		g.finishStream(req, prep, handle, tally, full.String(), failed)
	}()

	return &StreamAnswer{
		Fragments: out,
		Sources:   prep.assembled.Sources,
		Model:     handle.Model,
		Provider:  handle.Provider,
	}, nil
}

// finishStream meters and caches a drained stream. Detached from the request
// context: the caller may be gone by now.
func (g *Gateway) finishStream(req prompt.PromptRequest, prep prepared, handle *providers.StreamHandle, tally *streaming.UsageTally, text string, failed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !failed && text != "" {
		if g.cache != nil && !prep.webUsed {
			g.cache.Put(ctx, req.Question, prep.userID, prep.contextID, prep.scope, text, handle.Model, handle.Provider)
		}
		g.appendTurn(ctx, req, text)
	}

	in, out := tally.InputTokens, tally.OutputTokens
	estimated := false
	if g.estimator != nil {
		// Some providers stream deltas without usage frames; backfill from the
		// estimator so the call is never metered at zero tokens.
		if in == 0 {
			in = g.estimator.EstimateAll(prep.assembled.SystemInstruction, prep.assembled.UserMessage)
			estimated = true
		}
		if out == 0 && text != "" {
			out = g.estimator.Estimate(text)
			estimated = true
		}
	}

	g.record(ctx, req, metering.UsageRecord{
		Provider:     handle.Provider,
		Model:        handle.Model,
		InputTokens:  in,
		OutputTokens: out,
		Estimated:    estimated,
	})
	if g.metrics != nil {
		g.metrics.RecordAPIUsage(in, out)
	}
	g.recordRequest(!failed)
}

// RecordDocumentUpload invalidates the user's cached answers after new
// document content arrives.
func (g *Gateway) RecordDocumentUpload(ctx context.Context, userID string) {
	if g.cache != nil {
		g.cache.RecordDocumentUpload(ctx, userID)
	}
}

// Health reports liveness and the current counters.
type Health struct {
	Status string           `json:"status"`
	Uptime time.Duration    `json:"uptime"`
	Stats  map[string]int64 `json:"stats"`
}

// Healthz returns the gateway's health snapshot.
func (g *Gateway) Healthz() Health {
	h := Health{Status: "ok"}
	if g.metrics != nil {
		h.Uptime = time.Since(g.metrics.StartedAt())
		h.Stats = g.metrics.Stats()
	}
	return h
}

func (g *Gateway) record(ctx context.Context, req prompt.PromptRequest, rec metering.UsageRecord) metering.UsageRecord {
	if g.meter == nil {
		return rec
	}
	rec.UserID = req.Metadata.UserID
	rec.SessionID = req.Metadata.SessionID
	rec.RequestID = req.Metadata.RequestID
	rec.Endpoint = req.Metadata.Endpoint
	rec.FileID = req.Metadata.FileID
	out, err := g.meter.Record(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Msg("usage record failed")
		return rec
	}
	return out
}

func (g *Gateway) appendTurn(ctx context.Context, req prompt.PromptRequest, answer string) {
	if g.turns == nil || req.Metadata.SessionID == "" {
		return
	}
	if err := g.turns.AppendTurn(ctx, req.Metadata.SessionID, req.Question, answer); err != nil {
		log.Warn().Err(err).Msg("history append failed")
	}
}

func (g *Gateway) recordRequest(success bool) {
	if g.metrics != nil {
		g.metrics.RecordRequest(success)
	}
}

func sourceNames(sources []prompt.SourceKind) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}
