package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/monitoring"
	"github.com/docuquery/llm-gateway/internal/streaming"
	"github.com/docuquery/llm-gateway/internal/tokens"
)

// LimitSource resolves the max output tokens allowed for a model.
// Resolution is expected to degrade rather than fail.
type LimitSource interface {
	MaxOutputTokens(ctx context.Context, provider, model string) int
}

// DispatchRequest is one dispatch through a provider's fallback chain.
type DispatchRequest struct {
	// Provider selects the chain; empty uses the default. Aliases resolve
	// before lookup.
	Provider string
	System   string
	Messages []Message
}

// StreamHandle is an open provider stream ready for normalization.
type StreamHandle struct {
	Body     io.ReadCloser
	Provider string
	Model    string
	Dialect  streaming.Dialect
	Parser   streaming.ChunkParser
}

// Dispatcher walks a provider's ordered model list until one call succeeds
// or the chain is exhausted. Per attempt the outcome is classified:
//
//	not found     advance immediately, no delay
//	rate limited  retry the same model with linear backoff, then advance
//	config        fatal, the whole dispatch aborts
//	other         advance to the next model
//
// Every dispatch terminates: the chain is finite and retries are bounded.
type Dispatcher struct {
	adapters        map[string]Adapter
	specs           map[string]ProviderModelSpec
	aliases         map[string]string
	defaultProvider string

	limits    LimitSource
	estimator *tokens.Estimator
	metrics   *monitoring.MetricsCollector

	backoffBase time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewDispatcher wires a dispatcher. limits and metrics may be nil.
func NewDispatcher(adapters []Adapter, specs []ProviderModelSpec, aliases map[string]string,
	defaultProvider string, limits LimitSource, estimator *tokens.Estimator,
	metrics *monitoring.MetricsCollector) *Dispatcher {

	d := &Dispatcher{
		adapters:        make(map[string]Adapter, len(adapters)),
		specs:           make(map[string]ProviderModelSpec, len(specs)),
		aliases:         aliases,
		defaultProvider: defaultProvider,
		limits:          limits,
		estimator:       estimator,
		metrics:         metrics,
		backoffBase:     config.DefaultBackoffBase,
		maxAttempts:     config.DefaultMaxBackoffAttempts,
		sleep:           sleepCtx,
	}
	for _, a := range adapters {
		d.adapters[a.Name()] = a
	}
	for _, s := range specs {
		d.specs[s.Key] = s
	}
	return d
}

// SetBackoff overrides the rate-limit retry policy. Non-positive values keep
// the current setting.
func (d *Dispatcher) SetBackoff(base time.Duration, attempts int) {
	if base > 0 {
		d.backoffBase = base
	}
	if attempts > 0 {
		d.maxAttempts = attempts
	}
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// resolve maps a requested provider name through aliases and the default to
// an adapter and its model chain. Unknown names fall back to the default
// provider rather than failing the request.
func (d *Dispatcher) resolve(name string) (Adapter, ProviderModelSpec, error) {
	if name == "" {
		name = d.defaultProvider
	}
	if canonical, ok := d.aliases[name]; ok {
		name = canonical
	}
	if _, ok := d.adapters[name]; !ok && name != d.defaultProvider {
		log.Warn().Str("provider", name).Str("fallback", d.defaultProvider).
			Msg("unknown provider requested, using default")
		name = d.defaultProvider
	}
	adapter, ok := d.adapters[name]
	if !ok {
		return nil, ProviderModelSpec{}, fmt.Errorf("unknown provider %q", name)
	}
	spec, ok := d.specs[name]
	if !ok || len(spec.Models) == 0 {
		return nil, ProviderModelSpec{}, fmt.Errorf("provider %q has no models configured", name)
	}
	return adapter, spec, nil
}

func (d *Dispatcher) maxOutputTokens(ctx context.Context, provider, model string) int {
	if d.limits == nil {
		return config.DefaultMaxOutputTokens
	}
	if limit := d.limits.MaxOutputTokens(ctx, provider, model); limit > 0 {
		return limit
	}
	return config.DefaultMaxOutputTokens
}

// attempt runs one model with bounded rate-limit retries. The returned error
// carries the classification of the final try.
func (d *Dispatcher) attempt(ctx context.Context, model string, call func(context.Context) error) error {
	var lastErr error
	for try := 1; try <= d.maxAttempts; try++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var ce *CallError
		if !errors.As(err, &ce) || ce.Kind != KindRateLimited || try == d.maxAttempts {
			return lastErr
		}

		delay := d.backoffBase * time.Duration(try)
		log.Warn().Str("model", model).Int("try", try).Dur("backoff", delay).
			Msg("rate limited, backing off")
		if serr := d.sleep(ctx, delay); serr != nil {
			return lastErr
		}
	}
	return lastErr
}

// run is the shared fallback walk for Dispatch and DispatchStream.
func (d *Dispatcher) run(ctx context.Context, providerName string, call func(ctx context.Context, adapter Adapter, spec ProviderModelSpec, model string) error) error {
	adapter, spec, err := d.resolve(providerName)
	if err != nil {
		return err
	}

	var lastErr error
	for i, model := range spec.Models {
		if i > 0 && d.metrics != nil {
			d.metrics.RecordModelFallback()
		}

		err := d.attempt(ctx, model, func(ctx context.Context) error {
			return call(ctx, adapter, spec, model)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		var ce *CallError
		if errors.As(err, &ce) && ce.Kind == KindConfig {
			// Credentials are per provider, not per model; no model in
			// this chain can succeed.
			log.Error().Str("provider", adapter.Name()).Str("model", model).
				Msg("provider credentials rejected")
			return err
		}

		log.Warn().Str("provider", adapter.Name()).Str("model", model).
			Err(err).Msg("model failed, advancing in fallback chain")
	}

	if d.metrics != nil {
		d.metrics.RecordExhausted()
	}
	return &ExhaustedError{Provider: adapter.Name(), ModelsTried: len(spec.Models), LastErr: lastErr}
}

// Dispatch runs a non-streaming call through the fallback chain.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*Completion, error) {
	var result *Completion
	err := d.run(ctx, req.Provider, func(ctx context.Context, adapter Adapter, _ ProviderModelSpec, model string) error {
		completion, err := adapter.Complete(ctx, CallParams{
			Model:           model,
			System:          req.System,
			Messages:        req.Messages,
			MaxOutputTokens: d.maxOutputTokens(ctx, adapter.Name(), model),
		})
		if err != nil {
			return err
		}
		result = completion
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.backfillUsage(req, result)
	if d.metrics != nil {
		d.metrics.RecordAPIUsage(result.Usage.InputTokens, result.Usage.OutputTokens)
	}
	return result, nil
}

// DispatchStream opens a stream through the fallback chain. Only the stream
// open is subject to fallback; failures after first byte surface to the
// consumer as stream errors.
func (d *Dispatcher) DispatchStream(ctx context.Context, req DispatchRequest) (*StreamHandle, error) {
	var handle *StreamHandle
	err := d.run(ctx, req.Provider, func(ctx context.Context, adapter Adapter, spec ProviderModelSpec, model string) error {
		body, err := adapter.OpenStream(ctx, CallParams{
			Model:           model,
			System:          req.System,
			Messages:        req.Messages,
			MaxOutputTokens: d.maxOutputTokens(ctx, adapter.Name(), model),
		})
		if err != nil {
			return err
		}
		// The configured dialect wins over the adapter's native one, for
		// OpenAI-compatible endpoints that frame their streams differently.
		dialect := spec.Dialect
		if dialect == "" {
			dialect = adapter.Dialect()
		}
		handle = &StreamHandle{
			Body:     body,
			Provider: adapter.Name(),
			Model:    model,
			Dialect:  dialect,
			Parser:   streaming.ParserForDialect(dialect),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// backfillUsage fills in token counts from the estimator when the provider
// omitted them, marking the completion so metering can tell them apart.
func (d *Dispatcher) backfillUsage(req DispatchRequest, c *Completion) {
	if d.estimator == nil {
		return
	}
	if c.Usage.InputTokens == 0 {
		total := d.estimator.Estimate(req.System)
		for _, m := range req.Messages {
			total += d.estimator.Estimate(m.Content)
		}
		c.Usage.InputTokens = total
		c.UsageEstimated = true
	}
	if c.Usage.OutputTokens == 0 && c.Text != "" {
		c.Usage.OutputTokens = d.estimator.Estimate(c.Text)
		c.UsageEstimated = true
	}
}
