// Package metering prices completed calls and keeps the usage ledger.
//
// DESIGN: Pricing is a static per-MTok table keyed by model-name prefix.
// Exact model names match first; otherwise the longest matching family
// prefix wins, so "gemini-2.5-flash-preview-0514" prices as
// "gemini-2.5-flash". Unknown models price at zero rather than guessing.
package metering

import (
	"strings"
)

// ModelPricing is the per-million-token price in USD.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// =============================================================================
// PRICE TABLE
// =============================================================================

var modelPrices = map[string]ModelPricing{
	// Google
	"gemini-2.5-pro":   {InputPerMTok: 1.25, OutputPerMTok: 10.00},
	"gemini-2.5-flash": {InputPerMTok: 0.30, OutputPerMTok: 2.50},
	"gemini-2.0-flash": {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	"gemini-1.5-pro":   {InputPerMTok: 1.25, OutputPerMTok: 5.00},
	"gemini-1.5-flash": {InputPerMTok: 0.075, OutputPerMTok: 0.30},

	// Anthropic
	"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-7-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},

	// OpenAI
	"gpt-4o":        {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":   {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4.1":       {InputPerMTok: 2.00, OutputPerMTok: 8.00},
	"gpt-4.1-mini":  {InputPerMTok: 0.40, OutputPerMTok: 1.60},
	"gpt-4":         {InputPerMTok: 30.00, OutputPerMTok: 60.00},
	"gpt-3.5-turbo": {InputPerMTok: 0.50, OutputPerMTok: 1.50},
	"o3":            {InputPerMTok: 2.00, OutputPerMTok: 8.00},
	"o4-mini":       {InputPerMTok: 1.10, OutputPerMTok: 4.40},
}

// GetModelPricing returns the price for a model, matching the exact name
// first and then the longest family prefix. ok is false for unknown models.
func GetModelPricing(model string) (ModelPricing, bool) {
	if p, ok := modelPrices[model]; ok {
		return p, true
	}

	bestLen := 0
	var best ModelPricing
	for prefix, p := range modelPrices {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = p
		}
	}
	if bestLen == 0 {
		return ModelPricing{}, false
	}
	return best, true
}
