package webaugment

import (
	"regexp"
	"strings"

	"github.com/docuquery/llm-gateway/internal/config"
)

// Decider evaluates the rule chain in fixed priority order.
type Decider struct {
	rules     []rule
	threshold int
}

// NewDecider creates a decider. A non-positive threshold uses the default
// (500 chars of existing document context).
func NewDecider(contextThreshold int) *Decider {
	if contextThreshold <= 0 {
		contextThreshold = config.DefaultContextLengthThreshold
	}
	return &Decider{
		rules: []rule{
			ruleExplicitRequest(),
			ruleDocumentRejection(),
			rulePersonal(),
			ruleCurrentEvents(),
			ruleGeneralKnowledge(),
		},
		threshold: contextThreshold,
	}
}

// Decide classifies a query. Identical inputs always yield identical output.
func (d *Decider) Decide(rawQuery string, contextLen int) Decision {
	q := query{
		lower:      strings.ToLower(strings.TrimSpace(rawQuery)),
		contextLen: contextLen,
		threshold:  d.threshold,
	}

	for _, r := range d.rules {
		if decision, matched := r.eval(q); matched {
			return decision
		}
	}
	return Decision{}
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURLs returns URL literals found in the query. URL content fetching
// is an independent path, not gated by the decider.
func ExtractURLs(rawQuery string) []string {
	return urlPattern.FindAllString(rawQuery, -1)
}
