// Package webaugment decides whether a question needs live web data.
//
// DESIGN: The decision is a fixed-priority chain of named predicate rules:
//
//	explicit-request > document-rejection > personal > current-events >
//	general-knowledge-without-context
//
// Each rule is independently testable; the chain order is load-bearing and
// must not be reordered. The decider is deterministic and stateless — no
// learning, no external calls.
package webaugment

import (
	"regexp"
	"strings"
)

// Decision is the classifier output.
type Decision struct {
	ShouldSearch     bool
	ExplicitOverride bool
	Rule             string // name of the rule that matched, "" if none
}

// query is the normalized rule input.
type query struct {
	lower      string
	contextLen int
	threshold  int
}

// rule is a named predicate. matched=false passes to the next rule.
type rule struct {
	name string
	eval func(q query) (Decision, bool)
}

// explicitRequestPhrases short-circuit to an explicit web-search override.
// Includes localized variants seen in production traffic.
var explicitRequestPhrases = []string{
	"search the web",
	"search online",
	"search the internet",
	"look it up online",
	"from the internet",
	"google it",
	"web search",
	"busca en internet",
	"cherche sur internet",
}

// documentRejectionPhrases mean "answer without my documents".
var documentRejectionPhrases = []string{
	"don't want from document",
	"do not want from document",
	"not from the document",
	"not from my document",
	"ignore the document",
	"without the document",
	"don't use the document",
	"outside the document",
}

// Personal questions combine a possessive pronoun with a personal-data noun.
var possessivePronouns = []string{"my ", "mine", "our "}

var personalNouns = []string{
	"profile", "name", "email", "phone", "address",
	"bar number", "license", "account", "subscription", "plan",
}

// currentEventsKeywords mark questions about the live world.
var currentEventsKeywords = []string{
	"today", "latest", "current", "right now", "this week", "this year",
	"breaking", "news", "price of", "weather", "stock", "interest rate",
	"exchange rate",
}

// generalKnowledgePatterns are interrogative shapes answerable from the open
// web when no document context exists.
var generalKnowledgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^what is\b`),
	regexp.MustCompile(`^what are\b`),
	regexp.MustCompile(`^who is\b`),
	regexp.MustCompile(`^who was\b`),
	regexp.MustCompile(`^when did\b`),
	regexp.MustCompile(`^when is\b`),
	regexp.MustCompile(`^where is\b`),
	regexp.MustCompile(`^how (do|does|to|much|many)\b`),
	regexp.MustCompile(`^why (is|do|does|did)\b`),
	regexp.MustCompile(`^define\b`),
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func ruleExplicitRequest() rule {
	return rule{name: "explicit_request", eval: func(q query) (Decision, bool) {
		if containsAny(q.lower, explicitRequestPhrases) {
			return Decision{ShouldSearch: true, ExplicitOverride: true, Rule: "explicit_request"}, true
		}
		return Decision{}, false
	}}
}

func ruleDocumentRejection() rule {
	return rule{name: "document_rejection", eval: func(q query) (Decision, bool) {
		if containsAny(q.lower, documentRejectionPhrases) {
			return Decision{ShouldSearch: true, ExplicitOverride: true, Rule: "document_rejection"}, true
		}
		return Decision{}, false
	}}
}

func rulePersonal() rule {
	return rule{name: "personal", eval: func(q query) (Decision, bool) {
		if containsAny(q.lower, possessivePronouns) && containsAny(q.lower, personalNouns) {
			return Decision{Rule: "personal"}, true
		}
		return Decision{}, false
	}}
}

func ruleCurrentEvents() rule {
	return rule{name: "current_events", eval: func(q query) (Decision, bool) {
		if containsAny(q.lower, currentEventsKeywords) {
			return Decision{ShouldSearch: q.contextLen < q.threshold, Rule: "current_events"}, true
		}
		return Decision{}, false
	}}
}

func ruleGeneralKnowledge() rule {
	return rule{name: "general_knowledge", eval: func(q query) (Decision, bool) {
		for _, p := range generalKnowledgePatterns {
			if p.MatchString(q.lower) {
				return Decision{ShouldSearch: q.contextLen < q.threshold, Rule: "general_knowledge"}, true
			}
		}
		return Decision{}, false
	}}
}
