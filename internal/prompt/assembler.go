package prompt

import (
	"sort"
	"strings"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/tokens"
)

// maxHistoryTurns caps how many prior exchanges are rendered into the prompt.
const maxHistoryTurns = 10

// Assembler produces a bounded prompt body from raw context.
type Assembler struct {
	est         *tokens.Estimator
	tokenBudget int
	maxChunks   int
}

// NewAssembler creates an assembler. Zero values take defaults.
func NewAssembler(est *tokens.Estimator, tokenBudget, maxChunks int) *Assembler {
	if tokenBudget <= 0 {
		tokenBudget = config.DefaultContextTokenBudget
	}
	if maxChunks <= 0 {
		maxChunks = config.DefaultMaxChunks
	}
	return &Assembler{est: est, tokenBudget: tokenBudget, maxChunks: maxChunks}
}

// AssembleInput gathers everything the assembler may include.
type AssembleInput struct {
	Question          string
	SystemInstruction string
	Documents         []ContextBlock
	Profile           string
	WebResults        string
	URLContent        string
	History           []HistoryTurn

	// ExplicitExternal suppresses document/profile context entirely when the
	// caller asked for an external-source answer.
	ExplicitExternal bool
}

// Assemble trims, filters and concatenates context into an AssembledPrompt.
// Sources reflects exactly the sections that made it in.
func (a *Assembler) Assemble(in AssembleInput) AssembledPrompt {
	var b strings.Builder
	var sources []SourceKind

	if !in.ExplicitExternal {
		docs := a.FilterChunks(in.Question, in.Documents)
		if len(docs) > 0 {
			b.WriteString("Document context:\n")
			for _, d := range docs {
				if d.SourceLabel != "" {
					b.WriteString("[" + d.SourceLabel + "]\n")
				}
				b.WriteString(a.TrimBlock(d.Text))
				b.WriteString("\n\n")
			}
			sources = append(sources, SourceDocuments)
		}
		if in.Profile != "" {
			b.WriteString("User profile:\n")
			b.WriteString(a.TrimBlock(in.Profile))
			b.WriteString("\n\n")
			sources = append(sources, SourceProfile)
		}
	}

	if in.WebResults != "" {
		b.WriteString("Live web results:\n")
		b.WriteString(a.TrimBlock(in.WebResults))
		b.WriteString("\n\n")
		sources = append(sources, SourceWeb)
	}
	if in.URLContent != "" {
		b.WriteString("Linked page content:\n")
		b.WriteString(a.TrimBlock(in.URLContent))
		b.WriteString("\n\n")
		sources = append(sources, SourceURL)
	}

	history := in.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, h := range history {
		b.WriteString("Q: " + h.Question + "\nA: " + h.Answer + "\n")
	}
	if len(history) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("Question: " + in.Question)

	return AssembledPrompt{
		SystemInstruction: in.SystemInstruction,
		UserMessage:       b.String(),
		Sources:           sources,
	}
}

// TrimBlock truncates a single context block to the estimated-token budget.
// Slicing is by character ratio; a marker notes the cut.
func (a *Assembler) TrimBlock(text string) string {
	est := a.est.Estimate(text)
	if est <= a.tokenBudget {
		return text
	}
	keep := len(text) * a.tokenBudget / est
	if keep >= len(text) {
		return text
	}
	return text[:keep] + config.TruncationMarker
}

// FilterChunks keeps the chunks most relevant to the query when the candidate
// count exceeds the maximum. Chunks are scored by keyword-hit count; ties keep
// original order (stable sort).
func (a *Assembler) FilterChunks(query string, chunks []ContextBlock) []ContextBlock {
	if len(chunks) <= a.maxChunks {
		return chunks
	}

	keywords := QueryKeywords(query)
	type scored struct {
		block ContextBlock
		score int
	}

	all := make([]scored, len(chunks))
	for i, c := range chunks {
		lower := strings.ToLower(c.Text)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		all[i] = scored{block: c, score: score}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].score > all[j].score
	})

	kept := make([]ContextBlock, 0, a.maxChunks)
	for _, s := range all[:a.maxChunks] {
		kept = append(kept, s.block)
	}
	return kept
}

// QueryKeywords tokenizes a query into scoring keywords: words longer than
// three characters, lower-cased, first ten.
func QueryKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	keywords := make([]string, 0, config.MaxQueryKeywords)
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) <= config.KeywordMinLength {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == config.MaxQueryKeywords {
			break
		}
	}
	return keywords
}
