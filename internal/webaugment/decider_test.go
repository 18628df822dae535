package webaugment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideRuleChain(t *testing.T) {
	d := NewDecider(500)

	tests := []struct {
		name       string
		query      string
		contextLen int
		want       Decision
	}{
		{
			name:       "explicit web request overrides everything",
			query:      "search the web for current interest rates",
			contextLen: 0,
			want:       Decision{ShouldSearch: true, ExplicitOverride: true, Rule: "explicit_request"},
		},
		{
			name:       "explicit request wins even with large context",
			query:      "please search the web for this",
			contextLen: 100000,
			want:       Decision{ShouldSearch: true, ExplicitOverride: true, Rule: "explicit_request"},
		},
		{
			name:       "document rejection is an override",
			query:      "I don't want from document, answer generally",
			contextLen: 5000,
			want:       Decision{ShouldSearch: true, ExplicitOverride: true, Rule: "document_rejection"},
		},
		{
			name:       "personal question never searches",
			query:      "what does my profile say about my bar number",
			contextLen: 0,
			want:       Decision{Rule: "personal"},
		},
		{
			name:       "current events without context searches",
			query:      "latest fed decision",
			contextLen: 0,
			want:       Decision{ShouldSearch: true, Rule: "current_events"},
		},
		{
			name:       "current events with context stays local",
			query:      "latest fed decision",
			contextLen: 2000,
			want:       Decision{Rule: "current_events"},
		},
		{
			name:       "general knowledge without context searches",
			query:      "what is the capital of France",
			contextLen: 0,
			want:       Decision{ShouldSearch: true, Rule: "general_knowledge"},
		},
		{
			name:       "document question with sufficient context",
			query:      "summarize the attached contract",
			contextLen: 2000,
			want:       Decision{},
		},
		{
			name:       "plain document question",
			query:      "summarize the attached contract",
			contextLen: 0,
			want:       Decision{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Decide(tt.query, tt.contextLen))
		})
	}
}

func TestDecideDeterminism(t *testing.T) {
	d := NewDecider(500)
	first := d.Decide("what is the going rate today", 300)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.Decide("what is the going rate today", 300))
	}
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("compare https://example.com/a and http://example.org/b?x=1 please")
	assert.Equal(t, []string{"https://example.com/a", "http://example.org/b?x=1"}, urls)

	assert.Empty(t, ExtractURLs("no links here"))
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><style>body{color:red}</style><script>alert(1)</script></head>
<body><h1>Title</h1><p>Hello &amp; welcome</p></body></html>`

	text := StripHTML(html)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Hello & welcome")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "<p>")
}
