package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	e := NewEstimator(4)

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single char rounds up", "a", 1},
		{"exact ratio", "abcdefgh", 2},
		{"long text", strings.Repeat("x", 4000), 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Estimate(tt.text))
		})
	}
}

func TestEstimateAll(t *testing.T) {
	e := NewEstimator(4)
	assert.Equal(t, 3, e.EstimateAll("abcd", "efgh", "ijkl"))
}

func TestCountExactFallsBackForUnknownModel(t *testing.T) {
	e := NewEstimator(4)
	text := strings.Repeat("y", 400)
	assert.Equal(t, 100, e.CountExact("no-such-model-family", text))
}

func TestDefaultRatio(t *testing.T) {
	e := NewEstimator(0)
	assert.Equal(t, 25, e.Estimate(strings.Repeat("z", 100)))
}
