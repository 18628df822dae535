package utils

import "testing"

func TestMaskKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", "(empty)"},
		{"short key", "sk-123", "****"},
		{"normal key", "AIzaSyA123456789abcdef", "AIzaSyA1...cdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskKey(tt.input)
			if result != tt.expected {
				t.Errorf("MaskKey(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"mixed case", "What Is The Rate", "what is the rate"},
		{"tabs and newlines", "a\t b\n\nc", "a b c"},
		{"leading and trailing", "  hello  world  ", "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CollapseWhitespace(tt.input)
			if result != tt.expected {
				t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("Truncate short = %q", got)
	}
}
