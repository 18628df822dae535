// Package utils provides common utility functions.
package utils

import "strings"

// MaskKey masks an API key for safe logging (shows first 8 and last 4 chars).
// Use this to avoid logging sensitive credentials in plain text.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// CollapseWhitespace lowercases s and collapses any run of whitespace to a
// single space. Used to canonicalize prompt text before hashing so cosmetic
// differences don't defeat the response cache.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Truncate shortens s to at most maxLen bytes, appending an ellipsis marker
// when anything was cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
