// Package utils provides shared utilities for text and logging.
package utils

import (
	"regexp"
	"strings"
)

var (
	nonWordRe    = regexp.MustCompile(`[^a-z0-9_ ]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Canonicalize converts raw marker content to a canonical tag name:
// lowercased, non-word characters stripped, whitespace runs replaced with
// underscores. Returns "" when nothing survives normalization.
func Canonicalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = nonWordRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, " ", "_")
}

// TitleCase title-cases each whitespace-separated word of s, collapsing
// internal whitespace runs to single spaces. Used for tag display names.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
