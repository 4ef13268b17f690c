// Package tokenizer is the default Tokenizer collaborator: lowercase
// Unicode word splitting, no language-specific analysis.
package tokenizer

import (
	"strings"
	"unicode"
)

// Simple splits text on non-letter/non-digit runes and lowercases the
// resulting tokens.
type Simple struct{}

// New creates the default tokenizer.
func New() *Simple {
	return &Simple{}
}

// Tokenize returns the ordered normalized tokens of text.
func (*Simple) Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}
