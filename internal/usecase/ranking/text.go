// Package ranking fuses per-factor scores into a final ranking and
// applies the diversity rerank pass.
package ranking

import (
	"github.com/seren-labs/serendex/internal/domain"
)

// Title matches count double relative to content matches.
const (
	titleMatchWeight   = 2.0
	contentMatchWeight = 1.0
)

// TextScorer computes a lexical match score from tokenized query text
// against a candidate's title and content.
type TextScorer struct {
	tok domain.Tokenizer
}

// NewTextScorer creates a lexical scorer over the given tokenizer.
func NewTextScorer(tok domain.Tokenizer) *TextScorer {
	return &TextScorer{tok: tok}
}

// Tokens tokenizes query text for reuse across candidates.
func (t *TextScorer) Tokens(text string) []string {
	return t.tok.Tokenize(text)
}

// Score returns (2*titleMatches + contentMatches) / (3*queryTokens) plus
// the raw match counts. Matches count token occurrences, so a token
// repeated many times can push the score slightly above 1; that is
// documented behavior, not clamped.
func (t *TextScorer) Score(queryTokens []string, title, content string) (float64, int, int) {
	if len(queryTokens) == 0 {
		return 0, 0, 0
	}

	titleCounts := tokenCounts(t.tok.Tokenize(title))
	contentCounts := tokenCounts(t.tok.Tokenize(content))

	var titleMatches, contentMatches int
	for _, q := range queryTokens {
		titleMatches += titleCounts[q]
		contentMatches += contentCounts[q]
	}

	denom := (titleMatchWeight + contentMatchWeight) * float64(len(queryTokens))
	score := (titleMatchWeight*float64(titleMatches) + contentMatchWeight*float64(contentMatches)) / denom
	return score, titleMatches, contentMatches
}

func tokenCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}
