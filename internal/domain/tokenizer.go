package domain

// Tokenizer turns free text into an ordered sequence of normalized tokens.
// Language-specific analysis lives behind this contract.
type Tokenizer interface {
	Tokenize(text string) []string
}
