// Package textalgo implements the text-processing primitives the search
// package builds on: tokenization, edit distance, and the TF-IDF/BM25
// scoring formulas of spec.md §4.D. Nothing here is storage- or
// entity-aware; it operates on plain strings and token slices so it can be
// unit tested in isolation from the graph package.
package textalgo

import (
	"regexp"
	"strings"
)

// wordPattern is the same alphanumeric pattern the graph package's
// observation index uses, so tokenizing an observation here and indexing
// it there split words at the same places. That index keeps only words of
// two or more characters; Tokenize keeps single-character words too.
var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases s and splits it into its runs of alphanumeric
// characters, dropping everything else (spec.md §4.D).
func Tokenize(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(s), -1)
}

// TokenSet returns the unique tokens of s as a set.
func TokenSet(s string) map[string]struct{} {
	tokens := Tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// TermFrequencies returns a token -> occurrence-count map for s.
func TermFrequencies(s string) map[string]int {
	freqs := make(map[string]int)
	for _, t := range Tokenize(s) {
		freqs[t]++
	}
	return freqs
}
