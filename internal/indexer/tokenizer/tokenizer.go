// Package tokenizer provides text analysis for the search engine.
// It lower-cases input, folds diacritics, splits on non-alphanumeric
// boundaries, optionally removes stop-words and applies a Snowball stemmer.
// The same Analyzer must be used for ingestion and for queries.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenizer turns raw text into terms. Implementations must be
// deterministic.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// Options selects the analysis steps.
type Options struct {
	MinTokenLength int
	StopWords      bool
	Stem           bool
}

// DefaultOptions drops one-letter words and stop-words and leaves words
// unstemmed.
func DefaultOptions() Options {
	return Options{MinTokenLength: 2, StopWords: true}
}

// Analyzer is the standard Tokenizer.
type Analyzer struct {
	opts Options
}

func New(opts Options) *Analyzer {
	if opts.MinTokenLength < 1 {
		opts.MinTokenLength = 1
	}
	return &Analyzer{opts: opts}
}

// Tokenize breaks text into a slice of normalised Tokens. Positions count
// only the emitted tokens.
func (a *Analyzer) Tokenize(text string) []Token {
	text = strings.ToLower(Fold(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words)/2)
	pos := 0
	for _, word := range words {
		if len([]rune(word)) < a.opts.MinTokenLength {
			continue
		}
		if a.opts.StopWords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		if a.opts.Stem {
			word = english.Stem(word, false)
		}
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Frequencies tokenizes text and counts occurrences per term.
func (a *Analyzer) Frequencies(text string) map[string]int {
	return Count(a.Tokenize(text))
}

// Count builds a term -> occurrence count mapping.
func Count(tokens []Token) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok.Term]++
	}
	return counts
}

// Fold strips combining marks so that "café" and "cafe" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
