// Package lemma provides best-effort dictionary forms for words. Every
// Lemmatizer returns "" when it has nothing to offer; callers fall back to
// their own heuristics.
package lemma

import (
	"strings"

	"github.com/kljensen/snowball/english"
)

// Lemmatizer maps a word to its dictionary form.
type Lemmatizer interface {
	Lemma(word string) string
}

// Func adapts a plain function to a Lemmatizer.
type Func func(word string) string

func (f Func) Lemma(word string) string { return f(word) }

// Snowball is the Porter2 English stemmer. Its output is a stem, not always a
// dictionary word ("peeved" gives "peev"), which is good enough for matching.
type Snowball struct{}

func (Snowball) Lemma(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" {
		return ""
	}
	return english.Stem(w, false)
}

// Chain asks each lemmatizer in turn and returns the first non-empty answer.
type Chain []Lemmatizer

func (c Chain) Lemma(word string) string {
	for _, l := range c {
		if l == nil {
			continue
		}
		if out := l.Lemma(word); out != "" {
			return out
		}
	}
	return ""
}

// Default returns the English lookup used when nothing else is configured:
// the embedded irregular forms, then Snowball.
func Default() Lemmatizer {
	return Chain{DefaultIrregulars(), Snowball{}}
}
