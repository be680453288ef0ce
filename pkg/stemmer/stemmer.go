// Package stemmer derives candidate root forms of a search term so that
// "walked" can find "walk" and "cats" can find "cat".
package stemmer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/japaniel/vocabkeeper/pkg/lemma"
)

// MinMatchLen is the shortest candidate used for stem-match discovery.
const MinMatchLen = 3

type suffixRule struct {
	suffix      string
	replacement string
}

var suffixRules = []suffixRule{
	{"ies", "y"},
	{"ing", ""},
	{"es", ""},
	{"s", ""},
}

// Candidates returns the root forms of term, excluding term itself. Input that
// is empty, multi-word or not Latin yields nil. lem may be nil.
func Candidates(term string, lem lemma.Lemmatizer) []string {
	word := strings.TrimSpace(term)
	if !eligible(word) {
		return nil
	}
	word = cases.Lower(language.Und).String(word)

	set := make(map[string]struct{})
	add := func(s string) {
		if s != "" && s != word {
			set[s] = struct{}{}
		}
	}

	if lem != nil {
		add(cases.Lower(language.Und).String(strings.TrimSpace(lem.Lemma(word))))
	}

	n := utf8.RuneCountInString(word)
	for _, r := range suffixRules {
		if n > len(r.suffix)+1 && strings.HasSuffix(word, r.suffix) {
			add(strings.TrimSuffix(word, r.suffix) + r.replacement)
		}
	}
	if n > len("ed")+1 && strings.HasSuffix(word, "ed") {
		base := strings.TrimSuffix(word, "ed")
		add(base)
		if silentE(base) {
			add(base + "e")
		}
	}

	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// eligible reports whether s is a single Latin word. Apostrophes and hyphens
// are allowed between letters ("don't", "well-known").
func eligible(s string) bool {
	if s == "" {
		return false
	}
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.In(r, unicode.Latin):
			prevLetter = true
		case (r == '\'' || r == '’' || r == '-') && prevLetter:
			prevLetter = false
		default:
			return false
		}
	}
	return prevLetter
}

// silentE reports whether base ends vowel-consonant, the shape that may have
// lost a silent e before -ed ("peev" from "peeved") or may not ("open" from
// "opened"). Both forms are kept when it holds. "walk" and "play" do not
// qualify.
func silentE(base string) bool {
	r := []rune(base)
	if len(r) < 2 {
		return false
	}
	last, prev := r[len(r)-1], r[len(r)-2]
	return !isVowel(last) && last != 'w' && last != 'x' && isVowel(prev)
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

// Stemmer binds a lemmatizer to Candidates.
type Stemmer struct {
	Lemmatizer lemma.Lemmatizer
}

// New returns a Stemmer using lem, or the default English lemmatizer when lem
// is nil.
func New(lem lemma.Lemmatizer) *Stemmer {
	if lem == nil {
		lem = lemma.Default()
	}
	return &Stemmer{Lemmatizer: lem}
}

func (s *Stemmer) Candidates(term string) []string {
	if s == nil {
		return Candidates(term, nil)
	}
	return Candidates(term, s.Lemmatizer)
}

// MatchStems returns the candidates of text long enough to be used as stems.
func (s *Stemmer) MatchStems(text string) []string {
	var out []string
	for _, c := range s.Candidates(text) {
		if utf8.RuneCountInString(c) >= MinMatchLen {
			out = append(out, c)
		}
	}
	return out
}
