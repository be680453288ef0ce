package lemma

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Kagome derives Japanese dictionary forms with the kagome IPA tokenizer.
type Kagome struct {
	t *tokenizer.Tokenizer
}

// NewKagome creates a tokenizer instance. Loading the IPA dictionary takes a
// moment, so create one and share it.
func NewKagome() (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Kagome{t: t}, nil
}

// Lemma returns the base form of the first content token of word, e.g.
// "食べた" -> "食べる". Symbols, particles and auxiliaries are skipped.
func (k *Kagome) Lemma(word string) string {
	if k == nil || strings.TrimSpace(word) == "" {
		return ""
	}
	for _, token := range k.t.Tokenize(word) {
		if token.Class == tokenizer.DUMMY || strings.TrimSpace(token.Surface) == "" {
			continue
		}

		// IPA features: 0 POS, 1-3 sub-POS, 4 conjugation type,
		// 5 conjugation form, 6 base form, 7 reading, 8 pronunciation.
		features := token.Features()
		if len(features) > 0 {
			switch features[0] {
			case "記号", "補助記号", "助詞", "助動詞":
				continue
			}
		}
		if len(features) > 6 && features[6] != "*" {
			return features[6]
		}
		return token.Surface
	}
	return ""
}
