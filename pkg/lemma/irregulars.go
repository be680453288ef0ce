package lemma

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

//go:embed irregulars.json
var defaultIrregularsJSON []byte

// IrregularEntry maps one inflected form to its lemma.
type IrregularEntry struct {
	Form  string `json:"form"`
	Lemma string `json:"lemma"`
}

// Irregulars is an in-memory index of irregular English forms
// ("went" -> "go") that suffix rules cannot recover.
type Irregulars struct {
	mu    sync.RWMutex
	index map[string]string
}

// NewIrregulars builds the index from entries. Later entries win.
func NewIrregulars(entries []IrregularEntry) *Irregulars {
	idx := make(map[string]string, len(entries))
	for _, e := range entries {
		form := strings.ToLower(strings.TrimSpace(e.Form))
		lemma := strings.ToLower(strings.TrimSpace(e.Lemma))
		if form == "" || lemma == "" {
			continue
		}
		idx[form] = lemma
	}
	return &Irregulars{index: idx}
}

var (
	defaultOnce    sync.Once
	defaultEntries []IrregularEntry
)

// DefaultIrregulars returns a fresh index over the embedded table.
func DefaultIrregulars() *Irregulars {
	defaultOnce.Do(func() {
		entries, err := ParseIrregulars(bytes.NewReader(defaultIrregularsJSON))
		if err != nil {
			panic("lemma: embedded irregulars.json: " + err.Error())
		}
		defaultEntries = entries
	})
	return NewIrregulars(defaultEntries)
}

// Lemma returns the lemma of word, or "" if it is not an irregular form.
func (ir *Irregulars) Lemma(word string) string {
	if ir == nil {
		return ""
	}
	ir.mu.RLock()
	defer ir.mu.RUnlock()
	return ir.index[strings.ToLower(strings.TrimSpace(word))]
}

// Add registers extra forms on top of the existing ones.
func (ir *Irregulars) Add(entries []IrregularEntry) {
	extra := NewIrregulars(entries)
	ir.mu.Lock()
	defer ir.mu.Unlock()
	for k, v := range extra.index {
		ir.index[k] = v
	}
}

// Len reports the number of indexed forms.
func (ir *Irregulars) Len() int {
	ir.mu.RLock()
	defer ir.mu.RUnlock()
	return len(ir.index)
}

// LoadIrregulars reads an irregular-forms file. Both an object wrapper
// {"forms": {"went": "go"}} and a plain array [{"form": ..., "lemma": ...}]
// are accepted.
func LoadIrregulars(path string) ([]IrregularEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseIrregulars(f)
}

// ParseIrregulars decodes the formats accepted by LoadIrregulars.
func ParseIrregulars(r io.Reader) ([]IrregularEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	// Try parsing as object wrapper first { "forms": {...} }
	var wrapper struct {
		Forms map[string]string `json:"forms"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Forms) > 0 {
		entries := make([]IrregularEntry, 0, len(wrapper.Forms))
		for form, lemma := range wrapper.Forms {
			entries = append(entries, IrregularEntry{Form: form, Lemma: lemma})
		}
		return entries, nil
	}

	var entries []IrregularEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse irregular forms as object or array: %w", err)
	}
	return entries, nil
}
