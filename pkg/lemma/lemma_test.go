package lemma

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnowball(t *testing.T) {
	cases := map[string]string{
		"running": "run",
		"Cats":    "cat",
		"peeved":  "peev",
		"":        "",
	}
	for in, want := range cases {
		if got := (Snowball{}).Lemma(in); got != want {
			t.Errorf("Snowball(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChainFirstNonEmptyWins(t *testing.T) {
	empty := Func(func(string) string { return "" })
	fixed := Func(func(string) string { return "fixed" })
	c := Chain{nil, empty, fixed, Snowball{}}
	if got := c.Lemma("anything"); got != "fixed" {
		t.Fatalf("expected fixed, got %q", got)
	}
	if got := (Chain{}).Lemma("anything"); got != "" {
		t.Fatalf("empty chain returned %q", got)
	}
}

func TestDefaultPrefersIrregulars(t *testing.T) {
	l := Default()
	if got := l.Lemma("went"); got != "go" {
		t.Errorf("went -> %q, want go", got)
	}
	if got := l.Lemma("Mice"); got != "mouse" {
		t.Errorf("Mice -> %q, want mouse", got)
	}
	if got := l.Lemma("walking"); got != "walk" {
		t.Errorf("walking -> %q, want walk", got)
	}
}

func TestDefaultIrregularsAreIndependent(t *testing.T) {
	a := DefaultIrregulars()
	n := a.Len()
	if n == 0 {
		t.Fatal("embedded table is empty")
	}
	a.Add([]IrregularEntry{{Form: "zzyzx", Lemma: "zz"}})
	if b := DefaultIrregulars(); b.Len() != n || b.Lemma("zzyzx") != "" {
		t.Fatal("Add leaked into a fresh default table")
	}
}

func TestParseIrregulars(t *testing.T) {
	obj := `{"forms": {"Went": " go ", "": "x", "mice": ""}}`
	entries, err := ParseIrregulars(strings.NewReader(obj))
	if err != nil {
		t.Fatalf("parse object: %v", err)
	}
	ir := NewIrregulars(entries)
	if ir.Len() != 1 || ir.Lemma("WENT") != "go" {
		t.Fatalf("unexpected index: len=%d went=%q", ir.Len(), ir.Lemma("went"))
	}

	arr := `[{"form": "geese", "lemma": "goose"}, {"form": "geese", "lemma": "gander"}]`
	entries, err = ParseIrregulars(strings.NewReader(arr))
	if err != nil {
		t.Fatalf("parse array: %v", err)
	}
	if got := NewIrregulars(entries).Lemma("geese"); got != "gander" {
		t.Fatalf("later entry should win, got %q", got)
	}

	if _, err := ParseIrregulars(strings.NewReader(`"nope"`)); err == nil {
		t.Fatal("expected error for scalar json")
	}
}

func TestLoadIrregulars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.json")
	if err := os.WriteFile(path, []byte(`{"forms": {"brethren": "brother"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := LoadIrregulars(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].Lemma != "brother" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if _, err := LoadIrregulars(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestKagomeBaseForm(t *testing.T) {
	k, err := NewKagome()
	if err != nil {
		t.Fatalf("Failed to create tokenizer: %v", err)
	}
	cases := map[string]string{
		"食べた": "食べる",
		"行った": "行く",
		"猫":   "猫",
		"  ":  "",
		"。":   "",
	}
	for in, want := range cases {
		if got := k.Lemma(in); got != want {
			t.Errorf("Lemma(%q) = %q, want %q", in, got, want)
		}
	}

	var nilK *Kagome
	if got := nilK.Lemma("猫"); got != "" {
		t.Errorf("nil tokenizer returned %q", got)
	}
}
