package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

// TestInitDBCreatesSchema verifies a fresh store has the core tables, the
// settings table and every lookup index.
func TestInitDBCreatesSchema(t *testing.T) {
	s := setupTestStore(t)

	for _, table := range []string{"Books", "Words", "Usages", "Settings"} {
		var name string
		err := s.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}

	for _, idx := range []string{
		"idx_usages_word_key", "idx_usages_book_key",
		"idx_usages_word_book_ts", "idx_usages_book_word_ts",
		"idx_words_id", "idx_words_stem",
	} {
		var name string
		err := s.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&name)
		if err != nil {
			t.Fatalf("index %s missing: %v", idx, err)
		}
	}
}

func TestEnsureIndicesIdempotent(t *testing.T) {
	s := setupTestStore(t)
	for i := 0; i < 3; i++ {
		if err := EnsureIndices(s.DB); err != nil {
			t.Fatalf("EnsureIndices pass %d: %v", i, err)
		}
	}
}

func TestOpenReportsStoreError(t *testing.T) {
	// A directory cannot be opened as a database file.
	_, err := Open(t.TempDir())
	if err == nil {
		t.Fatal("expected error opening a directory")
	}
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StoreError, got %T: %v", err, err)
	}
}

func TestOpenWithPureDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pure.db")
	s, err := Open(path, WithDriver(DriverPure), WithWAL())
	if err != nil {
		t.Fatalf("open with %s: %v", DriverPure, err)
	}
	defer s.Close()
	seedBook(t, s.DB, Book{ID: "b1", Title: "Dune", Authors: "Herbert"},
		seedWord{id: "en:spice", text: "spice", stem: "spice", ts: 1})
	books, err := ListBooks(context.Background(), s.DB)
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 1 || books[0].WordCount != 1 {
		t.Fatalf("unexpected books %+v", books)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := GetSetting(ctx, s.DB, CustomPromptKey); err != nil || ok {
		t.Fatalf("expected missing setting, got ok=%v err=%v", ok, err)
	}
	if err := SetSetting(ctx, s.DB, CustomPromptKey, "explain {word}"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetSetting(ctx, s.DB, CustomPromptKey, "define {word}"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := GetSetting(ctx, s.DB, CustomPromptKey)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if v != "define {word}" {
		t.Fatalf("expected overwritten value, got %q", v)
	}
}

func TestPreferencesOnlyReturnPrefixedKeys(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := SetSetting(ctx, s.DB, CustomPromptKey, "prompt"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetPreferredUsage(ctx, s.DB, "en:cat", "The cat sat."); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	if err := SetPreferredUsage(ctx, s.DB, "", "x"); err == nil {
		t.Fatal("expected error for empty word id")
	}
	prefs, err := LoadPreferences(ctx, s.DB)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(prefs) != 1 || prefs["en:cat"] != "The cat sat." {
		t.Fatalf("unexpected preferences %v", prefs)
	}
}

func TestUpdateStatusSharesByID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedBook(t, s.DB, Book{ID: "b1", Title: "A", Authors: "X"},
		seedWord{id: "en:run", text: "run", ts: 1},
		seedWord{id: "en:walk", text: "walk", ts: 2})
	// The same word looked up in a second book shares the word row.
	seedBook(t, s.DB, Book{ID: "b2", Title: "B", Authors: "Y"},
		seedWord{id: "en:run", text: "run", ts: 3})

	n, err := UpdateStatus(ctx, s.DB, []string{"en:run"}, Mastered)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row updated, got %d", n)
	}

	words, err := ListWords(ctx, s.DB, WordQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	runs := 0
	for _, w := range words {
		if w.ID == "en:run" {
			runs++
			if w.Status != Mastered {
				t.Fatalf("pair %s/%s not mastered: %v", w.ID, w.BookID, w.Status)
			}
		}
	}
	if runs != 2 {
		t.Fatalf("expected run listed under both books, got %d", runs)
	}
}

func TestBackfillStems(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if err := InsertWord(ctx, s.DB, Word{ID: "ja:食べた", Text: "食べた", Language: "ja"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InsertWord(ctx, s.DB, Word{ID: "ja:猫", Text: "猫", Stem: "猫", Language: "ja"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := InsertWord(ctx, s.DB, Word{ID: "en:ran", Text: "ran", Language: "en"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	derive := func(text string) string {
		if text == "食べた" {
			return "食べる"
		}
		return ""
	}
	n, err := BackfillStems(ctx, s.DB, "ja", derive)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stem filled, got %d", n)
	}
	w, err := GetWord(ctx, s.DB, "ja:食べた")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.Stem != "食べる" {
		t.Fatalf("expected stem 食べる, got %q", w.Stem)
	}
	en, err := GetWord(ctx, s.DB, "en:ran")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if en.Stem != "" {
		t.Fatalf("english stem should be untouched, got %q", en.Stem)
	}
}

func TestGetWordMissing(t *testing.T) {
	s := setupTestStore(t)
	if _, err := GetWord(context.Background(), s.DB, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	err := s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := InsertWord(ctx, tx, Word{ID: "en:x", Text: "x"}); err != nil {
			return err
		}
		return errors.New("intentional error")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var count int
	if err := s.DB.QueryRow("SELECT COUNT(*) FROM Words").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rows (rollback), got %d", count)
	}
}
