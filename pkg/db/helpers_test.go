package db

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedWord is one word looked up once in a book.
type seedWord struct {
	id, text, stem string
	status         Status
	ts             int64
	usage          string
}

func seedBook(t *testing.T, ex DBExecutor, book Book, words ...seedWord) {
	t.Helper()
	ctx := context.Background()
	if err := InsertBook(ctx, ex, book); err != nil {
		t.Fatalf("insert book %s: %v", book.ID, err)
	}
	for _, w := range words {
		if err := InsertWord(ctx, ex, Word{ID: w.id, Text: w.text, Stem: w.stem, Language: "en", Status: w.status}); err != nil {
			t.Fatalf("insert word %s: %v", w.id, err)
		}
		usage := w.usage
		if usage == "" {
			usage = "a sentence with " + w.text
		}
		u := Usage{WordID: w.id, BookID: book.ID, Text: usage, Timestamp: time.UnixMilli(w.ts)}
		if err := InsertUsage(ctx, ex, fmt.Sprintf("%s|%s|%d", w.id, book.ID, w.ts), u); err != nil {
			t.Fatalf("insert usage %s: %v", w.id, err)
		}
	}
}

func wordIDs(words []Word) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.ID
	}
	return out
}
