package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/japaniel/vocabkeeper/pkg/db"
)

type fixtureWord struct {
	id, text, stem, lang string
}

type fixtureBook struct {
	book  db.Book
	words []fixtureWord
}

// writeDataset creates a device-style database file at path.
func writeDataset(t *testing.T, path string, books ...fixtureBook) {
	t.Helper()
	ctx := context.Background()
	s, err := db.Open(path)
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	defer s.Close()
	ts := int64(1_700_000_000_000)
	for _, fb := range books {
		if err := db.InsertBook(ctx, s.DB, fb.book); err != nil {
			t.Fatalf("insert book: %v", err)
		}
		for _, w := range fb.words {
			lang := w.lang
			if lang == "" {
				lang = "en"
			}
			if err := db.InsertWord(ctx, s.DB, db.Word{ID: w.id, Text: w.text, Stem: w.stem, Language: lang}); err != nil {
				t.Fatalf("insert word: %v", err)
			}
			ts++
			u := db.Usage{WordID: w.id, BookID: fb.book.ID, Text: "he said " + w.text + " twice", Timestamp: time.UnixMilli(ts)}
			if err := db.InsertUsage(ctx, s.DB, fmt.Sprintf("%s|%s", w.id, fb.book.ID), u); err != nil {
				t.Fatalf("insert usage: %v", err)
			}
		}
	}
}

// datasetD1 is three books holding 12, 14 and 14 distinct words.
func datasetD1() []fixtureBook {
	sizes := []int{12, 14, 14}
	var out []fixtureBook
	for b, n := range sizes {
		fb := fixtureBook{book: db.Book{
			ID:       fmt.Sprintf("book-%d", b+1),
			Title:    fmt.Sprintf("Book %d", b+1),
			Authors:  "A. Writer",
			Language: "en",
		}}
		for i := 0; i < n; i++ {
			text := fmt.Sprintf("term%d%c", b+1, 'a'+i)
			fb.words = append(fb.words, fixtureWord{id: "en:" + text, text: text, stem: text})
		}
		out = append(out, fb)
	}
	return out
}

func openSession(t *testing.T, path string, opts ...Option) *Session {
	t.Helper()
	s, err := Open(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newController(t *testing.T, s *Session) *Controller {
	t.Helper()
	c := NewController(context.Background(), s)
	t.Cleanup(c.Close)
	return c
}

func settle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

// importDataset opens a session on a fresh store and imports books into it.
func importDataset(t *testing.T, books ...fixtureBook) (*Session, *Controller, string) {
	t.Helper()
	dir := t.TempDir()
	ext := filepath.Join(dir, "device.db")
	writeDataset(t, ext, books...)
	s := openSession(t, filepath.Join(dir, "vocab.db"))
	c := newController(t, s)
	c.Import(ext)
	settle(t, c)
	if err := c.Projection().Err; err != nil {
		t.Fatalf("import: %v", err)
	}
	return s, c, ext
}

func findBook(t *testing.T, books []db.Book, title string) db.Book {
	t.Helper()
	for _, b := range books {
		if b.Title == title {
			return b
		}
	}
	t.Fatalf("book %q not listed", title)
	return db.Book{}
}

func storedStatus(t *testing.T, s *Session, id string) db.Status {
	t.Helper()
	w, err := s.Word(context.Background(), id)
	if err != nil {
		t.Fatalf("word %s: %v", id, err)
	}
	return w.Status
}

// rejectStatusWrites makes every later UPDATE of Words fail.
func rejectStatusWrites(t *testing.T, s *Session) {
	t.Helper()
	err := s.queue.Do(context.Background(), func(ctx context.Context) error {
		_, err := s.store.DB.ExecContext(ctx,
			`CREATE TRIGGER reject_status BEFORE UPDATE ON Words
			 BEGIN SELECT RAISE(ABORT, 'status writes rejected'); END`)
		return err
	})
	if err != nil {
		t.Fatalf("install trigger: %v", err)
	}
}

func projectedStatus(t *testing.T, c *Controller, id string) db.Status {
	t.Helper()
	for _, w := range c.Projection().Words {
		if w.ID == id {
			return w.Status
		}
	}
	t.Fatalf("word %s not projected", id)
	return 0
}
