package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/japaniel/vocabkeeper/pkg/config"
	"github.com/japaniel/vocabkeeper/pkg/db"
)

// writeDevice builds a device export with two books.
func writeDevice(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	s, err := db.Open(path)
	if err != nil {
		t.Fatalf("failed to open device db: %v", err)
	}
	defer s.Close()
	books := []db.Book{
		{ID: "b1", Title: "The Walk", Authors: "R. Walser", Language: "en"},
		{ID: "b2", Title: "Pedestrian", Authors: "R. Bradbury", Language: "en"},
	}
	words := map[string][]db.Word{
		"b1": {{ID: "en:walked", Text: "walked", Stem: "walk"}, {ID: "en:meadow", Text: "meadow", Stem: "meadow"}},
		"b2": {{ID: "en:walking", Text: "walking", Stem: "walk"}},
	}
	ts := int64(1_700_000_000_000)
	for _, b := range books {
		if err := db.InsertBook(ctx, s.DB, b); err != nil {
			t.Fatal(err)
		}
		for _, w := range words[b.ID] {
			w.Language = "en"
			if err := db.InsertWord(ctx, s.DB, w); err != nil {
				t.Fatal(err)
			}
			ts++
			u := db.Usage{WordID: w.ID, BookID: b.ID, Text: "she was " + w.Text + " home", Timestamp: time.UnixMilli(ts)}
			if err := db.InsertUsage(ctx, s.DB, fmt.Sprintf("%s|%s", w.ID, b.ID), u); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := run(ctx, args, &out); err != nil {
		t.Fatalf("cli %v failed: %v\noutput:\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCLIImportListAndStatus(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(config.EnvLog, "quiet")
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvDriver, "")
	device := filepath.Join(tmp, "device.db")
	writeDevice(t, device)
	store := filepath.Join(tmp, "vocab.db")
	base := []string{"-config", filepath.Join(tmp, "none.yaml"), "-db", store}

	out := runCLI(t, append(base, "-import", device)...)
	if !strings.Contains(out, "Imported 3 new words") {
		t.Fatalf("unexpected import output:\n%s", out)
	}

	out = runCLI(t, append(base, "-import", device, "-books")...)
	if !strings.Contains(out, "Imported 0 new words") {
		t.Fatalf("re-import should add nothing:\n%s", out)
	}
	if !strings.Contains(out, "The Walk") || !strings.Contains(out, "Pedestrian") {
		t.Fatalf("books missing from listing:\n%s", out)
	}

	out = runCLI(t, append(base, "-status", "Mastered", "-ids", "en:walking", "-books")...)
	if !strings.Contains(out, "Marked 1 words as mastered") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
	var pedestrian string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Pedestrian") {
			pedestrian = line
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(pedestrian), "yes") {
		t.Fatalf("Pedestrian should be mastered:\n%s", out)
	}

	out = runCLI(t, append(base, "-search", "walk", "-stems")...)
	if !strings.Contains(out, "en:walked") || !strings.Contains(out, "en:walking") {
		t.Fatalf("search missing results:\n%s", out)
	}
	if !strings.Contains(out, "walked also appears as:") {
		t.Fatalf("stem matches missing:\n%s", out)
	}
}

func TestCLIRejectsUnknownStatus(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(config.EnvLog, "quiet")
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-config", filepath.Join(tmp, "none.yaml"),
		"-db", filepath.Join(tmp, "vocab.db"),
		"-prompt", "Define {word}.",
		"-status", "forgotten", "-ids", "x",
	}, &out)
	if err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}

func TestCLIUnknownBook(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(config.EnvLog, "quiet")
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-config", filepath.Join(tmp, "none.yaml"),
		"-db", filepath.Join(tmp, "vocab.db"),
		"-book", "Nowhere",
	}, &out)
	if err == nil || !strings.Contains(err.Error(), "no book titled") {
		t.Fatalf("expected missing book error, got %v", err)
	}
}
