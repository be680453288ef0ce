package db

import "time"

// Status is the learning state of a word, stored as the Words.category
// integer.
type Status int

const (
	Learning Status = 0
	Mastered Status = 100
	Ignored  Status = -1
)

func (s Status) String() string {
	switch s {
	case Learning:
		return "learning"
	case Mastered:
		return "mastered"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ParseStatus maps a user-facing name to a Status.
func ParseStatus(name string) (Status, bool) {
	switch name {
	case "learning":
		return Learning, true
	case "mastered":
		return Mastered, true
	case "ignored":
		return Ignored, true
	}
	return 0, false
}

// Book is a logical book aggregated by (title, authors). The same book may
// be imported several times under different ids; IDs holds all of them.
type Book struct {
	ID         string
	IDs        []string
	Title      string
	Authors    string
	Language   string
	WordCount  int
	IsMastered bool
}

// Scope returns the scope selecting every word of the book.
func (b Book) Scope() *BookScope {
	return &BookScope{ID: b.ID, Title: b.Title, Authors: b.Authors}
}

// Word is one (word, book) pair as listed to the user.
type Word struct {
	ID        string
	Stem      string
	Text      string
	Language  string
	Status    Status
	BookID    string
	Timestamp time.Time

	// Usage is the displayed usage: the preferred one if set, else the latest.
	Usage      string
	UsageCount int
	// StemOtherBookCount is the number of other books containing a word with
	// the same stem. Only computed for scoped listings.
	StemOtherBookCount int
}

// Usage is one lookup of a word in context.
type Usage struct {
	WordID    string
	BookID    string
	Text      string
	Timestamp time.Time
}

// BookScope restricts a listing to one logical book. Title and Authors take
// precedence over ID so that duplicate imports are included.
type BookScope struct {
	ID      string
	Title   string
	Authors string
}

func (s *BookScope) byKey() bool {
	return s.Title != "" || s.Authors != ""
}
