package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// queryBuilder assembles a statement from named CTEs that are only added
// when the request needs them. Every value goes through args; fragments
// are fixed SQL text.
type queryBuilder struct {
	ctes []string
	args []interface{}
}

func (b *queryBuilder) with(name, body string, args ...interface{}) {
	b.ctes = append(b.ctes, name+" AS ("+body+")")
	b.args = append(b.args, args...)
}

func (b *queryBuilder) build(body string, args ...interface{}) (string, []interface{}) {
	var sb strings.Builder
	if len(b.ctes) > 0 {
		sb.WriteString("WITH ")
		sb.WriteString(strings.Join(b.ctes, ",\n"))
		sb.WriteString("\n")
	}
	sb.WriteString(body)
	all := make([]interface{}, 0, len(b.args)+len(args))
	all = append(all, b.args...)
	all = append(all, args...)
	return sb.String(), all
}

// inList returns "(?, ?, ...)" and the values as arguments.
func inList(values []string) (string, []interface{}) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return "(" + placeholders(len(values)) + ")", args
}

// scopeCTE adds scope_books, the store ids a BookScope resolves to.
func (b *queryBuilder) scopeCTE(scope *BookScope) {
	if scope.byKey() {
		b.with("scope_books",
			`SELECT id FROM Books WHERE IFNULL(title, '') = ? AND IFNULL(authors, '') = ?`,
			scope.Title, scope.Authors)
		return
	}
	b.with("scope_books", `SELECT ? AS id`, scope.ID)
}

// statusOrder ranks Learning, then Mastered and unknown values, then Ignored.
const statusOrder = `CASE w.category WHEN 0 THEN 0 WHEN -1 THEN 2 ELSE 1 END`

// wordColumns is the projection shared by word listings and stem matches.
// latest must expose word_key, book_key, ts and usage_count.
const wordColumns = `w.id AS id, w.word AS word, w.stem AS stem, w.lang AS lang, w.category AS category,
	l.book_key AS book_key, l.ts AS ts, l.usage_count AS usage_count,
	(SELECT u2.usage FROM Usages u2
	  WHERE u2.word_key = l.word_key AND u2.book_key = l.book_key AND u2.timestamp = l.ts
	  ORDER BY u2.id LIMIT 1) AS latest_usage`

var wordColumnNames = []string{
	"id", "word", "stem", "lang", "category",
	"book_key", "ts", "usage_count", "latest_usage", "other_books",
}

// expectColumns fails when the result set does not have exactly the named
// columns in order.
func expectColumns(rows *sql.Rows, want []string) error {
	got, err := rows.Columns()
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return fmt.Errorf("unexpected column count %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !strings.EqualFold(got[i], want[i]) {
			return fmt.Errorf("unexpected column %q at %d, want %q", got[i], i, want[i])
		}
	}
	return nil
}

// scanWords decodes word rows, checking ctx between rows. A canceled ctx
// discards everything read so far.
func scanWords(ctx context.Context, rows *sql.Rows, prefs map[string]string) ([]Word, error) {
	if err := expectColumns(rows, wordColumnNames); err != nil {
		return nil, err
	}
	var out []Word
	for rows.Next() {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		var (
			w                        Word
			stem, lang, book, latest sql.NullString
			category                 sql.NullInt64
			ts, count, others        sql.NullInt64
		)
		if err := rows.Scan(&w.ID, &w.Text, &stem, &lang, &category,
			&book, &ts, &count, &latest, &others); err != nil {
			return nil, err
		}
		w.Stem = stem.String
		w.Language = lang.String
		w.Status = Status(category.Int64)
		w.BookID = book.String
		w.Timestamp = millis(ts.Int64)
		w.UsageCount = int(count.Int64)
		w.StemOtherBookCount = int(others.Int64)
		w.Usage = latest.String
		if p, ok := prefs[w.ID]; ok {
			w.Usage = p
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrCanceled
	}
	return out, nil
}

func runWordQuery(ctx context.Context, db DBExecutor, name, query string, args []interface{}, prefs map[string]string) ([]Word, error) {
	if ctx.Err() != nil {
		return nil, ErrCanceled
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, queryErr(name, err)
	}
	defer rows.Close()
	words, err := scanWords(ctx, rows, prefs)
	return words, queryErr(name, err)
}
