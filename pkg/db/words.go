package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"
)

// Limits caps the number of rows a word listing returns.
type Limits struct {
	ShortTerm int // search terms shorter than three characters
	Term      int // longer search terms
	Listing   int // unscoped listings without a search term
}

// DefaultLimits are the caps used when a WordQuery leaves Limits zero.
var DefaultLimits = Limits{ShortTerm: 100, Term: 500, Listing: 1000}

// WordQuery describes a word listing or search.
type WordQuery struct {
	Scope *BookScope
	Term  string
	// Candidates are stemmer-derived root forms of Term.
	Candidates []string
	// Related enables the per-stem count of other books for scoped listings.
	Related     bool
	Preferences map[string]string
	Limits      Limits
}

func (q WordQuery) limit() int {
	l := q.Limits
	if l == (Limits{}) {
		l = DefaultLimits
	}
	switch {
	case q.Term != "" && utf8.RuneCountInString(q.Term) < 3:
		return l.ShortTerm
	case q.Term != "":
		return l.Term
	case q.Scope == nil:
		return l.Listing
	}
	return -1
}

// bookKeyOf is the SQL expression identifying the logical book of the
// Books row aliased as alias.
func bookKeyOf(alias string) string {
	return "IFNULL(" + alias + ".title, '') || char(31) || IFNULL(" + alias + ".authors, '')"
}

// ListWords returns one row per (word, book) pair ordered by status tier and
// most recent usage. The query is canceled cooperatively through ctx.
func ListWords(ctx context.Context, db DBExecutor, q WordQuery) ([]Word, error) {
	query, args := buildWordQuery(q)
	return runWordQuery(ctx, db, "words", query, args, q.Preferences)
}

func buildWordQuery(q WordQuery) (string, []interface{}) {
	b := &queryBuilder{}
	source := "Usages"
	if q.Scope != nil {
		b.scopeCTE(q.Scope)
		b.with("scoped_usages",
			`SELECT word_key, book_key, timestamp FROM Usages WHERE book_key IN (SELECT id FROM scope_books)`)
		source = "scoped_usages"
	}
	b.with("latest",
		`SELECT word_key, book_key, MAX(timestamp) AS ts, COUNT(*) AS usage_count FROM `+source+`
		 GROUP BY word_key, book_key`)

	others := "0"
	join := ""
	if q.Related && q.Scope != nil {
		b.with("scope_stems",
			`SELECT DISTINCT fold(w.stem) AS stem FROM latest l JOIN Words w ON w.id = l.word_key
			 WHERE IFNULL(w.stem, '') <> ''`)
		b.with("scope_keys",
			`SELECT DISTINCT `+bookKeyOf("b")+` AS k FROM Books b WHERE b.id IN (SELECT id FROM scope_books)`)
		b.with("stem_books",
			`SELECT fold(w.stem) AS stem, COUNT(DISTINCT `+bookKeyOf("b")+`) AS other_books
			 FROM Words w
			 JOIN Usages u ON u.word_key = w.id
			 JOIN Books b ON b.id = u.book_key
			 WHERE fold(w.stem) IN (SELECT stem FROM scope_stems)
			   AND u.book_key NOT IN (SELECT id FROM scope_books)
			   AND `+bookKeyOf("b")+` NOT IN (SELECT k FROM scope_keys)
			 GROUP BY fold(w.stem)`)
		others = "IFNULL(sb.other_books, 0)"
		join = "\nLEFT JOIN stem_books sb ON sb.stem = fold(w.stem)"
	}

	var where string
	var whereArgs []interface{}
	if q.Term != "" {
		term := Fold(q.Term)
		conds := []string{"instr(fold(w.word), ?) > 0"}
		whereArgs = append(whereArgs, term)
		if len(q.Candidates) > 0 {
			lowered := make([]string, len(q.Candidates))
			for i, c := range q.Candidates {
				lowered[i] = Fold(c)
			}
			list, largs := inList(lowered)
			conds = append(conds, "fold(w.stem) IN "+list)
			whereArgs = append(whereArgs, largs...)
			for _, c := range lowered {
				conds = append(conds, "instr(fold(w.word), ?) > 0")
				whereArgs = append(whereArgs, c)
			}
		}
		conds = append(conds, `EXISTS (SELECT 1 FROM Usages u3
			WHERE u3.word_key = l.word_key AND u3.book_key = l.book_key
			  AND instr(fold(u3.usage), ?) > 0)`)
		whereArgs = append(whereArgs, term)
		where = "\nWHERE " + strings.Join(conds, "\n   OR ")
	}

	body := `SELECT ` + wordColumns + `, ` + others + ` AS other_books
FROM latest l
JOIN Words w ON w.id = l.word_key` + join + where + `
ORDER BY ` + statusOrder + `, l.ts DESC, w.id
LIMIT ?`
	whereArgs = append(whereArgs, q.limit())
	return b.build(body, whereArgs...)
}

// ListUsages returns every usage of a word within one book, newest first,
// keeping only the latest timestamp of each distinct text.
func ListUsages(ctx context.Context, db DBExecutor, wordID, bookID string) ([]Usage, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT usage, MAX(timestamp) AS ts FROM Usages
		 WHERE word_key = ? AND book_key = ?
		 GROUP BY usage
		 ORDER BY ts DESC`, wordID, bookID)
	if err != nil {
		return nil, queryErr("usages", err)
	}
	defer rows.Close()
	if err := expectColumns(rows, []string{"usage", "ts"}); err != nil {
		return nil, queryErr("usages", err)
	}
	var out []Usage
	for rows.Next() {
		var text sql.NullString
		var ts sql.NullInt64
		if err := rows.Scan(&text, &ts); err != nil {
			return nil, queryErr("usages", err)
		}
		out = append(out, Usage{WordID: wordID, BookID: bookID, Text: text.String, Timestamp: millis(ts.Int64)})
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("usages", err)
	}
	return out, nil
}

// StemMatches returns (word, book) pairs whose stem equals one of stems,
// excluding the pair of word itself and, when excludeBook is set, every pair
// from the same logical book. Ordering follows ListWords.
func StemMatches(ctx context.Context, db DBExecutor, word Word, stems []string, excludeBook bool) ([]Word, error) {
	if len(stems) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(stems))
	for i, s := range stems {
		lowered[i] = Fold(s)
	}
	list, largs := inList(lowered)

	b := &queryBuilder{}
	b.with("stem_words", `SELECT id FROM Words WHERE fold(stem) IN `+list, largs...)
	b.with("latest",
		`SELECT word_key, book_key, MAX(timestamp) AS ts, COUNT(*) AS usage_count FROM Usages
		 WHERE word_key IN (SELECT id FROM stem_words)
		 GROUP BY word_key, book_key`)

	where := "WHERE NOT (l.word_key = ? AND l.book_key = ?)"
	args := []interface{}{word.ID, word.BookID}
	if excludeBook && word.BookID != "" {
		// Duplicate imports of the same title and authors are one book.
		where += ` AND l.book_key <> ?
  AND l.book_key NOT IN (SELECT b2.id FROM Books b2
    WHERE ` + bookKeyOf("b2") + ` IN (SELECT ` + bookKeyOf("b1") + ` FROM Books b1 WHERE b1.id = ?))`
		args = append(args, word.BookID, word.BookID)
	}
	body := `SELECT ` + wordColumns + `, 0 AS other_books
FROM latest l
JOIN Words w ON w.id = l.word_key
` + where + `
ORDER BY ` + statusOrder + `, l.ts DESC, w.id`
	query, all := b.build(body, args...)
	return runWordQuery(ctx, db, "stem-matches", query, all, nil)
}

func millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
