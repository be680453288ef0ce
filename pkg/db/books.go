package db

import (
	"context"
	"database/sql"
	"sort"
)

const booksQuery = `
SELECT b.id AS id, b.title AS title, b.authors AS authors, b.lang AS lang,
	COUNT(DISTINCT w.word) AS word_count,
	SUM(CASE WHEN w.category = 0 THEN 1 ELSE 0 END) AS learning
FROM Books b
JOIN Usages u ON u.book_key = b.id
JOIN Words w ON w.id = u.word_key
GROUP BY b.id
HAVING COUNT(DISTINCT w.word) > 0`

var bookColumnNames = []string{"id", "title", "authors", "lang", "word_count", "learning"}

type bookKey struct{ title, authors string }

// ListBooks aggregates books with at least one word, merging duplicate
// imports by (title, authors). Word counts are summed across duplicates and
// a book is mastered only if none of its duplicates has a learning word.
func ListBooks(ctx context.Context, db DBExecutor) ([]Book, error) {
	rows, err := db.QueryContext(ctx, booksQuery)
	if err != nil {
		return nil, queryErr("books", err)
	}
	defer rows.Close()
	if err := expectColumns(rows, bookColumnNames); err != nil {
		return nil, queryErr("books", err)
	}

	merged := make(map[bookKey]*Book)
	var order []bookKey
	for rows.Next() {
		var (
			id                   string
			title, authors, lang sql.NullString
			wordCount, learning  sql.NullInt64
		)
		if err := rows.Scan(&id, &title, &authors, &lang, &wordCount, &learning); err != nil {
			return nil, queryErr("books", err)
		}
		k := bookKey{title.String, authors.String}
		b, ok := merged[k]
		if !ok {
			b = &Book{
				ID:         id,
				Title:      title.String,
				Authors:    authors.String,
				Language:   lang.String,
				IsMastered: true,
			}
			merged[k] = b
			order = append(order, k)
		}
		b.IDs = append(b.IDs, id)
		b.WordCount += int(wordCount.Int64)
		if learning.Int64 > 0 {
			b.IsMastered = false
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("books", err)
	}

	out := make([]Book, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].Authors < out[j].Authors
	})
	return out, nil
}
