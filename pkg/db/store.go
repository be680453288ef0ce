package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB,
// *sql.Conn or *sql.Tx.
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Reserved settings keys.
const (
	PreferenceKeyPrefix = "preferred_usage:"
	CustomPromptKey     = "custom_prompt"
)

// InsertBook adds a book row unless one with the same id exists.
func InsertBook(ctx context.Context, db DBExecutor, b Book) error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("book id must be non-empty")
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO Books (id, title, authors, lang) VALUES (?, ?, ?, ?)`,
		b.ID, b.Title, b.Authors, b.Language)
	return err
}

// InsertWord adds a word row unless one with the same id exists. An empty
// stem is stored as NULL.
func InsertWord(ctx context.Context, db DBExecutor, w Word) error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("word id must be non-empty")
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO Words (id, word, stem, lang, category) VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.Text, nullableString(w.Stem), w.Language, int(w.Status))
	return err
}

// InsertUsage adds a usage row unless one with the same id exists.
func InsertUsage(ctx context.Context, db DBExecutor, id string, u Usage) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("usage id must be non-empty")
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO Usages (id, word_key, book_key, usage, timestamp) VALUES (?, ?, ?, ?, ?)`,
		id, u.WordID, u.BookID, u.Text, u.Timestamp.UnixMilli())
	return err
}

// nullableString returns nil for "" else the value.
func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// UpdateStatus sets the category of every word row whose id is in ids.
func UpdateStatus(ctx context.Context, db DBExecutor, ids []string, status Status) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, int(status))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE Words SET category = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}
	return res.RowsAffected()
}

// GetWord returns the stored row for id. Listing-only fields are left zero.
func GetWord(ctx context.Context, db DBExecutor, id string) (Word, error) {
	var w Word
	var stem, lang sql.NullString
	var category int
	err := db.QueryRowContext(ctx,
		`SELECT id, word, stem, lang, category FROM Words WHERE id = ?`, id).
		Scan(&w.ID, &w.Text, &stem, &lang, &category)
	if err != nil {
		return Word{}, err
	}
	w.Stem = stem.String
	w.Language = lang.String
	w.Status = Status(category)
	return w, nil
}

// GetSetting returns the value stored under key and whether it exists.
func GetSetting(ctx context.Context, db DBExecutor, key string) (string, bool, error) {
	var v sql.NullString
	err := db.QueryRowContext(ctx, `SELECT value FROM Settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

// SetSetting stores value under key, replacing any previous value.
func SetSetting(ctx context.Context, db DBExecutor, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO Settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// SetPreferredUsage records the usage text to display for wordID.
func SetPreferredUsage(ctx context.Context, db DBExecutor, wordID, text string) error {
	if strings.TrimSpace(wordID) == "" {
		return fmt.Errorf("word id must be non-empty")
	}
	return SetSetting(ctx, db, PreferenceKeyPrefix+wordID, text)
}

// LoadPreferences returns every preferred usage keyed by word id.
func LoadPreferences(ctx context.Context, db DBExecutor) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key, value FROM Settings WHERE substr(key, 1, ?) = ?`,
		len(PreferenceKeyPrefix), PreferenceKeyPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	prefs := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		prefs[strings.TrimPrefix(key, PreferenceKeyPrefix)] = value.String
	}
	return prefs, rows.Err()
}

// BackfillStems fills empty stems of words in lang using derive. Words for
// which derive returns "" are left alone. It returns the number of rows
// updated.
func BackfillStems(ctx context.Context, db DBExecutor, lang string, derive func(text string) string) (int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, word FROM Words WHERE lang = ? AND IFNULL(stem, '') = ''`, lang)
	if err != nil {
		return 0, err
	}
	type update struct{ id, stem string }
	var updates []update
	for rows.Next() {
		var id string
		var text sql.NullString
		if err := rows.Scan(&id, &text); err != nil {
			rows.Close()
			return 0, err
		}
		if stem := derive(text.String); stem != "" {
			updates = append(updates, update{id, stem})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, u := range updates {
		if _, err := db.ExecContext(ctx, `UPDATE Words SET stem = ? WHERE id = ?`, u.stem, u.id); err != nil {
			return 0, fmt.Errorf("backfill stem %s: %w", u.id, err)
		}
	}
	return len(updates), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
