package db

import (
	"database/sql"
	"strings"
)

// Table layout matches the device export so an export file can be copied
// in verbatim and attached for merges.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS Books (
	id      TEXT PRIMARY KEY,
	title   TEXT,
	authors TEXT,
	lang    TEXT
);
CREATE TABLE IF NOT EXISTS Words (
	id       TEXT PRIMARY KEY,
	word     TEXT,
	stem     TEXT,
	lang     TEXT,
	category INTEGER DEFAULT 0
);
CREATE TABLE IF NOT EXISTS Usages (
	id        TEXT PRIMARY KEY,
	word_key  TEXT,
	book_key  TEXT,
	usage     TEXT,
	timestamp INTEGER
);
`

const settingsSQL = `CREATE TABLE IF NOT EXISTS Settings (
	key   TEXT PRIMARY KEY,
	value TEXT
)`

const indicesSQL = `
CREATE INDEX IF NOT EXISTS idx_usages_word_key ON Usages(word_key);
CREATE INDEX IF NOT EXISTS idx_usages_book_key ON Usages(book_key);
CREATE INDEX IF NOT EXISTS idx_usages_word_book_ts ON Usages(word_key, book_key, timestamp);
CREATE INDEX IF NOT EXISTS idx_usages_book_word_ts ON Usages(book_key, word_key, timestamp);
CREATE INDEX IF NOT EXISTS idx_words_id ON Words(id);
CREATE INDEX IF NOT EXISTS idx_words_stem ON Words(stem);
`

// InitDB creates the core tables if they are missing.
func InitDB(db *sql.DB) error {
	return execScript(db, schemaSQL)
}

// EnsureIndices creates the settings table and the lookup indices. It is
// idempotent and safe to call on every open.
func EnsureIndices(db *sql.DB) error {
	if _, err := db.Exec(settingsSQL); err != nil {
		return err
	}
	return execScript(db, indicesSQL)
}

func execScript(db *sql.DB, script string) error {
	for _, s := range strings.Split(script, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
