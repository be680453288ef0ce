package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// mergeTables lists the tables copied by Merge, words first so the added
// count is available even when a later step fails.
var mergeTables = []struct {
	stage, table, columns string
}{
	{"merge-words", "Words", "id, word, stem, lang, category"},
	{"merge-books", "Books", "id, title, authors, lang"},
	{"merge-usages", "Usages", "id, word_key, book_key, usage, timestamp"},
}

// Import brings the dataset at externalPath into the store at localPath.
// When no local store exists the file is copied into place and opened;
// otherwise it is merged into the open store. The returned store is the one
// to use afterwards (local when it was non-nil).
func Import(ctx context.Context, local *Store, localPath, externalPath string, opts ...Option) (*Store, int, error) {
	if _, err := os.Stat(externalPath); err != nil {
		return local, 0, &ImportError{Stage: "open", Err: err}
	}
	if local != nil {
		added, err := local.Merge(ctx, externalPath)
		return local, added, err
	}
	if _, err := os.Stat(localPath); err == nil {
		return nil, 0, &ImportError{Stage: "copy", Err: fmt.Errorf("%s already exists", localPath)}
	}
	return CopyImport(ctx, localPath, externalPath, opts...)
}

// CopyImport installs externalPath as the store at localPath. The added count
// is the number of rows in its Words table.
func CopyImport(ctx context.Context, localPath, externalPath string, opts ...Option) (*Store, int, error) {
	if err := copyFile(externalPath, localPath); err != nil {
		return nil, 0, &ImportError{Stage: "copy", Err: err}
	}
	// A file that cannot serve as the store is removed again, otherwise
	// every later import would find it in the way.
	s, err := Open(localPath, opts...)
	if err != nil {
		return nil, 0, &ImportError{Stage: "open", Err: errors.Join(err, RemoveFiles(localPath))}
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM Words`).Scan(&n); err != nil {
		s.Close()
		return nil, 0, &ImportError{Stage: "count", Err: errors.Join(err, RemoveFiles(localPath))}
	}
	return s, n, nil
}

// RemoveFiles deletes the store file at path together with its journal
// sidecars. Files that do not exist are not an error.
func RemoveFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// copyFile writes src to a temporary file next to dst and renames it into
// place so a failed copy never leaves a truncated store behind.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".import-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Merge attaches the dataset at externalPath and inserts every Words, Books
// and Usages row whose primary key is absent locally. Existing rows are never
// touched, so local status changes survive a re-import. Each table is copied
// in its own transaction. It returns the number of words added.
func (s *Store) Merge(ctx context.Context, externalPath string) (added int, err error) {
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return 0, &ImportError{Stage: "attach", Err: err}
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS ext`, externalPath); err != nil {
		return 0, &ImportError{Stage: "attach", Err: err}
	}
	defer func() {
		// Detach even when ctx is done; the connection goes back to the pool.
		if _, derr := conn.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE ext`); derr != nil && err == nil {
			err = &ImportError{Stage: "detach", Err: derr}
		}
	}()

	if err := validateExternal(ctx, conn); err != nil {
		return 0, &ImportError{Stage: "validate", Err: err}
	}

	for _, t := range mergeTables {
		n, err := mergeTable(ctx, conn, t.table, t.columns)
		if err != nil {
			return added, &ImportError{Stage: t.stage, Err: err}
		}
		if t.table == "Words" {
			added = int(n)
		}
	}
	return added, nil
}

func validateExternal(ctx context.Context, conn *sql.Conn) error {
	rows, err := conn.QueryContext(ctx, `SELECT name FROM ext.sqlite_master WHERE type = 'table'`)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		found[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	var missing []error
	for _, t := range mergeTables {
		if !found[strings.ToLower(t.table)] {
			missing = append(missing, fmt.Errorf("table %s missing", t.table))
		}
	}
	return errors.Join(missing...)
}

func mergeTable(ctx context.Context, conn *sql.Conn, table, columns string) (int64, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO main.`+table+` (`+columns+`) SELECT `+columns+` FROM ext.`+table)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
