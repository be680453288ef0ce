package db

import (
	"database/sql"
	"database/sql/driver"

	sqlite3 "github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"modernc.org/sqlite"
)

// foldFunc is the SQL name of the Unicode lower-casing function installed on
// every connection. SQLite's built-in LOWER only folds ASCII.
const foldFunc = "fold"

// cgoFoldDriver is mattn's driver registered again with a connect hook that
// installs foldFunc. DriverCgo resolves to it in Open and OpenReadOnly.
const cgoFoldDriver = "sqlite3_fold"

func init() {
	sql.Register(cgoFoldDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(foldFunc, foldValue, true)
		},
	})
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return foldValue(args[0]), nil
		})
}

// Fold lower-cases s with Unicode rules. Search terms and stem candidates
// go through it so they compare equal to fold(column) in SQL.
func Fold(s string) string {
	return cases.Lower(language.Und).String(s)
}

func foldValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return Fold(t)
	case []byte:
		// mattn hands NULL over as a nil slice.
		if t == nil {
			return nil
		}
		return Fold(string(t))
	default:
		return v
	}
}

// sqlDriver maps a public driver name to the registered one that carries
// foldFunc.
func sqlDriver(name string) string {
	if name == DriverCgo {
		return cgoFoldDriver
	}
	return name
}
