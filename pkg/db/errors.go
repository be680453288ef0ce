package db

import (
	"errors"
	"fmt"
)

// ErrCanceled is returned by listing calls whose context was canceled
// before all rows were read. No partial results accompany it.
var ErrCanceled = errors.New("query canceled")

// StoreError reports a failure to open, connect to or index the store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// QueryError reports a failed listing or search query, including rows whose
// shape does not match what the decoder expects.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query %s: %v", e.Query, e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// ImportError reports the stage at which an import or merge failed.
type ImportError struct {
	Stage string
	Err   error
}

func (e *ImportError) Error() string { return fmt.Sprintf("import %s: %v", e.Stage, e.Err) }
func (e *ImportError) Unwrap() error { return e.Err }

func queryErr(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) {
		return ErrCanceled
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &QueryError{Query: name, Err: err}
}
