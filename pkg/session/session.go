// Package session coordinates access to a vocabulary store. A Session owns
// the store through a serial queue and answers stem-match lookups from a
// worker pool on read-only connections; a Controller turns its results into
// a projection for a single presentation goroutine.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/japaniel/vocabkeeper/pkg/db"
	"github.com/japaniel/vocabkeeper/pkg/lemma"
	"github.com/japaniel/vocabkeeper/pkg/logging"
	"github.com/japaniel/vocabkeeper/pkg/scheduler"
	"github.com/japaniel/vocabkeeper/pkg/stemmer"
)

type options struct {
	dbOpts      []db.Option
	limits      db.Limits
	related     bool
	lemmatizer  lemma.Lemmatizer
	japanese    lemma.Lemmatizer
	logger      *logging.Logger
	stemWorkers int
}

// Option customises Open.
type Option func(*options)

// WithDBOptions passes options through to db.Open and db.OpenReadOnly.
func WithDBOptions(opts ...db.Option) Option {
	return func(o *options) { o.dbOpts = append(o.dbOpts, opts...) }
}

func WithLimits(l db.Limits) Option { return func(o *options) { o.limits = l } }

// WithRelatedWords toggles the per-stem count of other books on scoped
// listings. Enabled by default.
func WithRelatedWords(on bool) Option { return func(o *options) { o.related = on } }

// WithLemmatizer replaces the English lemmatizer used by the stemmer.
func WithLemmatizer(l lemma.Lemmatizer) Option { return func(o *options) { o.lemmatizer = l } }

// WithJapaneseLemmatizer fills empty stems of Japanese words after open and
// after every import.
func WithJapaneseLemmatizer(l lemma.Lemmatizer) Option {
	return func(o *options) { o.japanese = l }
}

func WithLogger(l *logging.Logger) Option { return func(o *options) { o.logger = l } }

// WithStemWorkers sets the number of concurrent stem-match lookups.
func WithStemWorkers(n int) Option { return func(o *options) { o.stemWorkers = n } }

// Session is safe for concurrent use. Every mutation and every book or word
// listing runs on one serial queue; stem matches run on a worker pool.
type Session struct {
	path    string
	opts    options
	log     *logging.Logger
	stemmer *stemmer.Stemmer

	queue      *scheduler.SerialQueue
	pool       *scheduler.WorkerPool
	poolCancel context.CancelFunc

	// store is only touched from the serial queue. It is nil while no store
	// file exists.
	store *db.Store

	mu          sync.Mutex
	wordsSeq    uint64
	cancelWords context.CancelFunc
}

// Open prepares a session on the store file at path. A missing file is not an
// error: the first Import copies the external dataset into place.
func Open(ctx context.Context, path string, opts ...Option) (*Session, error) {
	o := options{related: true, stemWorkers: 2}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.lemmatizer == nil {
		o.lemmatizer = lemma.Default()
	}

	s := &Session{
		path:    path,
		opts:    o,
		log:     o.logger.With("component", "session"),
		stemmer: stemmer.New(o.lemmatizer),
	}

	if _, err := os.Stat(path); err == nil {
		store, err := db.Open(path, o.dbOpts...)
		if err != nil {
			return nil, err
		}
		s.store = store
		if err := s.backfill(ctx); err != nil {
			s.log.Warn("stem backfill failed", "error", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &db.StoreError{Op: "stat", Err: err}
	}

	s.queue = scheduler.NewSerialQueue(16)
	s.pool = scheduler.NewWorkerPool(o.stemWorkers, o.stemWorkers*4)
	s.pool.OnError = func(err error) { s.log.Warn("stem match failed", "error", err) }
	var poolCtx context.Context
	poolCtx, s.poolCancel = context.WithCancel(context.Background())
	s.pool.Start(poolCtx)

	s.log.Debug("session opened", "path", path, "exists", s.store != nil)
	return s, nil
}

// Path returns the store file location.
func (s *Session) Path() string { return s.path }

// Close waits for queued work, then releases the store.
func (s *Session) Close() error {
	s.pool.Close()
	s.poolCancel()
	var err error
	_ = s.queue.Do(context.Background(), func(ctx context.Context) error {
		err = s.store.Close()
		s.store = nil
		return nil
	})
	s.queue.Close()
	return err
}

func (s *Session) backfill(ctx context.Context) error {
	if s.opts.japanese == nil || s.store == nil {
		return nil
	}
	var n int
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		n, err = db.BackfillStems(ctx, tx, "ja", s.opts.japanese.Lemma)
		return err
	})
	if err == nil && n > 0 {
		s.log.Info("filled japanese stems", "count", n)
	}
	return err
}

// ensureStore creates the store file on first write. Runs on the queue.
func (s *Session) ensureStore() error {
	if s.store != nil {
		return nil
	}
	store, err := db.Open(s.path, s.opts.dbOpts...)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// Books lists the logical books of the store.
func (s *Session) Books(ctx context.Context) ([]db.Book, error) {
	var books []db.Book
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if s.store == nil {
			return nil
		}
		var err error
		books, err = db.ListBooks(ctx, s.store.DB)
		return err
	})
	if isCanceled(err) {
		return nil, db.ErrCanceled
	}
	return books, err
}

// Words lists or searches words. Only the most recent call is live: starting
// a new one cancels the previous, which then returns db.ErrCanceled.
func (s *Session) Words(ctx context.Context, scope *db.BookScope, term string) ([]db.Word, error) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancelWords != nil {
		s.cancelWords()
	}
	s.wordsSeq++
	seq := s.wordsSeq
	s.cancelWords = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.wordsSeq == seq {
			s.cancelWords = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	q := db.WordQuery{
		Scope:      scope,
		Term:       term,
		Candidates: s.stemmer.Candidates(term),
		Related:    s.opts.related,
		Limits:     s.opts.limits,
	}
	var words []db.Word
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if s.store == nil {
			return nil
		}
		prefs, err := db.LoadPreferences(ctx, s.store.DB)
		if err != nil {
			return &db.QueryError{Query: "preferences", Err: err}
		}
		q.Preferences = prefs
		words, err = db.ListWords(ctx, s.store.DB, q)
		return err
	})
	if isCanceled(err) {
		s.log.Debug("word listing canceled", "term", term)
		return nil, db.ErrCanceled
	}
	if err != nil {
		return nil, err
	}
	return words, nil
}

// Usages lists the usages of one word in one book, newest first.
func (s *Session) Usages(ctx context.Context, wordID, bookID string) ([]db.Usage, error) {
	var usages []db.Usage
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if s.store == nil {
			return nil
		}
		var err error
		usages, err = db.ListUsages(ctx, s.store.DB, wordID, bookID)
		return err
	})
	if isCanceled(err) {
		return nil, db.ErrCanceled
	}
	return usages, err
}

// MatchStems returns the stems a stem-match lookup for w would use: its
// stored stem, else the stemmer candidates of its text.
func (s *Session) MatchStems(w db.Word) []string {
	if w.Stem != "" {
		return []string{w.Stem}
	}
	return s.stemmer.MatchStems(w.Text)
}

// StemMatches finds words elsewhere in the store sharing a stem with w. It
// runs on a worker pool with its own read-only connection and never fails:
// errors are logged and yield no matches.
func (s *Session) StemMatches(ctx context.Context, w db.Word, excludeBook bool) []db.Word {
	stems := s.MatchStems(w)
	if len(stems) == 0 || ctx.Err() != nil {
		return nil
	}
	type result struct {
		words []db.Word
		err   error
	}
	done := make(chan result, 1)
	err := s.pool.SubmitCtx(ctx, func(poolCtx context.Context) error {
		words, err := s.stemMatches(ctx, w, stems, excludeBook)
		done <- result{words, err}
		if errors.Is(err, db.ErrCanceled) {
			return nil
		}
		return err
	})
	if err != nil {
		s.log.Warn("stem match not scheduled", "word", w.ID, "error", err)
		return nil
	}
	select {
	case r := <-done:
		if r.err != nil {
			return nil
		}
		return r.words
	case <-ctx.Done():
		return nil
	}
}

func (s *Session) stemMatches(ctx context.Context, w db.Word, stems []string, excludeBook bool) ([]db.Word, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, nil
	}
	ro, err := db.OpenReadOnly(s.path, s.opts.dbOpts...)
	if err != nil {
		return nil, err
	}
	defer ro.Close()
	words, err := db.StemMatches(ctx, ro, w, stems, excludeBook)
	if err != nil {
		return nil, fmt.Errorf("stem matches for %s: %w", w.ID, err)
	}
	return words, nil
}

// SetStatus writes status to every row whose id is in ids. The write is
// never canceled once submitted, whatever happens to ctx.
func (s *Session) SetStatus(ctx context.Context, ids []string, status db.Status) error {
	if len(ids) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	return s.queue.Do(ctx, func(ctx context.Context) error {
		if s.store == nil {
			return nil
		}
		var n int64
		err := s.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			n, err = db.UpdateStatus(ctx, tx, ids, status)
			return err
		})
		if err != nil {
			return err
		}
		s.log.Debug("status written", "ids", len(ids), "rows", n, "status", status.String())
		return nil
	})
}

// SetPreferredUsage records text as the usage to display for wordID.
func (s *Session) SetPreferredUsage(ctx context.Context, wordID, text string) error {
	return s.queue.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.ensureStore(); err != nil {
			return err
		}
		return db.SetPreferredUsage(ctx, s.store.DB, wordID, text)
	})
}

// Preferences returns word id -> preferred usage text.
func (s *Session) Preferences(ctx context.Context) (map[string]string, error) {
	prefs := map[string]string{}
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if s.store == nil {
			return nil
		}
		var err error
		prefs, err = db.LoadPreferences(ctx, s.store.DB)
		return err
	})
	return prefs, err
}

// Import merges the dataset at externalPath into the store, or installs it
// as the store when none exists yet. It returns the number of words added.
func (s *Session) Import(ctx context.Context, externalPath string) (int, error) {
	var added int
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		store, n, err := db.Import(ctx, s.store, s.path, externalPath, s.opts.dbOpts...)
		s.store = store
		added = n
		if err != nil {
			return err
		}
		if err := s.backfill(ctx); err != nil {
			s.log.Warn("stem backfill failed", "error", err)
		}
		return nil
	})
	if err != nil {
		s.log.Error("import failed", "source", externalPath, "error", err)
		return added, err
	}
	s.log.Info("import finished", "source", externalPath, "added", added)
	return added, nil
}

// ClearAll deletes the store file. Preferences and settings go with it.
func (s *Session) ClearAll(ctx context.Context) error {
	return s.queue.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.store.Close(); err != nil {
			s.log.Warn("close before clear", "error", err)
		}
		s.store = nil
		if err := db.RemoveFiles(s.path); err != nil {
			return &db.StoreError{Op: "clear", Err: err}
		}
		s.log.Info("store cleared", "path", s.path)
		return nil
	})
}

// Setting reads a key from the settings table.
func (s *Session) Setting(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if s.store == nil {
			return nil
		}
		var err error
		value, ok, err = db.GetSetting(ctx, s.store.DB, key)
		return err
	})
	return value, ok, err
}

// SetSetting upserts a key in the settings table, creating the store if
// needed.
func (s *Session) SetSetting(ctx context.Context, key, value string) error {
	return s.queue.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.ensureStore(); err != nil {
			return err
		}
		return db.SetSetting(ctx, s.store.DB, key, value)
	})
}

// Word fetches one stored word by id.
func (s *Session) Word(ctx context.Context, id string) (db.Word, error) {
	var w db.Word
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		if s.store == nil {
			return sql.ErrNoRows
		}
		var err error
		w, err = db.GetWord(ctx, s.store.DB, id)
		return err
	})
	return w, err
}

func isCanceled(err error) bool {
	return errors.Is(err, db.ErrCanceled) || errors.Is(err, context.Canceled)
}
