package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/japaniel/vocabkeeper/pkg/db"
)

// UpdateKind identifies what an Update carries.
type UpdateKind int

const (
	BooksLoaded UpdateKind = iota
	WordsLoaded
	UsagesLoaded
	StemMatchesLoaded
	StatusWritten
	PreferenceWritten
	Imported
	Cleared
)

func (k UpdateKind) String() string {
	switch k {
	case BooksLoaded:
		return "books"
	case WordsLoaded:
		return "words"
	case UsagesLoaded:
		return "usages"
	case StemMatchesLoaded:
		return "stem-matches"
	case StatusWritten:
		return "status"
	case PreferenceWritten:
		return "preference"
	case Imported:
		return "import"
	case Cleared:
		return "clear"
	}
	return "unknown"
}

// Update is the result of one background request, delivered to the
// presentation goroutine and folded into the projection by Apply.
type Update struct {
	Kind  UpdateKind
	Seq   uint64
	Token uuid.UUID

	Books  []db.Book
	Words  []db.Word
	Usages []db.Usage
	Added  int

	WordID string
	Text   string
	Err    error

	// Status writes carry what is needed to roll the projection back.
	Status   db.Status
	Changes  UndoEntry
	UndoID   uint64
	FromUndo bool
}

// Projection is the presentation-side view of the store.
type Projection struct {
	Books       []db.Book
	Words       []db.Word
	Scope       *db.BookScope
	Term        string
	Usages      []db.Usage
	StemMatches []db.Word
	// LastAdded is the word count of the most recent successful import.
	LastAdded int
	// Err is the single user-facing error, cleared by DismissError.
	Err error
}

// StatusChange is one word's status before a change.
type StatusChange struct {
	WordID   string
	Previous db.Status
}

// UndoEntry reverts one SetStatus call.
type UndoEntry []StatusChange

type undoRecord struct {
	id    uint64
	entry UndoEntry
}

// Controller adapts a Session to a single presentation goroutine. Every
// method, including Apply, must be called from that goroutine; requests run
// in the background and report back through Updates.
type Controller struct {
	s       *Session
	ctx     context.Context
	updates chan Update
	pending int

	// Writes queue here without bound so the presentation goroutine never
	// blocks on a backlog it is the only one to drain.
	wmu     sync.Mutex
	wcond   *sync.Cond
	writes  []func() Update
	wclosed bool

	proj      Projection
	undo      []undoRecord
	undoSeq   uint64
	wordsSeq  uint64
	stemToken uuid.UUID
}

// NewController binds a controller to s. ctx bounds every background
// request.
func NewController(ctx context.Context, s *Session) *Controller {
	c := &Controller{
		s:       s,
		ctx:     ctx,
		updates: make(chan Update, 64),
	}
	c.wcond = sync.NewCond(&c.wmu)
	go c.writer()
	return c
}

// writer submits writes one at a time so that they reach the session in the
// order they were requested.
func (c *Controller) writer() {
	for {
		c.wmu.Lock()
		for len(c.writes) == 0 && !c.wclosed {
			c.wcond.Wait()
		}
		if len(c.writes) == 0 {
			c.wmu.Unlock()
			return
		}
		fn := c.writes[0]
		c.writes[0] = nil
		c.writes = c.writes[1:]
		c.wmu.Unlock()

		c.updates <- fn()
	}
}

// Close stops the write goroutine once queued writes are submitted. Call
// Settle first to observe their results. No request may follow Close.
func (c *Controller) Close() {
	c.wmu.Lock()
	c.wclosed = true
	c.wmu.Unlock()
	c.wcond.Broadcast()
}

// Updates delivers finished requests. Pass each one to Apply.
func (c *Controller) Updates() <-chan Update { return c.updates }

// Projection returns the current view. Slices are shared with the
// controller and must not be modified.
func (c *Controller) Projection() Projection { return c.proj }

// UndoDepth reports how many SetStatus calls can be undone.
func (c *Controller) UndoDepth() int { return len(c.undo) }

// Pending reports the number of requests whose updates have not been applied.
func (c *Controller) Pending() int { return c.pending }

func (c *Controller) spawn(fn func() Update) {
	c.pending++
	go func() { c.updates <- fn() }()
}

func (c *Controller) spawnWrite(fn func() Update) {
	c.pending++
	c.wmu.Lock()
	c.writes = append(c.writes, fn)
	c.wmu.Unlock()
	c.wcond.Signal()
}

// Settle applies updates until no request is outstanding, including the
// follow-up requests that Apply itself issues.
func (c *Controller) Settle(ctx context.Context) error {
	for c.pending > 0 {
		select {
		case u := <-c.updates:
			c.Apply(u)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Apply folds u into the projection. Stale word listings and stale stem
// matches are dropped.
func (c *Controller) Apply(u Update) {
	c.pending--
	switch u.Kind {
	case BooksLoaded:
		if u.Err != nil {
			c.proj.Books = nil
			c.fail(u.Err)
			return
		}
		c.proj.Books = u.Books

	case WordsLoaded:
		if u.Seq != c.wordsSeq || errors.Is(u.Err, db.ErrCanceled) {
			return
		}
		if u.Err != nil {
			c.proj.Words = nil
			c.fail(u.Err)
			return
		}
		c.proj.Words = u.Words

	case UsagesLoaded:
		if u.Err != nil && !errors.Is(u.Err, db.ErrCanceled) {
			c.fail(u.Err)
			return
		}
		c.proj.Usages = u.Usages

	case StemMatchesLoaded:
		if u.Token != c.stemToken {
			return
		}
		c.proj.StemMatches = u.Words

	case StatusWritten:
		if u.Err != nil {
			c.fail(u.Err)
			c.revertStatus(u)
		}
		// Mastered flags are derived, so books are reloaded either way.
		c.RequestBooks()

	case PreferenceWritten:
		if u.Err != nil {
			c.fail(u.Err)
			return
		}
		c.forEachWord(u.WordID, func(w *db.Word) { w.Usage = u.Text })

	case Imported:
		if u.Err != nil {
			c.fail(u.Err)
		} else {
			c.proj.LastAdded = u.Added
		}
		c.RequestBooks()
		c.RequestWords(c.proj.Scope, c.proj.Term)

	case Cleared:
		if u.Err != nil {
			c.fail(u.Err)
			return
		}
		c.proj = Projection{}
		c.undo = nil
		c.wordsSeq++
		c.stemToken = uuid.Nil
	}
}

func (c *Controller) fail(err error) {
	c.s.log.Warn("request failed", "error", err)
	c.proj.Err = err
}

// revertStatus undoes the optimistic projection of a status write that
// failed. Words changed again since then are left alone. The undo entry of
// the write is dropped, and a failed undo goes back on the stack.
func (c *Controller) revertStatus(u Update) {
	for _, ch := range u.Changes {
		c.forEachWord(ch.WordID, func(w *db.Word) {
			if w.Status == u.Status {
				w.Status = ch.Previous
			}
		})
	}
	if u.UndoID != 0 {
		for i := range c.undo {
			if c.undo[i].id == u.UndoID {
				c.undo = append(c.undo[:i], c.undo[i+1:]...)
				break
			}
		}
	}
	if u.FromUndo {
		redo := make(UndoEntry, len(u.Changes))
		for i, ch := range u.Changes {
			redo[i] = StatusChange{WordID: ch.WordID, Previous: u.Status}
		}
		c.pushUndo(redo)
	}
}

func (c *Controller) pushUndo(entry UndoEntry) uint64 {
	c.undoSeq++
	c.undo = append(c.undo, undoRecord{id: c.undoSeq, entry: entry})
	return c.undoSeq
}

// DismissError clears the user-facing error.
func (c *Controller) DismissError() { c.proj.Err = nil }

func (c *Controller) forEachWord(id string, fn func(w *db.Word)) {
	for i := range c.proj.Words {
		if c.proj.Words[i].ID == id {
			fn(&c.proj.Words[i])
		}
	}
	for i := range c.proj.StemMatches {
		if c.proj.StemMatches[i].ID == id {
			fn(&c.proj.StemMatches[i])
		}
	}
}

// statusOf returns the projected status of id, falling back to def.
func (c *Controller) statusOf(id string, def db.Status) db.Status {
	for _, list := range [][]db.Word{c.proj.Words, c.proj.StemMatches} {
		for _, w := range list {
			if w.ID == id {
				return w.Status
			}
		}
	}
	return def
}

// SetStatus sets status on every word sharing an id with words, in the
// projection at once and in the store in the background. With recordUndo the
// previous statuses are pushed on the undo stack.
func (c *Controller) SetStatus(words []db.Word, status db.Status, recordUndo bool) {
	c.setStatus(words, status, recordUndo, false)
}

func (c *Controller) setStatus(words []db.Word, status db.Status, recordUndo, fromUndo bool) {
	seen := make(map[string]bool, len(words))
	var ids []string
	var entry UndoEntry
	for _, w := range words {
		if w.ID == "" || seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		ids = append(ids, w.ID)
		entry = append(entry, StatusChange{WordID: w.ID, Previous: c.statusOf(w.ID, w.Status)})
	}
	if len(ids) == 0 {
		return
	}
	var undoID uint64
	if recordUndo {
		undoID = c.pushUndo(entry)
	}
	for _, id := range ids {
		c.forEachWord(id, func(w *db.Word) { w.Status = status })
	}
	c.spawnWrite(func() Update {
		return Update{
			Kind:     StatusWritten,
			Err:      c.s.SetStatus(c.ctx, ids, status),
			Status:   status,
			Changes:  entry,
			UndoID:   undoID,
			FromUndo: fromUndo,
		}
	})
}

// Undo reverts the most recent recorded SetStatus. It reports false when
// there is nothing to undo.
func (c *Controller) Undo() bool {
	if len(c.undo) == 0 {
		return false
	}
	entry := c.undo[len(c.undo)-1].entry
	c.undo = c.undo[:len(c.undo)-1]

	groups := map[db.Status][]db.Word{}
	var order []db.Status
	for _, ch := range entry {
		if _, ok := groups[ch.Previous]; !ok {
			order = append(order, ch.Previous)
		}
		groups[ch.Previous] = append(groups[ch.Previous], db.Word{ID: ch.WordID, Status: ch.Previous})
	}
	for _, st := range order {
		c.setStatus(groups[st], st, false, true)
	}
	return true
}

// SetPreferredUsage stores text as the displayed usage of w.
func (c *Controller) SetPreferredUsage(w db.Word, text string) {
	id := w.ID
	c.spawnWrite(func() Update {
		err := c.s.SetPreferredUsage(c.ctx, id, text)
		return Update{Kind: PreferenceWritten, WordID: id, Text: text, Err: err}
	})
}

// RequestBooks reloads the book list.
func (c *Controller) RequestBooks() {
	c.spawn(func() Update {
		books, err := c.s.Books(c.ctx)
		return Update{Kind: BooksLoaded, Books: books, Err: err}
	})
}

// RequestWords loads the word listing for scope and term. Only the latest
// request's result is applied.
func (c *Controller) RequestWords(scope *db.BookScope, term string) {
	c.wordsSeq++
	seq := c.wordsSeq
	c.proj.Scope = scope
	c.proj.Term = term
	c.spawn(func() Update {
		words, err := c.s.Words(c.ctx, scope, term)
		return Update{Kind: WordsLoaded, Seq: seq, Words: words, Err: err}
	})
}

// RequestUsages loads every usage of w in its book.
func (c *Controller) RequestUsages(w db.Word) {
	c.spawn(func() Update {
		usages, err := c.s.Usages(c.ctx, w.ID, w.BookID)
		return Update{Kind: UsagesLoaded, Usages: usages, Err: err}
	})
}

// RequestStemMatches looks up words sharing a stem with w. A later request
// supersedes this one, and its result is dropped on arrival.
func (c *Controller) RequestStemMatches(w db.Word, excludeBook bool) uuid.UUID {
	token := uuid.New()
	c.stemToken = token
	c.spawn(func() Update {
		return Update{Kind: StemMatchesLoaded, Token: token, Words: c.s.StemMatches(c.ctx, w, excludeBook)}
	})
	return token
}

// Import merges the dataset at path, then reloads books and words.
func (c *Controller) Import(path string) {
	c.spawnWrite(func() Update {
		added, err := c.s.Import(c.ctx, path)
		return Update{Kind: Imported, Added: added, Err: err}
	})
}

// ClearAll deletes the store and resets the projection and undo history.
func (c *Controller) ClearAll() {
	c.spawnWrite(func() Update {
		return Update{Kind: Cleared, Err: c.s.ClearAll(c.ctx)}
	})
}
