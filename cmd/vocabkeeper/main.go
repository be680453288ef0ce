package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/vocabkeeper/pkg/config"
	"github.com/japaniel/vocabkeeper/pkg/db"
	"github.com/japaniel/vocabkeeper/pkg/lemma"
	"github.com/japaniel/vocabkeeper/pkg/logging"
	"github.com/japaniel/vocabkeeper/pkg/session"
)

func main() {
	_ = godotenv.Load()

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

type cliFlags struct {
	configPath string
	dbPath     string
	driver     string
	importPath string
	clear      bool
	books      bool
	words      bool
	book       string
	search     string
	status     string
	ids        string
	usages     bool
	stems      bool
	prompt     string
}

func parseFlags(args []string, out io.Writer) (*cliFlags, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("vocabkeeper", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&f.configPath, "config", "", "Path to YAML config file (optional; uses ~/.config/vocabkeeper/config.yaml if not provided)")
	fs.StringVar(&f.dbPath, "db", "", "Path to the vocabulary store (overrides config)")
	fs.StringVar(&f.driver, "driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	fs.StringVar(&f.importPath, "import", "", "Device vocabulary database to import")
	fs.BoolVar(&f.clear, "clear", false, "Delete the store and start over")
	fs.BoolVar(&f.books, "books", false, "List books")
	fs.BoolVar(&f.words, "words", false, "List words (see -book and -search)")
	fs.StringVar(&f.book, "book", "", "Restrict -words to the book with this title")
	fs.StringVar(&f.search, "search", "", "Search term for -words")
	fs.StringVar(&f.status, "status", "", "Set status (learning, mastered, ignored) of the words in -ids")
	fs.StringVar(&f.ids, "ids", "", "Comma-separated word ids for -status")
	fs.BoolVar(&f.usages, "usages", false, "Print every usage of each listed word")
	fs.BoolVar(&f.stems, "stems", false, "Print words from other books sharing a stem with each listed word")
	fs.StringVar(&f.prompt, "prompt", "", "Store a custom generation prompt")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.search != "" || f.book != "" {
		f.words = true
	}
	return f, nil
}

func loadConfig(f *cliFlags) (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	if f.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(f.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.driver != "" {
		cfg.Database.Driver = f.driver
	}
	return cfg, nil
}

// sessionOptions assembles the session from configuration.
func sessionOptions(cfg *config.AppConfig, logger *logging.Logger) ([]session.Option, error) {
	dbOpts := []db.Option{db.WithDriver(cfg.Database.Driver), db.WithBusyTimeout(cfg.Database.BusyTimeoutMS)}
	if cfg.Database.WAL {
		dbOpts = append(dbOpts, db.WithWAL())
	}

	lem := lemma.Default()
	if cfg.Lemma.Irregulars != "" {
		entries, err := lemma.LoadIrregulars(cfg.Lemma.Irregulars)
		if err != nil {
			return nil, fmt.Errorf("failed to load irregular forms: %w", err)
		}
		irregulars := lemma.DefaultIrregulars()
		irregulars.Add(entries)
		lem = lemma.Chain{irregulars, lemma.Snowball{}}
		logger.Debug("irregular forms loaded", "path", cfg.Lemma.Irregulars, "forms", irregulars.Len())
	}

	opts := []session.Option{
		session.WithDBOptions(dbOpts...),
		session.WithLimits(db.Limits{
			ShortTerm: cfg.Search.ShortTermLimit,
			Term:      cfg.Search.TermLimit,
			Listing:   cfg.Search.ListingLimit,
		}),
		session.WithRelatedWords(cfg.Search.RelatedWords),
		session.WithLemmatizer(lem),
		session.WithStemWorkers(cfg.Workers.StemMatch),
		session.WithLogger(logger),
	}
	if cfg.Lemma.Japanese {
		k, err := lemma.NewKagome()
		if err != nil {
			return nil, fmt.Errorf("failed to create japanese tokenizer: %w", err)
		}
		opts = append(opts, session.WithJapaneseLemmatizer(k))
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	f, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	opts, err := sessionOptions(cfg, logger)
	if err != nil {
		return err
	}
	s, err := session.Open(ctx, cfg.Database.Path, opts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	c := session.NewController(ctx, s)
	defer c.Close()

	settle := func() error {
		if err := c.Settle(ctx); err != nil {
			return err
		}
		return c.Projection().Err
	}

	if f.clear {
		c.ClearAll()
		if err := settle(); err != nil {
			return fmt.Errorf("clear failed: %w", err)
		}
		fmt.Fprintf(out, "Cleared %s\n", cfg.Database.Path)
	}

	if f.importPath != "" {
		c.Import(f.importPath)
		if err := settle(); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Fprintf(out, "Imported %d new words from %s\n", c.Projection().LastAdded, f.importPath)
	}

	if f.prompt != "" {
		if err := s.SetSetting(ctx, db.CustomPromptKey, f.prompt); err != nil {
			return fmt.Errorf("failed to store prompt: %w", err)
		}
		fmt.Fprintln(out, "Custom prompt saved.")
	}

	if f.status != "" {
		if err := setStatus(ctx, s, c, f, out); err != nil {
			return err
		}
		if err := settle(); err != nil {
			return fmt.Errorf("status update failed: %w", err)
		}
	}

	if f.books || f.book != "" {
		c.RequestBooks()
		if err := settle(); err != nil {
			return fmt.Errorf("failed to list books: %w", err)
		}
	}
	if f.books {
		printBooks(out, c.Projection().Books)
	}

	if !f.words {
		return nil
	}
	var scope *db.BookScope
	if f.book != "" {
		b, ok := findBook(c.Projection().Books, f.book)
		if !ok {
			return fmt.Errorf("no book titled %q", f.book)
		}
		scope = b.Scope()
	}
	c.RequestWords(scope, f.search)
	if err := settle(); err != nil {
		return fmt.Errorf("failed to list words: %w", err)
	}
	words := c.Projection().Words
	printWords(out, words)

	if f.usages {
		for _, w := range words {
			c.RequestUsages(w)
			if err := settle(); err != nil {
				return fmt.Errorf("failed to list usages: %w", err)
			}
			fmt.Fprintf(out, "\n%s:\n", w.Text)
			for _, u := range c.Projection().Usages {
				fmt.Fprintf(out, "  %s  %s\n", u.Timestamp.Format("2006-01-02"), u.Text)
			}
		}
	}

	if f.stems {
		matches, err := stemMatches(ctx, s, words, cfg.Workers.StemMatch)
		if err != nil {
			return err
		}
		for i, w := range words {
			if len(matches[i]) == 0 {
				continue
			}
			fmt.Fprintf(out, "\n%s also appears as:\n", w.Text)
			printWords(out, matches[i])
		}
	}
	return nil
}

// setStatus applies -status to -ids through the controller so the change
// goes through the same path as interactive edits.
func setStatus(ctx context.Context, s *session.Session, c *session.Controller, f *cliFlags, out io.Writer) error {
	status, ok := db.ParseStatus(strings.ToLower(strings.TrimSpace(f.status)))
	if !ok {
		return fmt.Errorf("unknown status %q", f.status)
	}
	var words []db.Word
	for _, id := range strings.Split(f.ids, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		w, err := s.Word(ctx, id)
		if err != nil {
			return fmt.Errorf("word %q: %w", id, err)
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return errors.New("-status needs -ids")
	}
	c.SetStatus(words, status, true)
	fmt.Fprintf(out, "Marked %d words as %s\n", len(words), status)
	return nil
}

// stemMatches looks up related words for every listed word, at most limit
// at a time. Results are index-aligned with words.
func stemMatches(ctx context.Context, s *session.Session, words []db.Word, limit int) ([][]db.Word, error) {
	if limit < 1 {
		limit = 1
	}
	out := make([][]db.Word, len(words))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, w := range words {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			out[i] = s.StemMatches(gctx, w, true)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func findBook(books []db.Book, title string) (db.Book, bool) {
	for _, b := range books {
		if strings.EqualFold(b.Title, title) {
			return b, true
		}
	}
	return db.Book{}, false
}

func printBooks(out io.Writer, books []db.Book) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tAUTHORS\tWORDS\tMASTERED")
	for _, b := range books {
		mastered := ""
		if b.IsMastered {
			mastered = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.Title, b.Authors, b.WordCount, mastered)
	}
	tw.Flush()
}

func printWords(out io.Writer, words []db.Word) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORD\tSTATUS\tUSES\tOTHER BOOKS\tUSAGE")
	for _, w := range words {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", w.ID, w.Text, w.Status, w.UsageCount, w.StemOtherBookCount, w.Usage)
	}
	tw.Flush()
}
