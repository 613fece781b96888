package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/nostrcache/internal/diag"
)

//go:embed schema.sql
var schemaSQL string

// Options configures Open.
type Options struct {
	// Path is the SQLite file. Ignored when InMemory is set.
	Path string

	// InMemory opens an ephemeral store that disappears on Close.
	InMemory bool

	// Erase drops any existing data before opening, regardless of the marker.
	Erase bool

	// Marker overrides where the schema version marker lives. Defaults to a
	// FileMarker next to Path, or a MemoryMarker at RequiredVersion for
	// in-memory stores.
	Marker VersionMarker

	Logger   *slog.Logger
	Reporter diag.Reporter
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Reporter == nil {
		o.Reporter = diag.Nop()
	}
	if o.Marker == nil {
		if o.InMemory {
			o.Marker = NewMemoryMarker(RequiredVersion)
		} else {
			o.Marker = NewFileMarker(filepath.Join(filepath.Dir(o.Path), DefaultMarkerFile))
		}
	}
	return o
}

// Store owns the physical backing file. All mutation goes through Commit;
// Destroy is the only operation that touches the file directly.
type Store struct {
	mu       sync.RWMutex // guards db
	db       *sql.DB
	path     string
	inMemory bool
	marker   VersionMarker
	logger   *slog.Logger
	reporter diag.Reporter

	// writeMu is the single-writer gate. Commits and their notifications
	// happen under it, which gives every commit a global order.
	writeMu sync.Mutex
	seq     int64
}

// Path returns the database file path, or "" for in-memory stores.
func (s *Store) Path() string {
	if s.inMemory {
		return ""
	}
	return s.path
}

// InMemory reports whether the store is ephemeral.
func (s *Store) InMemory() bool { return s.inMemory }

// Marker returns the schema version marker the store was opened with.
func (s *Store) Marker() VersionMarker { return s.marker }

// openDB attaches to the SQLite file (or memory database) and applies the schema.
func openDB(opts Options) (*Store, error) {
	var dsn string
	if opts.InMemory {
		dsn = fmt.Sprintf("file:nostrcache-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	} else {
		if opts.Path == "" {
			return nil, fatal("open", "", errors.New("no database path configured"))
		}
		dsn = opts.Path + "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fatal("open", opts.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fatal("open", opts.Path, err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// lives only as long as a connection to it is open.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db, opts.InMemory); err != nil {
		db.Close()
		return nil, fatal("open", opts.Path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fatal("open", opts.Path, fmt.Errorf("apply schema: %w", err))
	}

	return &Store{
		db:       db,
		path:     opts.Path,
		inMemory: opts.InMemory,
		marker:   opts.Marker,
		logger:   opts.Logger,
		reporter: opts.Reporter,
	}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, inMemory bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !inMemory {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// conn returns the open database or a CLOSED error.
func (s *Store) conn(op string) (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, closedErr(op)
	}
	return s.db, nil
}

// Close closes the database connection. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Destroy closes the store and deletes its backing files. The store cannot
// be used afterwards. Irreversible.
func (s *Store) Destroy() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.Close(); err != nil {
		return fatal("destroy", s.path, err)
	}
	if !s.inMemory {
		if err := destroyFiles(s.path); err != nil {
			return fatal("destroy", s.path, err)
		}
	}

	s.logger.Warn("destroyed persistent store", "path", s.Path(), "in_memory", s.inMemory)
	s.reporter.Report(diag.Warn(diag.KindDestructiveReset, "persistent store destroyed", map[string]string{"path": s.Path()}))
	diag.RecordDestroy()
	return nil
}

// destroyFiles removes a SQLite database and its side files.
func destroyFiles(path string) error {
	if path == "" {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	db, err := s.conn("pragma")
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
