// Package store caches compiled programs in SQLite, keyed by the digest of
// their source and compiler options.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/weft/vm"
)

var log = commonlog.GetLogger("weft.store")

// ErrNotFound indicates no program is cached under the requested digest.
var ErrNotFound = errors.New("program not found")

const schema = `CREATE TABLE IF NOT EXISTS programs (
	digest     TEXT PRIMARY KEY,
	build_id   TEXT NOT NULL,
	image      BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Store is a program cache backed by a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened program cache %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores prog under its SourceDigest, replacing any earlier entry.
func (s *Store) Put(ctx context.Context, prog *vm.CompiledProgram) error {
	if prog.SourceDigest == "" {
		return errors.New("program has no source digest")
	}
	image, err := vm.EncodeProgram(prog)
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO programs (digest, build_id, image, created_at) VALUES (?, ?, ?, ?)",
		prog.SourceDigest, prog.BuildID, image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	log.Debugf("cached %s (build %s, %d bytes)", prog.SourceDigest, prog.BuildID, len(image))
	return nil
}

// Get loads the program cached under digest. It returns ErrNotFound on a
// miss.
func (s *Store) Get(ctx context.Context, digest string) (*vm.CompiledProgram, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, "SELECT image FROM programs WHERE digest = ?", digest).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	prog, err := vm.DecodeProgram(image)
	if err != nil {
		return nil, fmt.Errorf("decoding cached program %s: %w", digest, err)
	}
	return prog, nil
}

// Delete removes the entry for digest. Deleting a missing entry is not an
// error.
func (s *Store) Delete(ctx context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM programs WHERE digest = ?", digest); err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	return nil
}

// Count returns the number of cached programs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}

// Compiler is the part of *compiler.Compiler the cache needs.
type Compiler interface {
	Digest(source string) string
	Compile(source string) (*vm.CompiledProgram, error)
}

// Load returns the cached program for source, compiling and caching it on
// a miss. The boolean reports a cache hit. A corrupt cache entry is
// replaced rather than returned as an error.
func (s *Store) Load(ctx context.Context, c Compiler, source string) (*vm.CompiledProgram, bool, error) {
	digest := c.Digest(source)
	prog, err := s.Get(ctx, digest)
	switch {
	case err == nil:
		return prog, true, nil
	case errors.Is(err, vm.ErrBadImage):
		log.Warningf("discarding unreadable cache entry %s: %s", digest, err)
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	prog, err = c.Compile(source)
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(ctx, prog); err != nil {
		return nil, false, err
	}
	return prog, false, nil
}
