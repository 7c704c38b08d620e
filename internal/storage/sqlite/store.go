// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	// Import SQLite driver
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/brmkit/brm/internal/storage"
)

// Verify Store implements storage.Store at compile time
var _ storage.Store = (*Store)(nil)

// Store implements the storage.Store interface using SQLite
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool // Tracks whether Close() has been called

	// Column mappings shipped later than the rest of the schema; databases
	// restored from old dumps may not have the table. Probed once per store.
	colMapOnce  sync.Once
	colMapAvail bool
}

// setupWASMCache configures WASM compilation caching to reduce SQLite startup
// time. The embedded SQLite build is a WASM module; without a cache every
// process start pays a few hundred milliseconds of JIT compilation.
//
// Cache behavior:
//   - Location: ~/.cache/brm/wasm/ (platform-specific via os.UserCacheDir)
//   - Version management: wazero automatically keys cache by its version
//   - Fallback: in-memory cache if filesystem cache creation fails
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "brm", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}

	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)

	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// New creates a new SQLite storage backend at path.
//
// ":memory:" opens a private in-memory database (used by tests); anything
// else is treated as a filesystem path and opened in WAL mode.
func New(ctx context.Context, path string) (*Store, error) {
	// Build connection string with proper URI syntax.
	// For :memory: databases, use shared cache so multiple connections see the same data.
	var connStr string
	if path == ":memory:" {
		// WAL mode doesn't work with in-memory databases, so use DELETE mode.
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		// Already a URI. Append our pragmas if not present.
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases are isolated per connection by default. Force a
	// single connection so every query sees the same data.
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// SQLite WAL mode supports 1 writer + unlimited readers. Limit the
		// pool to prevent goroutine pile-up on write lock contention when the
		// scheduler and CLI share a database.
		maxConns := runtime.NumCPU() + 1
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0) // SQLite doesn't need connection recycling
	}

	// For file-based databases, enable WAL mode once after opening.
	if !isInMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := ensureSchemaVersion(ctx, db); err != nil {
		return nil, err
	}

	// Convert to absolute path for consistency (but keep :memory: as-is)
	absPath := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		absPath, err = filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	return &Store{db: db, dbPath: absPath}, nil
}

// schemaVersion is bumped when the table set changes shape.
const schemaVersion = "1"

func ensureSchemaVersion(ctx context.Context, db *sql.DB) error {
	var current string
	err := db.QueryRowContext(ctx, `SELECT VALUE FROM BRM_CONFIG WHERE KEY = ?`, "schema_version").Scan(&current)
	if err == sql.ErrNoRows {
		_, err = db.ExecContext(ctx, `INSERT INTO BRM_CONFIG (KEY, VALUE) VALUES (?, ?)`, "schema_version", schemaVersion)
		if err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current != schemaVersion {
		return fmt.Errorf("database schema version %s is not supported (want %s)", current, schemaVersion)
	}
	return nil
}

// Close closes the database connection.
// It checkpoints the WAL to ensure all writes are flushed to the main
// database file; without this, writes may be stranded in the WAL and lost
// between CLI invocations.
func (s *Store) Close() error {
	s.closed.Store(true)
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Path returns the absolute path to the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// IsClosed returns true if Close() has been called on this store.
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

// UnderlyingDB returns the underlying *sql.DB connection.
//
// The executor uses it as the default target for rule SQL when no external
// target database is configured, so that rules operating on tables created
// alongside the metadata work out of the box.
//
// Do not call Close() on the returned handle; the Store owns the connection
// lifecycle. Keep write transactions short: SQLite has a single-writer lock
// even in WAL mode.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// columnMappingsAvailable reports whether the BRM_COLUMN_MAPPINGS table
// exists. Readers degrade to the empty set when it does not.
func (s *Store) columnMappingsAvailable(ctx context.Context) bool {
	s.colMapOnce.Do(func() {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'BRM_COLUMN_MAPPINGS'`).Scan(&n)
		s.colMapAvail = err == nil && n > 0
	})
	return s.colMapAvail
}
