package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// storeCtx is the shared context handed to every repository: the database
// handle plus id generation, clock, and JSON helpers. Repositories compose
// it instead of inheriting from a base type.
type storeCtx struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Store owns the SQLite database and exposes one repository per entity.
type Store struct {
	ctx  *storeCtx
	path string

	Spaces    *SpaceRepo
	Memories  *MemoryRepo
	Chunks    *ChunkRepo
	Vectors   *EmbeddingRepo
	Jobs      *JobRepo
	Content   *ContentRepo
	Platform  *PlatformRepo
	DeepLinks *DeepLinkRepo
	Tags      *TagRepo
}

// Options tunes store construction.
type Options struct {
	// CacheMB is the SQLite page cache size in MB (default: 64).
	CacheMB int
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
	// IDGen overrides uuid generation, for tests.
	IDGen func() string
}

// Open opens (creating if needed) the database at path and applies forward
// migrations. An empty path opens an in-memory database for testing.
func Open(path string, opts Options) (*Store, error) {
	if opts.CacheMB <= 0 {
		opts.CacheMB = 64
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.IDGen == nil {
		opts.IDGen = func() string { return uuid.NewString() }
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, spiralerr.StoreError(fmt.Sprintf("failed to create database directory for %s", path), err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, spiralerr.StoreError("failed to open database", err)
	}

	// Single writer connection prevents lock contention under WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite; set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", opts.CacheMB*1024),
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, spiralerr.StoreError("failed to set pragma", err)
		}
	}

	sctx := &storeCtx{db: db, now: opts.Clock, newID: opts.IDGen}
	s := &Store{
		ctx:       sctx,
		path:      path,
		Spaces:    &SpaceRepo{sctx},
		Memories:  &MemoryRepo{sctx},
		Chunks:    &ChunkRepo{sctx},
		Vectors:   &EmbeddingRepo{sctx},
		Jobs:      &JobRepo{sctx},
		Content:   &ContentRepo{sctx},
		Platform:  &PlatformRepo{sctx},
		DeepLinks: &DeepLinkRepo{sctx},
		Tags:      &TagRepo{sctx},
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies forward migrations, serialized across processes by a lock
// file beside the database.
func (s *Store) migrate() error {
	var release func()
	if s.path != "" {
		lock := flock.New(s.path + ".lock")
		if err := lock.Lock(); err != nil {
			return spiralerr.Wrap(err, spiralerr.ErrCodeMigration, "failed to acquire migration lock")
		}
		release = func() { _ = lock.Unlock() }
		defer release()
	}

	if _, err := s.ctx.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return spiralerr.Wrap(err, spiralerr.ErrCodeMigration, "failed to create schema_version")
	}

	var current int
	if err := s.ctx.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return spiralerr.Wrap(err, spiralerr.ErrCodeMigration, "failed to read schema version")
	}

	for i, migration := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := s.ctx.db.Begin()
		if err != nil {
			return spiralerr.Wrap(err, spiralerr.ErrCodeMigration, "failed to begin migration transaction")
		}
		if _, err := tx.Exec(migration); err != nil {
			_ = tx.Rollback()
			return spiralerr.Wrap(err, spiralerr.ErrCodeMigration,
				fmt.Sprintf("migration %d failed", version))
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			_ = tx.Rollback()
			return spiralerr.Wrap(err, spiralerr.ErrCodeMigration,
				fmt.Sprintf("failed to record migration %d", version))
		}
		if err := tx.Commit(); err != nil {
			return spiralerr.Wrap(err, spiralerr.ErrCodeMigration,
				fmt.Sprintf("failed to commit migration %d", version))
		}
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.ctx.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.ctx.db.Close()
}

// DB exposes the raw handle for stats queries.
func (s *Store) DB() *sql.DB { return s.ctx.db }

// Path returns the database file path ("" for in-memory).
func (s *Store) Path() string { return s.path }

// marshalMeta serializes a metadata map to JSON, "{}" for nil.
func marshalMeta(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", spiralerr.StoreError("failed to marshal metadata", err)
	}
	return string(data), nil
}

// unmarshalMeta deserializes a JSON metadata column, tolerating empties.
func unmarshalMeta(raw string) map[string]any {
	if raw == "" || raw == "{}" || raw == "null" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// nullTime converts a *time.Time to a driver-friendly value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// scanTime parses a nullable RFC3339 column.
func scanTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// fmtTime formats a time for storage.
func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// parseTime parses a stored timestamp, zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
