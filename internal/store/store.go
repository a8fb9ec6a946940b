// Package store is the durable layer: a single SQLite database per project
// holding the nodes, edges, analysis_cache, global_symbols and files tables.
// All statements, reads and writes alike, run one at a time on a single
// pooled connection, so reads do not run concurrently with each other or
// with a write transaction. Close checkpoints the log into the main file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/types"
)

// schemaVersion is stamped into PRAGMA user_version; a database written by a
// different version refuses to open.
const schemaVersion = 1

// Config controls journaling and page cache size.
type Config struct {
	WALEnabled bool
	CachePages int
}

// Store wraps one open database. Methods are safe for concurrent use; write
// transactions serialize internally.
type Store struct {
	db   *sql.DB
	path string

	// openTx counts write transactions currently in flight, for the
	// diagnostics surface.
	openTx atomic.Int64
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS nodes (
  project_id     TEXT    NOT NULL,
  node_id        INTEGER NOT NULL,
  file_path      TEXT    NOT NULL,
  symbol         TEXT    NOT NULL,
  kind           INTEGER NOT NULL,
  language       TEXT    NOT NULL,
  signature_blob BLOB,
  complexity     REAL    NOT NULL,
  content_hash   TEXT    NOT NULL,
  embedding_blob BLOB,
  created_at     INTEGER NOT NULL,
  updated_at     INTEGER NOT NULL,
  PRIMARY KEY (project_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(project_id, file_path);
CREATE INDEX IF NOT EXISTS idx_nodes_symbol ON nodes(project_id, symbol);

CREATE TABLE IF NOT EXISTS edges (
  project_id TEXT    NOT NULL,
  from_node  INTEGER NOT NULL,
  to_node    INTEGER NOT NULL,
  kind       INTEGER NOT NULL,
  meta_blob  BLOB,
  PRIMARY KEY (project_id, from_node, to_node, kind)
);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(project_id, to_node);

CREATE TABLE IF NOT EXISTS analysis_cache (
  content_hash  TEXT PRIMARY KEY,
  artifact_blob BLOB NOT NULL,
  size_bytes    INTEGER NOT NULL,
  inserted_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS global_symbols (
  global_id      TEXT PRIMARY KEY,
  project_id     TEXT NOT NULL,
  symbol         TEXT NOT NULL,
  signature_hash TEXT NOT NULL,
  visibility     TEXT NOT NULL,
  node_id        INTEGER NOT NULL,
  indexed_at     INTEGER NOT NULL,
  UNIQUE (project_id, symbol, signature_hash)
);

CREATE TABLE IF NOT EXISTS files (
  project_id   TEXT NOT NULL,
  path         TEXT NOT NULL,
  size_bytes   INTEGER NOT NULL,
  mtime_ns     INTEGER NOT NULL,
  content_hash TEXT NOT NULL,
  PRIMARY KEY (project_id, path)
);
`

// Open opens (creating if needed) the database at path and verifies its
// integrity and schema version.
func Open(path string, cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, lcierr.NewIoError("create store directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, lcierr.NewIoError("open store", err)
	}
	// The modernc driver serializes writes per connection; one writer
	// connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.init(cfg); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(cfg Config) error {
	journal := "DELETE"
	if cfg.WALEnabled {
		journal = "WAL"
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s", journal),
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	if cfg.CachePages > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size=%d", cfg.CachePages))
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return lcierr.NewIoError("apply pragma", err)
		}
	}

	var check string
	if err := s.db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil || check != "ok" {
		return lcierr.NewCorruptionError(s.path)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return lcierr.NewIoError("read schema version", err)
	}
	switch version {
	case 0:
		if _, err := s.db.Exec(schemaDDL); err != nil {
			return lcierr.NewIoError("create schema", err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return lcierr.NewIoError("stamp schema version", err)
		}
	case schemaVersion:
		// Migration-on-open keeps idempotency for partially created schemas.
		if _, err := s.db.Exec(schemaDDL); err != nil {
			return lcierr.NewIoError("verify schema", err)
		}
	default:
		return lcierr.NewSchemaMismatchError(schemaVersion, version)
	}
	return nil
}

const (
	busyRetries  = 5
	busyBaseWait = 10 * time.Millisecond
)

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// WithTx runs fn in a single write transaction, retrying writer contention
// with bounded exponential backoff before surfacing Busy.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	wait := busyBaseWait
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt >= busyRetries {
			return lcierr.NewBusyError("write transaction")
		}
		select {
		case <-ctx.Done():
			return lcierr.ErrCancelled
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	s.openTx.Add(1)
	defer s.openTx.Add(-1)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// OpenTransactions reports how many write transactions are in flight.
func (s *Store) OpenTransactions() int {
	return int(s.openTx.Load())
}

// Checkpoint materializes the write-ahead log into the main database file.
func (s *Store) Checkpoint() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return lcierr.NewIoError("checkpoint", err)
	}
	return nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	if err := s.Checkpoint(); err != nil {
		s.db.Close()
		return err
	}
	if err := s.db.Close(); err != nil {
		return lcierr.NewIoError("close store", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// ---- analysis_cache ----

// PutArtifact stores or replaces a cache artifact keyed by content hash.
func (s *Store) PutArtifact(ctx context.Context, hash types.ContentHash, artifact []byte) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO analysis_cache (content_hash, artifact_blob, size_bytes, inserted_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(content_hash) DO UPDATE SET
				artifact_blob = excluded.artifact_blob,
				size_bytes    = excluded.size_bytes,
				inserted_at   = excluded.inserted_at`,
			hash.ToHex(), artifact, len(artifact), time.Now().UnixNano())
		return err
	})
}

// GetArtifact loads a cache artifact; ok is false on a miss.
func (s *Store) GetArtifact(ctx context.Context, hash types.ContentHash) (artifact []byte, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT artifact_blob FROM analysis_cache WHERE content_hash = ?", hash.ToHex()).
		Scan(&artifact)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, lcierr.NewIoError("read artifact", err)
	}
	return artifact, true, nil
}

// DeleteArtifactsBefore purges artifacts inserted before cutoff and returns
// how many rows went away.
func (s *Store) DeleteArtifactsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM analysis_cache WHERE inserted_at < ?", cutoff.UnixNano())
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

// ArtifactCount returns the number of cached artifacts.
func (s *Store) ArtifactCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_cache").Scan(&n); err != nil {
		return 0, lcierr.NewIoError("count artifacts", err)
	}
	return n, nil
}

// ---- files (incremental snapshot) ----

// FileSnapshot records what a file looked like when last indexed.
type FileSnapshot struct {
	Path        string
	SizeBytes   int64
	MtimeNanos  int64
	ContentHash types.ContentHash
}

// PutFileSnapshots upserts the per-file snapshots inside tx (callers batch
// them with the node writes).
func PutFileSnapshots(ctx context.Context, tx *sql.Tx, project types.ProjectID, snaps []FileSnapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (project_id, path, size_bytes, mtime_ns, content_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			size_bytes   = excluded.size_bytes,
			mtime_ns     = excluded.mtime_ns,
			content_hash = excluded.content_hash`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx, string(project), snap.Path, snap.SizeBytes, snap.MtimeNanos, snap.ContentHash.ToHex()); err != nil {
			return err
		}
	}
	return nil
}

// FileSnapshots loads every snapshot for a project keyed by path.
func (s *Store) FileSnapshots(ctx context.Context, project types.ProjectID) (map[string]FileSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, size_bytes, mtime_ns, content_hash FROM files WHERE project_id = ?", string(project))
	if err != nil {
		return nil, lcierr.NewIoError("read file snapshots", err)
	}
	defer rows.Close()

	snaps := make(map[string]FileSnapshot)
	for rows.Next() {
		var snap FileSnapshot
		var hex string
		if err := rows.Scan(&snap.Path, &snap.SizeBytes, &snap.MtimeNanos, &hex); err != nil {
			return nil, lcierr.NewIoError("scan file snapshot", err)
		}
		if snap.ContentHash, err = types.ContentHashFromHex(hex); err != nil {
			return nil, err
		}
		snaps[snap.Path] = snap
	}
	return snaps, rows.Err()
}

// DeleteFileSnapshot drops one file's snapshot inside tx.
func DeleteFileSnapshot(ctx context.Context, tx *sql.Tx, project types.ProjectID, path string) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM files WHERE project_id = ? AND path = ?", string(project), path)
	return err
}
