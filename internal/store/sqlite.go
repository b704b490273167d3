package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/rerr"
)

const schemaVersion = "1"

// relational is the SQLite-backed half of the Store: the chunks table
// plus the meta key-value table (spec §4.2's "Schemas (logical)").
type relational struct {
	db *sql.DB
}

func openRelational(path string) (*relational, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, rerr.IoErr("create store directory", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rerr.IoErr("open store database", err)
	}

	// One writer, per spec §4.2's "Store assumes exclusive write access".
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, rerr.IoErr("set pragma", err)
		}
	}

	r := &relational{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// openRelationalReadOnly opens path with a read-only connection (the
// same `?mode=ro` DSN form the stdlib sqlite driver honors) and skips
// both migration and embedder_id backfill: a read-only handle must not
// create tables or write meta rows, so a store that does not already
// exist on disk is reported rather than silently created.
func openRelationalReadOnly(path string) (*relational, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, rerr.IoErr("open store database read-only", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, rerr.IoErr("open store database read-only", err)
	}

	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, rerr.IoErr("set pragma", err)
	}

	return &relational{db: db}, nil
}

func (r *relational) migrate() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id          INTEGER PRIMARY KEY,
	file_path   TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	parent_name TEXT NOT NULL DEFAULT '',
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	text        TEXT NOT NULL,
	hash        INTEGER NOT NULL,
	embedding   BLOB NOT NULL,
	UNIQUE(file_path, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);
`)
	if err != nil {
		return rerr.IoErr("migrate schema", err)
	}
	return nil
}

// verifyEmbedderID checks meta.embedder_id against want, setting it on
// first open. A mismatch with an already recorded embedder_id is
// IncompatibleIndex whether or not the store holds any chunks (spec §4.2
// "Schema versioning").
func (r *relational) verifyEmbedderID(ctx context.Context, want string) error {
	var got string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'embedder_id'`).Scan(&got)
	switch {
	case err == sql.ErrNoRows:
		_, err := r.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES ('embedder_id', ?), ('schema_version', ?)`, want, schemaVersion)
		if err != nil {
			return rerr.IoErr("write embedder_id", err)
		}
		return nil
	case err != nil:
		return rerr.IoErr("read embedder_id", err)
	case got != want:
		return rerr.IncompatibleIndex(fmt.Sprintf("store was built with embedder %q, current embedder is %q", got, want))
	}
	return nil
}

// verifyEmbedderIDReadOnly compares meta.embedder_id against want without
// ever writing: an empty/unversioned store is treated as compatible
// (nothing to mismatch yet) rather than backfilled.
func (r *relational) verifyEmbedderIDReadOnly(ctx context.Context, want string) error {
	var got string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'embedder_id'`).Scan(&got)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return rerr.IoErr("read embedder_id", err)
	case got != want:
		return rerr.IncompatibleIndex(fmt.Sprintf("store was built with embedder %q, current embedder is %q", got, want))
	}
	return nil
}

func (r *relational) insertChunk(ctx context.Context, tx *sql.Tx, rec Record) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO chunks(id, file_path, ordinal, kind, parent_name, start_line, end_line, text, hash, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FilePath, rec.Ordinal, string(rec.Kind), rec.ParentName,
		rec.StartLine, rec.EndLine, rec.Text, rec.Hash, encodeEmbedding(rec.Embedding),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rerr.UniqueViolation(fmt.Sprintf("chunk already exists for %s#%d", rec.FilePath, rec.Ordinal))
		}
		return rerr.IoErr("insert chunk", err)
	}
	return nil
}

func (r *relational) deleteFile(ctx context.Context, tx *sql.Tx, path string) (int, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path)
	if err != nil {
		return 0, rerr.IoErr("delete file chunks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, rerr.IoErr("count deleted chunks", err)
	}
	return int(n), nil
}

func (r *relational) fetchEmbeddingsByFile(ctx context.Context, path string) (map[uint64][]float32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT hash, embedding FROM chunks WHERE file_path = ?`, path)
	if err != nil {
		return nil, rerr.IoErr("fetch embeddings by file", err)
	}
	defer rows.Close()

	out := make(map[uint64][]float32)
	for rows.Next() {
		var hash uint64
		var raw []byte
		if err := rows.Scan(&hash, &raw); err != nil {
			return nil, rerr.IoErr("scan embedding row", err)
		}
		out[hash] = decodeEmbedding(raw)
	}
	return out, rows.Err()
}

func (r *relational) chunkCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, rerr.IoErr("count chunks", err)
	}
	return n, nil
}

func (r *relational) fileCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT file_path) FROM chunks`).Scan(&n); err != nil {
		return 0, rerr.IoErr("count files", err)
	}
	return n, nil
}

func (r *relational) filePaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT file_path FROM chunks`)
	if err != nil {
		return nil, rerr.IoErr("list file paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, rerr.IoErr("scan file path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (r *relational) getByIDs(ctx context.Context, ids []uint64) (map[uint64]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, file_path, ordinal, kind, parent_name, start_line, end_line, text, hash FROM chunks WHERE id IN (%s)`, placeholders)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rerr.IoErr("fetch chunks by id", err)
	}
	defer rows.Close()

	out := make(map[uint64]Record, len(ids))
	for rows.Next() {
		var rec Record
		var kind string
		if err := rows.Scan(&rec.ID, &rec.FilePath, &rec.Ordinal, &kind, &rec.ParentName, &rec.StartLine, &rec.EndLine, &rec.Text, &rec.Hash); err != nil {
			return nil, rerr.IoErr("scan chunk row", err)
		}
		rec.Kind = chunk.Kind(kind)
		out[rec.ID] = rec
	}
	return out, rows.Err()
}

func (r *relational) close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite wraps the underlying SQLite error message rather
	// than exposing a typed error, so match on the message text.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
