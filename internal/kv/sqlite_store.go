package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sapic-foundation/sapic-core/internal/coreerr"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// Options configures a Store's underlying connection.
type Options struct {
	// InMemory opens a private, non-persisted database — used by tests
	// that don't care about the on-disk layout.
	InMemory bool
	// BusyTimeout bounds how long a writer waits on SQLITE_BUSY before
	// giving up (§5 "DB open honors a configurable busy_timeout").
	BusyTimeout time.Duration
}

// Store is a modernc.org/sqlite-backed KvStorage: one scope, one file,
// WAL mode for single-writer/multi-reader concurrency.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open opens or creates the scope database at dbPath.
func Open(dbPath string, opts Options) (*Store, error) {
	dsn := "file::memory:"
	if !opts.InMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "create scope directory", err)
		}
		escaped := strings.ReplaceAll(dbPath, " ", "%20")
		dsn = "file:" + escaped
	}

	busyMs := int((5 * time.Second).Milliseconds())
	if opts.BusyTimeout > 0 {
		busyMs = int(opts.BusyTimeout.Milliseconds())
	}
	dsn += fmt.Sprintf("?_pragma=busy_timeout(%d)", busyMs)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, "open scope database", err)
	}
	db.SetMaxOpenConns(1)

	if !opts.InMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, coreerr.Wrap(coreerr.Storage, "enable WAL mode", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, coreerr.Wrap(coreerr.Storage, "initialize kv schema", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return coreerr.New(coreerr.Closed, "scope database is closed")
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, []byte(value))
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, fmt.Sprintf("put %s", key), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, coreerr.Wrap(coreerr.Storage, fmt.Sprintf("get %s", key), err)
	}
	return json.RawMessage(value), true, nil
}

func (s *Store) Remove(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	return s.removeLocked(ctx, s.db, key)
}

func (s *Store) removeLocked(ctx context.Context, q querier, key string) (json.RawMessage, bool, error) {
	var value []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, coreerr.Wrap(coreerr.Storage, fmt.Sprintf("remove %s", key), err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return nil, false, coreerr.Wrap(coreerr.Storage, fmt.Sprintf("remove %s", key), err)
	}
	return json.RawMessage(value), true, nil
}

// querier is the subset of *sql.DB / *sql.Tx used by helpers that may run
// inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) PutBatch(ctx context.Context, entries []KV) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, "begin put_batch transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kv(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, "prepare put_batch", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Key, []byte(e.Value)); err != nil {
			return coreerr.Wrap(coreerr.Storage, fmt.Sprintf("put_batch %s", e.Key), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return coreerr.Wrap(coreerr.Storage, "commit put_batch", err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, keys []string) ([]KVOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]KVOption, len(keys))
	for i, k := range keys {
		var value []byte
		err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, k).Scan(&value)
		switch err {
		case nil:
			out[i] = KVOption{Key: k, Value: json.RawMessage(value), Found: true}
		case sql.ErrNoRows:
			out[i] = KVOption{Key: k, Found: false}
		default:
			return nil, coreerr.Wrap(coreerr.Storage, fmt.Sprintf("get_batch %s", k), err)
		}
	}
	return out, nil
}

func (s *Store) RemoveBatch(ctx context.Context, keys []string) ([]KVOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, "begin remove_batch transaction", err)
	}
	defer tx.Rollback()

	out := make([]KVOption, len(keys))
	for i, k := range keys {
		value, found, err := s.removeLocked(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		out[i] = KVOption{Key: k, Value: value, Found: found}
	}
	if err := tx.Commit(); err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, "commit remove_batch", err)
	}
	return out, nil
}

func (s *Store) GetBatchByPrefix(ctx context.Context, prefix string) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return queryByPrefix(ctx, s.db, prefix)
}

func (s *Store) RemoveBatchByPrefix(ctx context.Context, prefix string) ([]KV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, "begin remove_batch_by_prefix transaction", err)
	}
	defer tx.Rollback()

	pairs, err := queryByPrefix(ctx, tx, prefix)
	if err != nil {
		return nil, err
	}
	lo, hi := prefixRange(prefix)
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key >= ? AND key < ?`, lo, hi); err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, fmt.Sprintf("remove_batch_by_prefix %s", prefix), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, "commit remove_batch_by_prefix", err)
	}
	return pairs, nil
}

func queryByPrefix(ctx context.Context, q querier, prefix string) ([]KV, error) {
	lo, hi := prefixRange(prefix)
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key`, lo, hi)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, fmt.Sprintf("get_batch_by_prefix %s", prefix), err)
	}
	defer rows.Close()

	var out []KV
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, coreerr.Wrap(coreerr.Storage, "scan kv row", err)
		}
		out = append(out, KV{Key: key, Value: json.RawMessage(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, "iterate kv rows", err)
	}
	return out, nil
}

// prefixRange computes the half-open [lo, hi) key range matching every key
// starting with prefix, exploiting that SQLite compares TEXT keys
// byte-lexicographically. hi is prefix with its last byte incremented; if
// prefix is empty or all 0xff, hi is an unreachable upper sentinel.
func prefixRange(prefix string) (lo, hi string) {
	if prefix == "" {
		return "", "\xff\xff\xff\xff"
	}
	b := []byte(prefix)
	i := len(b) - 1
	for i >= 0 && b[i] == 0xff {
		i--
	}
	if i < 0 {
		return prefix, "\xff\xff\xff\xff"
	}
	hiBytes := make([]byte, i+1)
	copy(hiBytes, b[:i+1])
	hiBytes[i]++
	return prefix, string(hiBytes)
}

func (s *Store) Flush(ctx context.Context, mode FlushMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	checkpointMode := "PASSIVE"
	if mode == Force {
		checkpointMode = "TRUNCATE"
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", checkpointMode)); err != nil {
		return coreerr.Wrap(coreerr.Storage, "flush scope database", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return coreerr.Wrap(coreerr.Io, "close scope database", err)
	}
	return nil
}

var _ KvStorage = (*Store)(nil)
