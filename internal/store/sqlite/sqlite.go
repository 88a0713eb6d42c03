// Package sqlite provides a store.Backend on an embedded SQLite database.
//
// The database holds one table, dictionary, keyed by resource identifier.
// Its layout version is tracked with PRAGMA user_version.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmgilman/go/dictload/internal/store"
	_ "modernc.org/sqlite"
)

// ErrNewerSchema is returned when the database was written by a newer layout version.
var ErrNewerSchema = errors.New("database schema is newer than supported")

const dsnParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// Store is a SQLite-backed record collection.
type Store struct {
	sqlDB   *sql.DB
	version int
}

// Path returns the database file path for a store named name under dir.
func Path(dir, name string) string {
	if name == "" {
		name = store.DefaultName
	}
	return filepath.Join(dir, name+".db")
}

// Opener returns an opener for the database at Path(dir, name).
func Opener(dir, name string) store.Opener {
	return func(ctx context.Context) (store.Backend, error) {
		s, err := Open(ctx, Path(dir, name))
		if err != nil {
			return nil, store.Unavailable(err, "failed to open sqlite store")
		}
		return s, nil
	}
}

// Open opens or creates the database at path and upgrades its schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	sqlDB, err := sql.Open("sqlite", filepath.Clean(path)+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{sqlDB: sqlDB}
	if err := s.upgrade(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("upgrade schema: %w", err)
	}
	return s, nil
}

// upgrade creates the collection when the stored version is below the expected one.
func (s *Store) upgrade(ctx context.Context) error {
	var current int
	if err := s.sqlDB.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if current > store.SchemaVersion {
		return fmt.Errorf("%w: found %d, want %d", ErrNewerSchema, current, store.SchemaVersion)
	}
	if current == store.SchemaVersion {
		s.version = current
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS dictionary (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		stored_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create dictionary table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, store.SchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.version = store.SchemaVersion
	return nil
}

// Get loads the record for key.
func (s *Store) Get(ctx context.Context, key string) (store.Record, bool, error) {
	if s == nil || s.sqlDB == nil {
		return store.Record{}, false, fmt.Errorf("storage is not configured")
	}

	var (
		rec      store.Record
		storedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT key, payload, stored_at FROM dictionary WHERE key = ?`, key,
	).Scan(&rec.Key, &rec.Payload, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Record{}, false, nil
		}
		return store.Record{}, false, fmt.Errorf("get record: %w", err)
	}
	rec.StoredAt = time.UnixMilli(storedAt).UTC()
	return rec, true, nil
}

// Put upserts rec.
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if rec.Key == "" {
		return fmt.Errorf("record key is required")
	}
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO dictionary (key, payload, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		    payload = excluded.payload,
		    stored_at = excluded.stored_at`,
		rec.Key, payload, rec.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Keys lists stored keys in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT key FROM dictionary ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM dictionary`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

// SchemaVersion reports the opened layout version.
func (s *Store) SchemaVersion() int {
	if s == nil {
		return 0
	}
	return s.version
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

var (
	_ store.Backend    = (*Store)(nil)
	_ store.Maintainer = (*Store)(nil)
)
