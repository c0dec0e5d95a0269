package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

const lastUpdatedKey = "last_updated"

// SQLiteStore keeps one row per reading, keyed by timestamp and tagged with
// its day key. Inserts only touch new rows instead of rewriting everything;
// Load still materialises the full cache.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, &weather.StorageError{Op: "open", Path: dbPath, Err: err}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, &weather.StorageError{Op: "migrate", Path: dbPath, Err: err}
	}

	return &SQLiteStore{db: db, path: dbPath, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			ts INTEGER NOT NULL UNIQUE,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_readings_day ON readings(day);
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Load reads every row back into a cache, in insertion order per day.
func (s *SQLiteStore) Load(ctx context.Context) (*weather.Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastUpdated int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, lastUpdatedKey).Scan(&lastUpdated)
	if err == sql.ErrNoRows {
		now := s.now().UTC()
		if err := s.touch(ctx, s.db, now); err != nil {
			return nil, err
		}
		lastUpdated = now.UnixMilli()
	} else if err != nil {
		return nil, s.fail("query meta", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT day, payload FROM readings ORDER BY id ASC`)
	if err != nil {
		return nil, s.fail("query", err)
	}
	defer rows.Close()

	cache := &weather.Cache{
		Readings:    make(map[string][]weather.Reading),
		LastUpdated: time.UnixMilli(lastUpdated).UTC(),
	}
	for rows.Next() {
		var day, payload string
		if err := rows.Scan(&day, &payload); err != nil {
			return nil, s.fail("scan", err)
		}
		var r weather.Reading
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, s.fail("decode", err)
		}
		cache.Readings[day] = append(cache.Readings[day], r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("rows", err)
	}
	return cache, nil
}

// Save replaces all rows with the contents of cache in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, cache *weather.Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM readings`); err != nil {
		return s.fail("delete", err)
	}
	for _, day := range cache.Days() {
		if _, err := s.insertRows(ctx, tx, cache.Readings[day]); err != nil {
			return err
		}
	}
	if err := s.touch(ctx, tx, cache.LastUpdated); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.fail("commit", err)
	}
	return nil
}

// Insert adds readings whose timestamp is not stored yet.
func (s *SQLiteStore) Insert(ctx context.Context, readings []weather.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.fail("begin", err)
	}
	defer tx.Rollback()

	added, err := s.insertRows(ctx, tx, readings)
	if err != nil {
		return 0, err
	}
	if err := s.touch(ctx, tx, s.now()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, s.fail("commit", err)
	}
	return added, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertRows(ctx context.Context, db execer, readings []weather.Reading) (int, error) {
	added := 0
	for _, r := range readings {
		if r.Validate() != nil {
			continue
		}
		payload, err := json.Marshal(r)
		if err != nil {
			return 0, s.fail("encode", err)
		}
		res, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO readings (day, ts, payload) VALUES (?, ?, ?)`,
			r.DayKey(), r.Date.UnixNano(), string(payload),
		)
		if err != nil {
			return 0, s.fail("insert", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	return added, nil
}

func (s *SQLiteStore) touch(ctx context.Context, db execer, t time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastUpdatedKey, t.UnixMilli(),
	)
	if err != nil {
		return s.fail("update meta", err)
	}
	return nil
}

func (s *SQLiteStore) fail(op string, err error) error {
	return &weather.StorageError{Op: op, Path: s.path, Err: err}
}
