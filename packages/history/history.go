// Package history stores decoded readings in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	column_key  TEXT    NOT NULL,
	value       REAL    NOT NULL,
	raw         TEXT    NOT NULL,
	formatted   TEXT    NOT NULL,
	source      TEXT    NOT NULL,
	snapshot    TEXT    NOT NULL DEFAULT '',
	observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_observed_at ON readings (observed_at);
`

// Reading is one decoded value taken from a response snapshot.
type Reading struct {
	ID         int64
	Key        string
	Value      float64
	Raw        string
	Formatted  string
	Source     string
	Snapshot   string
	ObservedAt time.Time
}

// Store is the readings database.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise history database: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Insert stores r and returns its id.
func (s *Store) Insert(ctx context.Context, r Reading) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if r.ObservedAt.IsZero() {
		r.ObservedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (column_key, value, raw, formatted, source, snapshot, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Key, r.Value, r.Raw, r.Formatted, r.Source, r.Snapshot, r.ObservedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert failed: %w", err)
	}
	return res.LastInsertId()
}

// Latest returns up to n readings, newest first. n <= 0 returns all.
func (s *Store) Latest(ctx context.Context, n int) ([]Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `SELECT id, column_key, value, raw, formatted, source, snapshot, observed_at
		FROM readings ORDER BY observed_at DESC, id DESC`
	args := []any{}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var observed int64
		if err := rows.Scan(&r.ID, &r.Key, &r.Value, &r.Raw, &r.Formatted, &r.Source, &r.Snapshot, &observed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.ObservedAt = time.UnixMilli(observed)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return readings, nil
}
