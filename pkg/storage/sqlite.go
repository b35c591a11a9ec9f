package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		series TEXT NOT NULL,
		model TEXT NOT NULL,
		generated_at INTEGER NOT NULL,
		n_lags INTEGER NOT NULL,
		history_end INTEGER NOT NULL,
		points TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_series_generated ON snapshots(series, generated_at);
`

// SQLiteStore appends every snapshot to a local SQLite database, keeping a
// full run history per series on disk.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// its schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// single writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshots table: %w", err)
	}

	return &SQLiteStore{db: db, timeout: 5 * time.Second}, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put appends snap as a new row.
func (s *SQLiteStore) Put(snap Snapshot) error {
	if snap.Series == "" {
		return fmt.Errorf("series cannot be empty")
	}

	points, err := json.Marshal(snap.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (series, model, generated_at, n_lags, history_end, points)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Series,
		snap.Model,
		snap.GeneratedAt.UnixNano(),
		snap.NLags,
		snap.HistoryEnd.UnixNano(),
		string(points),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recently generated snapshot for series.
// Ties on generated_at go to the row inserted last.
func (s *SQLiteStore) GetLatest(series string) (Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT model, generated_at, n_lags, history_end, points
		 FROM snapshots
		 WHERE series = ?
		 ORDER BY generated_at DESC, id DESC
		 LIMIT 1`,
		series,
	)

	var (
		snap        = Snapshot{Series: series}
		generatedAt int64
		historyEnd  int64
		points      string
	)
	err := row.Scan(&snap.Model, &generatedAt, &snap.NLags, &historyEnd, &points)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("querying snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(points), &snap.Points); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal points: %w", err)
	}
	snap.GeneratedAt = time.Unix(0, generatedAt).UTC()
	snap.HistoryEnd = time.Unix(0, historyEnd).UTC()

	return snap, true, nil
}

// Count returns the number of stored runs for series.
func (s *SQLiteStore) Count(series string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE series = ?`, series).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}
