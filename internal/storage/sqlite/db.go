package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id    TEXT DEFAULT '',
		provider    TEXT DEFAULT '',
		outcome     TEXT NOT NULL,
		detail      TEXT DEFAULT '',
		duration_ms INTEGER DEFAULT 0,
		started_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_runs_started_at ON analysis_runs(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// KV is a history.Slot backed by the kv table.
type KV struct {
	db *sql.DB
}

func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read kv %s: %w", key, err)
	}
	return value, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write kv %s: %w", key, err)
	}
	return nil
}

// Run is one analysis attempt, accepted or not.
type Run struct {
	EntryID   string
	Provider  string
	Outcome   string
	Detail    string
	Duration  time.Duration
	StartedAt time.Time
}

func InsertRun(ctx context.Context, db *sql.DB, r Run) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO analysis_runs (entry_id, provider, outcome, detail, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.EntryID, r.Provider, r.Outcome, r.Detail, r.Duration.Milliseconds(), r.StartedAt.UTC(),
	)
	return err
}

// RecentRuns returns runs started at or after since, newest first.
func RecentRuns(ctx context.Context, db *sql.DB, since time.Time) ([]Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT entry_id, provider, outcome, detail, duration_ms, started_at
		 FROM analysis_runs WHERE started_at >= ? ORDER BY started_at DESC, id DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.EntryID, &r.Provider, &r.Outcome, &r.Detail, &ms, &r.StartedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
