package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps the tally value in a key-value table and the
// change audit in tally_events.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := migrateSchema(dbPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer; the tally store already serialises its own writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Get implements KeyValueStore
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get key %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Put implements KeyValueStore
func (r *SQLiteRepository) Put(ctx context.Context, key string, value []byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put %s: %w", key, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put key %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Value stored in SQLite", "key", key, "bytes", len(value))
	return nil
}

// RecordEvent implements EventRecorder. Recording the same event id twice is a no-op,
// so redelivered messages do not duplicate the audit.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e Event) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tally_events (id, op, date, count, average, persisted, occurred_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Op, e.Date, e.Count, e.Average, boolToInt(e.Persisted),
		e.OccurredAt.UnixMilli(), e.RecordedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record event %s: %w", e.ID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "Tally event already recorded", "id", e.ID)
		return nil
	}

	slog.InfoContext(ctx, "Tally event recorded",
		"id", e.ID,
		"op", e.Op,
		"date", e.Date,
		"count", e.Count)
	return nil
}

// ListEvents returns recorded events, newest first. A limit <= 0 returns all of them.
func (r *SQLiteRepository) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	query := `SELECT id, op, date, count, average, persisted, occurred_at, recorded_at
		FROM tally_events ORDER BY occurred_at DESC, recorded_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                    Event
			persisted            int64
			occurred, recordedAt int64
		)
		if err := rows.Scan(&e.ID, &e.Op, &e.Date, &e.Count, &e.Average, &persisted, &occurred, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Persisted = persisted != 0
		e.OccurredAt = time.UnixMilli(occurred)
		e.RecordedAt = time.UnixMilli(recordedAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
