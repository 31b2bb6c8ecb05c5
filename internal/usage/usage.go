// Package usage keeps a per-request token ledger in SQLite so cost
// display works even for backends that report no usage metadata (those
// records are flagged as estimated).
package usage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/marcus/pilot/internal/canon"
)

// Record is one request's token accounting.
type Record struct {
	ID           string
	Time         time.Time
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Estimated    bool
}

// Summary aggregates records.
type Summary struct {
	Requests     int
	InputTokens  int64
	OutputTokens int64
	Estimated    int // records with estimated counts
}

// DB is the usage ledger.
type DB struct {
	sql *sql.DB
}

// Open opens or creates the ledger, applying pragmas and migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating usage dir: %w", err)
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening usage db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping usage db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating usage db: %w", err)
	}
	return &DB{sql: sqlDB}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY,
	ts            INTEGER NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	estimated     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage_records(ts);
CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider);
`

// Close closes the ledger.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Add inserts a record, assigning an id and timestamp if absent.
func (d *DB) Add(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	_, err := d.sql.Exec(
		`INSERT INTO usage_records (id, ts, provider, model, input_tokens, output_tokens, estimated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.Unix(), rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, boolToInt(rec.Estimated),
	)
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// RecordUsage is a convenience wrapper for a completed request.
func (d *DB) RecordUsage(provider, model string, u canon.Usage) error {
	return d.Add(Record{
		Provider:     provider,
		Model:        model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		Estimated:    u.Estimated,
	})
}

// Summarize aggregates all records since the given time.
func (d *DB) Summarize(since time.Time) (Summary, error) {
	row := d.sql.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(estimated), 0)
		 FROM usage_records WHERE ts >= ?`, since.Unix())
	var s Summary
	if err := row.Scan(&s.Requests, &s.InputTokens, &s.OutputTokens, &s.Estimated); err != nil {
		return Summary{}, fmt.Errorf("summarizing usage: %w", err)
	}
	return s, nil
}

// ByProvider aggregates records since the given time per provider.
func (d *DB) ByProvider(since time.Time) (map[string]Summary, error) {
	rows, err := d.sql.Query(
		`SELECT provider, COUNT(*),
		        COALESCE(SUM(input_tokens), 0),
		        COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(estimated), 0)
		 FROM usage_records WHERE ts >= ? GROUP BY provider`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("summarizing usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Summary)
	for rows.Next() {
		var provider string
		var s Summary
		if err := rows.Scan(&provider, &s.Requests, &s.InputTokens, &s.OutputTokens, &s.Estimated); err != nil {
			return nil, err
		}
		out[provider] = s
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
