// Package storage persists run reports and order outcomes in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"leprechaun-go/internal/execution"
)

// RunRecord is the persisted summary of one screen-and-trade run.
type RunRecord struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Tickers      []string  `json:"tickers"`
	Balance      float64   `json:"balance"`
	BalanceAfter float64   `json:"balance_after"`
	Err          string    `json:"error,omitempty"`
}

// OutcomeRecord is a stored order outcome tagged with its run.
type OutcomeRecord struct {
	ID        int64             `json:"id"`
	RunID     string            `json:"run_id"`
	Outcome   execution.Outcome `json:"outcome"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store handles persistent storage of runs and outcomes.
type Store struct {
	db *sql.DB
}

// Open creates the SQLite database at path with WAL mode enabled.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			tickers TEXT NOT NULL,
			balance REAL NOT NULL,
			balance_after REAL NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			contract TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			order_ids TEXT NOT NULL,
			avg_price REAL NOT NULL,
			duplicate_risk INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS outcomes_run_id ON outcomes(run_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create outcomes table: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveRun inserts or replaces a run summary.
func (s *Store) SaveRun(ctx context.Context, r RunRecord) error {
	tickers, err := json.Marshal(r.Tickers)
	if err != nil {
		return fmt.Errorf("failed to marshal tickers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, tickers, balance, balance_after, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET finished_at=excluded.finished_at, balance_after=excluded.balance_after, error=excluded.error`,
		r.ID, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), string(tickers), r.Balance, r.BalanceAfter, r.Err,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// SaveOutcome stores one terminal outcome for runID.
func (s *Store) SaveOutcome(ctx context.Context, runID string, o execution.Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	created := o.FinishedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, contract, side, quantity, state, attempts, order_ids, avg_price, duplicate_risk, error, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, o.Contract.Key(), string(o.Side), o.Quantity, string(o.State), o.Attempts,
		strings.Join(o.OrderIDs, ","), o.AvgPrice, o.DuplicateRisk, o.Err, payload, created.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, payload, created_at FROM outcomes ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	out := []OutcomeRecord{}
	for rows.Next() {
		var (
			rec     OutcomeRecord
			payload []byte
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcome %d: %w", rec.ID, err)
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, finished_at, tickers, balance, balance_after, error FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	out := []RunRecord{}
	for rows.Next() {
		var (
			rec               RunRecord
			started, finished int64
			tickers           string
		)
		if err := rows.Scan(&rec.ID, &started, &finished, &tickers, &rec.Balance, &rec.BalanceAfter, &rec.Err); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(tickers), &rec.Tickers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tickers for run %s: %w", rec.ID, err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
