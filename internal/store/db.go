package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-fetch-pipeline/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store persists runs and their outcomes in sqlite
type Store struct {
	db *sql.DB
	mu sync.Mutex // sqlite allows one writer at a time
}

// Open opens (or creates) the database at dbPath and creates missing tables
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		spec TEXT,
		status TEXT,
		summary TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	outcomeTable := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		url TEXT,
		succeeded INTEGER,
		failure_kind TEXT,
		status_code INTEGER,
		error_message TEXT,
		record_count INTEGER,
		content TEXT,
		duration_ms INTEGER,
		created_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		error_message TEXT,
		created_at DATETIME
	);
	`
	for _, stmt := range []string{runTable, outcomeTable, errorTable,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);`} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Run is a stored pipeline run
type Run struct {
	ID        string         `json:"id"`
	Spec      model.RunSpec  `json:"spec"`
	Status    string         `json:"status"`
	Summary   *model.Summary `json:"summary,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// StoredOutcome is one persisted outcome row
type StoredOutcome struct {
	URL         string            `json:"url"`
	Succeeded   bool              `json:"succeeded"`
	FailureKind model.FailureKind `json:"failure_kind,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	Error       string            `json:"error,omitempty"`
	RecordCount int               `json:"record_count"`
	Content     []model.Record    `json:"content,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CreateRun stores a new pending run
func (s *Store) CreateRun(runID string, spec model.RunSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	_, err = s.db.Exec(`INSERT INTO runs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(specJSON), StatusPending, now, now)
	return err
}

// UpdateRunStatus updates run status
func (s *Store) UpdateRunStatus(runID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), runID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FinishRun stores the final summary and status of a run
func (s *Store) FinishRun(runID, status string, summary model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		status, string(summaryJSON), time.Now().UTC(), runID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SaveRunError records a run-level error
func (s *Store) SaveRunError(runID string, err error) error {
	if err == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, e := s.db.Exec(`INSERT INTO run_errors (run_id, error_message, created_at) VALUES (?, ?, ?)`,
		runID, err.Error(), time.Now().UTC())
	return e
}

// RunErrors returns the run-level error messages, oldest first
func (s *Store) RunErrors(runID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT error_message FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// ListRuns returns all runs, newest first
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, spec, status, summary, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run
func (s *Store) GetRun(runID string) (Run, error) {
	row := s.db.QueryRow(`SELECT id, spec, status, summary, created_at, updated_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var specJSON string
	var summaryJSON sql.NullString
	if err := sc.Scan(&run.ID, &specJSON, &run.Status, &summaryJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(specJSON), &run.Spec); err != nil {
		return Run{}, fmt.Errorf("decode spec of run %s: %w", run.ID, err)
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary model.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return Run{}, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
		}
		run.Summary = &summary
	}
	return run, nil
}

// SaveOutcome persists one outcome in a single transaction
func (s *Store) SaveOutcome(ctx context.Context, runID string, o model.Outcome) error {
	row := StoredOutcome{
		URL:         o.Endpoint,
		Succeeded:   o.Succeeded(),
		RecordCount: len(o.Records),
		DurationMS:  o.Duration.Milliseconds(),
	}
	var content sql.NullString
	if o.Succeeded() {
		data, err := encodeRecords(o.Line().Content)
		if err != nil {
			return fmt.Errorf("encode records for %s: %w", o.Endpoint, err)
		}
		content = sql.NullString{String: data, Valid: true}
	} else {
		row.FailureKind = o.Err.Kind
		row.StatusCode = o.Err.StatusCode
		row.Error = o.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO outcomes
		(run_id, url, succeeded, failure_kind, status_code, error_message, record_count, content, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, row.URL, row.Succeeded, string(row.FailureKind), row.StatusCode, row.Error,
		row.RecordCount, content, row.DurationMS, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outcome for %s: %w", o.Endpoint, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, time.Now().UTC(), runID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListOutcomes returns a run's outcomes in delivery order
func (s *Store) ListOutcomes(runID string) ([]StoredOutcome, error) {
	rows, err := s.db.Query(`SELECT url, succeeded, failure_kind, status_code, error_message, record_count, content, duration_ms, created_at
		FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := make([]StoredOutcome, 0)
	for rows.Next() {
		var o StoredOutcome
		var kind, errMsg sql.NullString
		var content sql.NullString
		if err := rows.Scan(&o.URL, &o.Succeeded, &kind, &o.StatusCode, &errMsg, &o.RecordCount, &content, &o.DurationMS, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.FailureKind = model.FailureKind(kind.String)
		o.Error = errMsg.String
		if content.Valid && content.String != "" {
			if err := json.Unmarshal([]byte(content.String), &o.Content); err != nil {
				return nil, fmt.Errorf("decode records for %s: %w", o.URL, err)
			}
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// encodeRecords matches the JSONL sink: no HTML escaping
func encodeRecords(records []model.Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// OutcomeSink adapts the store to a pipeline sink for one run. Failed
// outcomes are persisted too, with their failure kind.
type OutcomeSink struct {
	store *Store
	runID string
}

func (s *Store) OutcomeSink(runID string) *OutcomeSink {
	return &OutcomeSink{store: s, runID: runID}
}

func (o *OutcomeSink) Append(ctx context.Context, outcome model.Outcome) error {
	return o.store.SaveOutcome(ctx, o.runID, outcome)
}

// Close is a no-op; the store outlives the run
func (o *OutcomeSink) Close() error { return nil }
