package server

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/batchscribe/batchscribe/internal/config"
	"github.com/batchscribe/batchscribe/internal/core/batch"
	_ "modernc.org/sqlite"
)

const historyDBFile = "history.db"

// RunRecord summarizes one completed batch run.
type RunRecord struct {
	ID          string `json:"id"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	Model       string `json:"model"`
	Device      string `json:"device"`
	Format      string `json:"format"`
	Total       int    `json:"total"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at"`
	Duration    int64  `json:"duration_seconds"`
	Error       string `json:"error,omitempty"`
}

// FileRecord is one file's outcome inside a run.
type FileRecord struct {
	RunID   string `json:"run_id"`
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HistoryDB manages the SQLite database of past runs.
type HistoryDB struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewHistoryDB opens the history database in the user config directory.
func NewHistoryDB() (*HistoryDB, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}
	return NewHistoryDBAt(filepath.Join(configDir, historyDBFile))
}

// NewHistoryDBAt opens or creates a history database at path.
func NewHistoryDBAt(path string) (*HistoryDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transcription_runs (
			id TEXT PRIMARY KEY,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			model TEXT NOT NULL,
			device TEXT NOT NULL,
			format TEXT NOT NULL,
			total INTEGER DEFAULT 0,
			succeeded INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			duration_seconds INTEGER DEFAULT 0,
			error_message TEXT
		);
		CREATE TABLE IF NOT EXISTS run_files (
			run_id TEXT NOT NULL,
			path TEXT NOT NULL,
			success INTEGER NOT NULL,
			error_message TEXT,
			FOREIGN KEY (run_id) REFERENCES transcription_runs(id)
		);
		CREATE INDEX IF NOT EXISTS idx_completed_at ON transcription_runs(completed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_run_files ON run_files(run_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &HistoryDB{db: db}, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// RecordRun saves a run summary and its per-file outcomes. It fills in the
// run ID and derived counters.
func (h *HistoryDB) RecordRun(run *RunRecord, outcomes []batch.FileOutcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Total = len(outcomes)
	run.Succeeded, run.Failed = 0, 0
	for _, o := range outcomes {
		if o.Success {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}
	if run.CompletedAt == 0 {
		run.CompletedAt = time.Now().Unix()
	}
	run.Duration = run.CompletedAt - run.StartedAt

	tx, err := h.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO transcription_runs
		(id, input, output, model, device, format, total, succeeded, failed, started_at, completed_at, duration_seconds, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Input, run.Output, run.Model, run.Device, run.Format,
		run.Total, run.Succeeded, run.Failed,
		run.StartedAt, run.CompletedAt, run.Duration, run.Error,
	)
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		if _, err := tx.Exec(
			`INSERT INTO run_files (run_id, path, success, error_message) VALUES (?, ?, ?, ?)`,
			run.ID, o.Path, o.Success, o.Error,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRuns returns run history with pagination, newest first.
func (h *HistoryDB) GetRuns(limit, offset int) ([]RunRecord, int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM transcription_runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := h.db.Query(`
		SELECT id, input, output, model, device, format, total, succeeded, failed,
		       started_at, completed_at, duration_seconds, error_message
		FROM transcription_runs
		ORDER BY completed_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0)
	for rows.Next() {
		var r RunRecord
		var errorMsg sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Input, &r.Output, &r.Model, &r.Device, &r.Format,
			&r.Total, &r.Succeeded, &r.Failed,
			&r.StartedAt, &r.CompletedAt, &r.Duration, &errorMsg,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan run row: %w", err)
		}
		if errorMsg.Valid {
			r.Error = errorMsg.String
		}
		records = append(records, r)
	}

	return records, total, nil
}

// GetRunFiles returns the per-file outcomes of a run.
func (h *HistoryDB) GetRunFiles(runID string) ([]FileRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rows, err := h.db.Query(
		`SELECT run_id, path, success, error_message FROM run_files WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run files: %w", err)
	}
	defer rows.Close()

	records := make([]FileRecord, 0)
	for rows.Next() {
		var r FileRecord
		var errorMsg sql.NullString
		if err := rows.Scan(&r.RunID, &r.Path, &r.Success, &errorMsg); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		if errorMsg.Valid {
			r.Error = errorMsg.String
		}
		records = append(records, r)
	}

	return records, nil
}

// GetStats returns aggregate counters across all runs.
func (h *HistoryDB) GetStats() (runs int, files int, failedFiles int, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	err = h.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(total), 0),
			COALESCE(SUM(failed), 0)
		FROM transcription_runs
	`).Scan(&runs, &files, &failedFiles)

	return
}

// DeleteRun deletes a run and its file records.
func (h *HistoryDB) DeleteRun(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.db.Exec("DELETE FROM run_files WHERE run_id = ?", id); err != nil {
		return err
	}
	result, err := h.db.Exec("DELETE FROM transcription_runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("run not found")
	}
	return nil
}

// ClearHistory deletes all runs and returns the number removed.
func (h *HistoryDB) ClearHistory() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.db.Exec("DELETE FROM run_files"); err != nil {
		return 0, err
	}
	result, err := h.db.Exec("DELETE FROM transcription_runs")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
