package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	capture "meterscope/internal/capture/domain"
)

// Run represents a persisted capture run.
type Run struct {
	ID           string
	Status       string
	TotalSuccess int
	TotalFailed  int
	Cancelled    bool
	Error        string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
}

// Run statuses.
const (
	RunStatusCreated   = "created"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// Repository handles capture run persistence.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun inserts a run record.
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	if r == nil || r.db == nil {
		return errors.New("capture repo: nil db")
	}
	if run == nil || run.ID == "" {
		return errors.New("capture repo: empty run id")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO capture_runs (id, status, total_success, total_failed, cancelled, error, created_at)
VALUES ($1, $2, 0, 0, FALSE, '', $3)`,
		run.ID, run.Status, now,
	)
	return err
}

// UpdateRunStatus updates run status, totals and timestamps.
func (r *Repository) UpdateRunStatus(ctx context.Context, id, status, errMsg string, totalSuccess, totalFailed int, cancelled bool, startedAt, endedAt *time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("capture repo: nil db")
	}
	if id == "" {
		return errors.New("capture repo: empty run id")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE capture_runs
SET status = $1, error = $2, total_success = $3, total_failed = $4, cancelled = $5, started_at = $6, ended_at = $7
WHERE id = $8`,
		status, errMsg, totalSuccess, totalFailed, cancelled, startedAt, endedAt, id)
	return err
}

// GetRun loads a run by id.
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("capture repo: nil db")
	}
	if id == "" {
		return nil, errors.New("capture repo: empty run id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, total_success, total_failed, cancelled, error, created_at, started_at, ended_at
FROM capture_runs
WHERE id = $1`, id)

	var run Run
	if err := row.Scan(
		&run.ID,
		&run.Status,
		&run.TotalSuccess,
		&run.TotalFailed,
		&run.Cancelled,
		&run.Error,
		&run.CreatedAt,
		&run.StartedAt,
		&run.EndedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return &run, nil
}

// ListRuns returns runs newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("capture repo: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, status, total_success, total_failed, cancelled, error, created_at, started_at, ended_at
FROM capture_runs
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID,
			&run.Status,
			&run.TotalSuccess,
			&run.TotalFailed,
			&run.Cancelled,
			&run.Error,
			&run.CreatedAt,
			&run.StartedAt,
			&run.EndedAt,
		); err != nil {
			return nil, err
		}
		run.CreatedAt = run.CreatedAt.UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveMeterResult inserts one per-meter result for a run.
func (r *Repository) SaveMeterResult(ctx context.Context, runID string, position int, result capture.MeterResult) error {
	if r == nil || r.db == nil {
		return errors.New("capture repo: nil db")
	}
	if runID == "" {
		return errors.New("capture repo: empty run id")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO capture_meter_results (run_id, position, meter_id, meter_number, charts_attempted, charts_successful, charts_failed, failed_metrics, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id, meter_id) DO NOTHING`,
		runID, position, result.MeterID, result.MeterNumber,
		result.ChartsAttempted, result.ChartsSuccessful, result.ChartsFailed,
		strings.Join(result.FailedMetrics, ","), result.DurationMs,
	)
	return err
}

// ListMeterResults returns a run's per-meter results in completion order.
func (r *Repository) ListMeterResults(ctx context.Context, runID string) ([]capture.MeterResult, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("capture repo: nil db")
	}
	if runID == "" {
		return nil, errors.New("capture repo: empty run id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT meter_id, meter_number, charts_attempted, charts_successful, charts_failed, failed_metrics, duration_ms
FROM capture_meter_results
WHERE run_id = $1
ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []capture.MeterResult
	for rows.Next() {
		var result capture.MeterResult
		var failed string
		if err := rows.Scan(
			&result.MeterID,
			&result.MeterNumber,
			&result.ChartsAttempted,
			&result.ChartsSuccessful,
			&result.ChartsFailed,
			&failed,
			&result.DurationMs,
		); err != nil {
			return nil, err
		}
		if failed != "" {
			result.FailedMetrics = strings.Split(failed, ",")
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
