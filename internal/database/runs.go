package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// --- Tool runs ---

func (db *DB) CreateRun(ctx context.Context, r *ToolRun) error {
	if r.Status == "" {
		r.Status = RunPending
	}
	ts := db.now()
	res, err := db.ExecContext(ctx,
		`INSERT INTO tool_runs (run_id, project_id, tool_name, target, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, nullInt(r.ProjectID), r.ToolName, r.Target, r.Status, formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	r.CreatedAt, _ = parseTime(formatTime(ts))
	return nil
}

// UpdateRunStatus moves a run to status, stamping start or completion time.
func (db *DB) UpdateRunStatus(ctx context.Context, runID, status string) error {
	ts := db.timestamp()
	var err error
	switch status {
	case RunRunning:
		_, err = db.ExecContext(ctx, `UPDATE tool_runs SET status = ?, started_at = ? WHERE run_id = ?`, status, ts, runID)
	case RunCompleted, RunFailed, RunCancelled:
		_, err = db.ExecContext(ctx, `UPDATE tool_runs SET status = ?, completed_at = ? WHERE run_id = ?`, status, ts, runID)
	default:
		_, err = db.ExecContext(ctx, `UPDATE tool_runs SET status = ? WHERE run_id = ?`, status, runID)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (db *DB) FinishRun(ctx context.Context, runID, status string, exitCode *int, assessmentID *int64, errMsg string) error {
	var code any
	if exitCode != nil {
		code = *exitCode
	}
	_, err := db.ExecContext(ctx,
		`UPDATE tool_runs SET status = ?, exit_code = ?, assessment_id = ?, error = ?, completed_at = ? WHERE run_id = ?`,
		status, code, nullInt(assessmentID), errMsg, db.timestamp(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

const runColumns = `id, run_id, project_id, tool_name, target, status, exit_code, assessment_id, error, created_at, started_at, completed_at`

func scanRun(row rowScanner) (*ToolRun, error) {
	var (
		r                  ToolRun
		projectID, assess  sql.NullInt64
		exitCode           sql.NullInt64
		created            string
		started, completed sql.NullString
	)
	if err := row.Scan(&r.ID, &r.RunID, &projectID, &r.ToolName, &r.Target, &r.Status,
		&exitCode, &assess, &r.Error, &created, &started, &completed); err != nil {
		return nil, err
	}
	r.ProjectID = intPtr(projectID)
	r.AssessmentID = intPtr(assess)
	if exitCode.Valid {
		c := int(exitCode.Int64)
		r.ExitCode = &c
	}
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.StartedAt, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if r.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) GetRun(ctx context.Context, runID string) (*ToolRun, error) {
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM tool_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (db *DB) ListRecentRuns(ctx context.Context, limit int) ([]ToolRun, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM tool_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []ToolRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// --- Reports ---

func (db *DB) CreateReport(ctx context.Context, r *Report) error {
	ts := db.now()
	res, err := db.ExecContext(ctx,
		`INSERT INTO reports (project_id, title, format, file_path, created_at) VALUES (?, ?, ?, ?, ?)`,
		nullInt(r.ProjectID), r.Title, r.Format, r.FilePath, formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	r.CreatedAt, _ = parseTime(formatTime(ts))
	return nil
}

// ListReports lists generated reports newest first; a nil projectID lists all.
func (db *DB) ListReports(ctx context.Context, projectID *int64) ([]Report, error) {
	query := `SELECT id, project_id, title, format, file_path, created_at FROM reports`
	var args []any
	if projectID != nil {
		query += ` WHERE project_id = ?`
		args = append(args, *projectID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var (
			r       Report
			pid     sql.NullInt64
			created string
		)
		if err := rows.Scan(&r.ID, &pid, &r.Title, &r.Format, &r.FilePath, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.ProjectID = intPtr(pid)
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
