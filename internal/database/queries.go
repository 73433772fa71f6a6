package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// --- Projects ---

func (db *DB) CreateProject(ctx context.Context, name, path string, metadata map[string]any) (int64, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("encode project metadata: %w", err)
	}
	ts := db.timestamp()
	res, err := db.ExecContext(ctx,
		`INSERT INTO projects (name, path, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, path, string(meta), ts, ts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return res.LastInsertId()
}

const projectColumns = `id, name, path, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p                  Project
		meta, created, upd string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Path, &meta, &created, &upd); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode project metadata: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject returns the project registered for path, or nil when none is.
func (db *DB) GetProject(ctx context.Context, path string) (*Project, error) {
	p, err := scanProject(db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (db *DB) GetProjectByID(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (db *DB) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// --- Assessment data ---

// StoreAssessmentData persists one tool result. data may be raw JSON
// (json.RawMessage or []byte) or any value json.Marshal accepts.
func (db *DB) StoreAssessmentData(ctx context.Context, projectID *int64, toolName, dataType string, data any, source string) (int64, error) {
	blob, err := encodeData(data)
	if err != nil {
		return 0, fmt.Errorf("encode assessment data: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO assessment_data (project_id, tool_name, data_type, data, timestamp, source) VALUES (?, ?, ?, ?, ?, ?)`,
		nullInt(projectID), toolName, dataType, string(blob), db.timestamp(), source,
	)
	if err != nil {
		return 0, fmt.Errorf("insert assessment data: %w", err)
	}
	return res.LastInsertId()
}

func encodeData(data any) ([]byte, error) {
	var blob []byte
	switch v := data.(type) {
	case json.RawMessage:
		blob = v
	case []byte:
		blob = v
	default:
		return json.Marshal(v)
	}
	if !json.Valid(blob) {
		return nil, errors.New("data is not valid JSON")
	}
	return blob, nil
}

const assessmentColumns = `id, project_id, tool_name, data_type, data, timestamp, source`

func scanAssessment(row rowScanner) (*AssessmentData, error) {
	var (
		a         AssessmentData
		projectID sql.NullInt64
		data, ts  string
	)
	if err := row.Scan(&a.ID, &projectID, &a.ToolName, &a.DataType, &data, &ts, &a.Source); err != nil {
		return nil, err
	}
	a.ProjectID = intPtr(projectID)
	a.Data = json.RawMessage(data)
	var err error
	if a.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssessmentData lists records newest first. A nil projectID or empty
// toolName leaves that filter off.
func (db *DB) GetAssessmentData(ctx context.Context, projectID *int64, toolName string) ([]AssessmentData, error) {
	var (
		where []string
		args  []any
	)
	if projectID != nil {
		where = append(where, "project_id = ?")
		args = append(args, *projectID)
	}
	if toolName != "" {
		where = append(where, "tool_name = ?")
		args = append(args, toolName)
	}
	query := `SELECT ` + assessmentColumns + ` FROM assessment_data`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessment data: %w", err)
	}
	defer rows.Close()

	var out []AssessmentData
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment data: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (db *DB) GetAssessmentDataByID(ctx context.Context, id int64) (*AssessmentData, error) {
	a, err := scanAssessment(db.QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessment_data WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment data: %w", err)
	}
	return a, nil
}

// DeleteAssessmentData removes one record and reports whether it existed.
func (db *DB) DeleteAssessmentData(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM assessment_data WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete assessment data: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete assessment data: %w", err)
	}
	return n > 0, nil
}

// DeleteAssessmentDataBySource clears every record produced for one source
// file and returns how many were removed.
func (db *DB) DeleteAssessmentDataBySource(ctx context.Context, source string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM assessment_data WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("delete assessment data by source: %w", err)
	}
	return res.RowsAffected()
}

// --- Stats ---

func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByTool: map[string]int{}}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&stats.ProjectCount); err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assessment_data`).Scan(&stats.AssessmentCount); err != nil {
		return nil, fmt.Errorf("count assessment data: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_runs`).Scan(&stats.RunCount); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT tool_name, COUNT(*) FROM assessment_data GROUP BY tool_name`)
	if err != nil {
		return nil, fmt.Errorf("count by tool: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tool string
		var n int
		if err := rows.Scan(&tool, &n); err != nil {
			return nil, fmt.Errorf("scan tool count: %w", err)
		}
		stats.ByTool[tool] = n
	}
	return stats, rows.Err()
}
