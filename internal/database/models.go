package database

import (
	"encoding/json"
	"time"
)

type Project struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Path      string         `json:"path"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AssessmentData is one stored tool result. Records are written once and
// only ever deleted.
type AssessmentData struct {
	ID        int64           `json:"id"`
	ProjectID *int64          `json:"project_id"`
	ToolName  string          `json:"tool_name"`
	DataType  string          `json:"data_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source,omitempty"`
}

// Run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

type ToolRun struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	ProjectID    *int64     `json:"project_id"`
	ToolName     string     `json:"tool_name"`
	Target       string     `json:"target"`
	Status       string     `json:"status"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	AssessmentID *int64     `json:"assessment_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type Report struct {
	ID        int64     `json:"id"`
	ProjectID *int64    `json:"project_id"`
	Title     string    `json:"title"`
	Format    string    `json:"format"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

type Stats struct {
	ProjectCount    int            `json:"project_count"`
	AssessmentCount int            `json:"assessment_count"`
	RunCount        int            `json:"run_count"`
	ByTool          map[string]int `json:"by_tool"`
}
