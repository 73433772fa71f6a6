// Package parser converts raw analysis tool output into the normalized
// finding schema.
package parser

import (
	"fmt"
	"time"

	"github.com/jamesruggles/carbonara/internal/model"
)

// ParseError reports tool output that could not be decoded at all. A valid
// document with no findings is not an error.
type ParseError struct {
	ToolID string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s output: %v", e.ToolID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// now is swapped in tests.
var now = time.Now

func newResult(toolID, target string, findings []model.Finding) *model.Result {
	if findings == nil {
		findings = []model.Finding{}
	}
	return &model.Result{
		Findings: findings,
		Stats:    model.CountStats(findings),
		Metadata: model.ResultMetadata{
			ToolID:     toolID,
			Target:     target,
			AnalyzedAt: model.FormatTimestamp(now()),
		},
	}
}

// orDefault returns def for missing or non-positive positions.
func orDefault(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}

func orZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func orString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
