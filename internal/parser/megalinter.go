package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jamesruggles/carbonara/internal/category"
	"github.com/jamesruggles/carbonara/internal/model"
)

const ToolMegaLinter = "megalinter"

type megalinterOutput struct {
	Results []megalinterFile `json:"results"`
}

type megalinterFile struct {
	Linter     string                `json:"linter"`
	Descriptor string                `json:"descriptor"`
	File       string                `json:"file"`
	Violations []megalinterViolation `json:"violations"`
}

type megalinterViolation struct {
	Line      *int   `json:"line"`
	Column    *int   `json:"column"`
	EndLine   *int   `json:"endLine"`
	EndColumn *int   `json:"endColumn"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Rule      string `json:"rule"`
}

// ParseMegaLinter flattens per-file violations into findings in report order.
func ParseMegaLinter(raw []byte, target string) (*model.Result, error) {
	var doc megalinterOutput
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{ToolID: ToolMegaLinter, Err: err}
	}

	var findings []model.Finding
	for _, file := range doc.Results {
		originalCategory := orString(file.Descriptor, file.Linter)
		for _, v := range file.Violations {
			line := orDefault(v.Line, 1)
			col := orDefault(v.Column, 1)
			meta := map[string]any{"linter": file.Linter}
			if file.Descriptor != "" {
				meta["descriptor"] = file.Descriptor
			}
			findings = append(findings, model.Finding{
				ID:       fmt.Sprintf("%s-%s-%d", file.Linter, file.File, line),
				FilePath: file.File,
				Location: model.Location{
					StartLine:   line,
					StartColumn: col,
					EndLine:     orDefault(v.EndLine, line),
					EndColumn:   orDefault(v.EndColumn, col),
				},
				Severity: megalinterSeverity(v.Severity),
				Message:  v.Message,
				Category: category.MapFindingToCategory(ToolMegaLinter, v.Rule, originalCategory, v.Message, nil),
				RuleID:   v.Rule,
				Metadata: meta,
			})
		}
	}
	return newResult(ToolMegaLinter, target, findings), nil
}

func megalinterSeverity(s string) model.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "fatal":
		return model.SeverityError
	case "warning", "warn":
		return model.SeverityWarning
	case "info", "information":
		return model.SeverityInfo
	case "hint", "suggestion":
		return model.SeverityHint
	default:
		return model.SeverityInfo
	}
}
