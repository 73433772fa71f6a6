package parser

import (
	"encoding/json"
	"fmt"

	"github.com/jamesruggles/carbonara/internal/category"
	"github.com/jamesruggles/carbonara/internal/model"
)

const ToolESLint = "eslint"

type eslintFile struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID    *string    `json:"ruleId"`
	Severity  *int       `json:"severity"`
	Message   string     `json:"message"`
	Line      *int       `json:"line"`
	Column    *int       `json:"column"`
	EndLine   *int       `json:"endLine"`
	EndColumn *int       `json:"endColumn"`
	Fix       *eslintFix `json:"fix"`
}

type eslintFix struct {
	Range []int  `json:"range"`
	Text  string `json:"text"`
}

// ParseESLint normalizes `eslint -f json` output.
func ParseESLint(raw []byte, target string) (*model.Result, error) {
	var files []eslintFile
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, &ParseError{ToolID: ToolESLint, Err: err}
	}

	var findings []model.Finding
	for _, file := range files {
		for _, m := range file.Messages {
			ruleID := ""
			if m.RuleID != nil {
				ruleID = *m.RuleID
			}
			line := orDefault(m.Line, 1)
			col := orDefault(m.Column, 1)
			f := model.Finding{
				ID:       fmt.Sprintf("%s-%s-%d-%d", orString(ruleID, "unknown"), file.FilePath, line, col),
				FilePath: file.FilePath,
				Location: model.Location{
					StartLine:   line,
					StartColumn: col,
					EndLine:     orDefault(m.EndLine, line),
					EndColumn:   orDefault(m.EndColumn, col),
				},
				Severity: eslintSeverity(m.Severity),
				Message:  m.Message,
				Category: category.MapFindingToCategory(ToolESLint, ruleID, "", m.Message, nil),
				RuleID:   ruleID,
			}
			if m.Fix != nil {
				f.Fix = &model.Fix{Description: "ESLint auto-fix available", Replacement: m.Fix.Text}
			}
			findings = append(findings, f)
		}
	}
	return newResult(ToolESLint, target, findings), nil
}

func eslintSeverity(s *int) model.Severity {
	if s == nil {
		return model.SeverityInfo
	}
	switch *s {
	case 2:
		return model.SeverityError
	case 1:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}
