package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jamesruggles/carbonara/internal/category"
	"github.com/jamesruggles/carbonara/internal/model"
)

const ToolSemgrep = "semgrep"

// semgrepOutput accepts both the runner format (matches) and the native
// `semgrep --json` format (results).
type semgrepOutput struct {
	Matches []semgrepMatch    `json:"matches"`
	Results []semgrepNative   `json:"results"`
	Errors  []json.RawMessage `json:"errors"`
	Stats   *semgrepStats     `json:"stats"`
}

type semgrepMatch struct {
	RuleID      string         `json:"rule_id"`
	Path        string         `json:"path"`
	StartLine   *int           `json:"start_line"`
	StartColumn *int           `json:"start_column"`
	EndLine     *int           `json:"end_line"`
	EndColumn   *int           `json:"end_column"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Fix         string         `json:"fix"`
	CodeSnippet string         `json:"code_snippet"`
	Metadata    map[string]any `json:"metadata"`
}

type semgrepNative struct {
	CheckID string       `json:"check_id"`
	Path    string       `json:"path"`
	Start   semgrepPos   `json:"start"`
	End     semgrepPos   `json:"end"`
	Extra   semgrepExtra `json:"extra"`
}

type semgrepPos struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type semgrepExtra struct {
	Message  string         `json:"message"`
	Severity string         `json:"severity"`
	Lines    string         `json:"lines"`
	Fix      string         `json:"fix"`
	Metadata map[string]any `json:"metadata"`
}

type semgrepStats struct {
	TotalMatches *int `json:"total_matches"`
	ErrorCount   *int `json:"error_count"`
	WarningCount *int `json:"warning_count"`
	InfoCount    *int `json:"info_count"`
	FilesScanned *int `json:"files_scanned"`
}

type semgrepError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseSemgrep normalizes Semgrep output. Stats supplied by the tool win
// field by field; the rest are recounted from the findings.
func ParseSemgrep(raw []byte, target string) (*model.Result, error) {
	var doc semgrepOutput
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{ToolID: ToolSemgrep, Err: err}
	}
	if doc.Matches == nil && doc.Results != nil {
		doc.Matches, doc.Stats = convertSemgrepNative(doc.Results)
	}

	findings := make([]model.Finding, 0, len(doc.Matches))
	for _, m := range doc.Matches {
		findings = append(findings, semgrepFinding(m))
	}

	res := newResult(ToolSemgrep, target, findings)
	if doc.Stats != nil {
		res.Stats = doc.Stats.apply(res.Stats)
	}
	for _, e := range doc.Errors {
		res.Errors = append(res.Errors, semgrepErrorText(e))
	}
	return res, nil
}

func semgrepFinding(m semgrepMatch) model.Finding {
	startLine := orDefault(m.StartLine, 1)
	startCol := orDefault(m.StartColumn, 1)

	var originalCategory string
	if c, ok := m.Metadata["category"].(string); ok {
		originalCategory = c
	}

	meta := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	if m.CodeSnippet != "" {
		meta["codeSnippet"] = m.CodeSnippet
	}

	f := model.Finding{
		ID: fmt.Sprintf("%s-%s-%d-%d",
			orString(m.RuleID, "unknown"), orString(m.Path, "unknown"),
			orZero(m.StartLine), orZero(m.StartColumn)),
		FilePath: m.Path,
		Location: model.Location{
			StartLine:   startLine,
			StartColumn: startCol,
			EndLine:     orDefault(m.EndLine, startLine),
			EndColumn:   orDefault(m.EndColumn, startCol),
		},
		Severity: semgrepSeverity(m.Severity),
		Message:  m.Message,
		Category: category.MapFindingToCategory(ToolSemgrep, m.RuleID, originalCategory, m.Message, m.Metadata),
		RuleID:   m.RuleID,
		Metadata: meta,
	}
	if m.Fix != "" {
		f.Fix = &model.Fix{Description: "Semgrep suggested fix", Replacement: m.Fix}
	}
	return f
}

func semgrepSeverity(s string) model.Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return model.SeverityError
	case "WARNING":
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}

// convertSemgrepNative rewrites native results into runner matches and
// computes the runner's stats block.
func convertSemgrepNative(results []semgrepNative) ([]semgrepMatch, *semgrepStats) {
	matches := make([]semgrepMatch, 0, len(results))
	var errs, warns, infos int
	paths := make(map[string]struct{})
	for _, r := range results {
		sev := orString(r.Extra.Severity, "WARNING")
		switch semgrepSeverity(sev) {
		case model.SeverityError:
			errs++
		case model.SeverityWarning:
			warns++
		default:
			infos++
		}
		paths[r.Path] = struct{}{}

		startLine, startCol := r.Start.Line, r.Start.Col
		endLine, endCol := r.End.Line, r.End.Col
		matches = append(matches, semgrepMatch{
			RuleID:      r.CheckID,
			Path:        r.Path,
			StartLine:   &startLine,
			StartColumn: &startCol,
			EndLine:     &endLine,
			EndColumn:   &endCol,
			Severity:    sev,
			Message:     r.Extra.Message,
			Fix:         r.Extra.Fix,
			CodeSnippet: r.Extra.Lines,
			Metadata:    r.Extra.Metadata,
		})
	}
	total, files := len(matches), len(paths)
	return matches, &semgrepStats{
		TotalMatches: &total,
		ErrorCount:   &errs,
		WarningCount: &warns,
		InfoCount:    &infos,
		FilesScanned: &files,
	}
}

func (s *semgrepStats) apply(derived model.Stats) model.Stats {
	out := derived
	if s.TotalMatches != nil {
		out.TotalMatches = *s.TotalMatches
	}
	if s.ErrorCount != nil {
		out.ErrorCount = *s.ErrorCount
	}
	if s.WarningCount != nil {
		out.WarningCount = *s.WarningCount
	}
	if s.InfoCount != nil {
		out.InfoCount = *s.InfoCount
	}
	if s.FilesScanned != nil {
		out.FilesScanned = *s.FilesScanned
	}
	return out
}

// semgrepErrorText accepts plain strings (runner format) and error objects
// (native format).
func semgrepErrorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var e semgrepError
	if err := json.Unmarshal(raw, &e); err == nil {
		return orString(e.Type, "Error") + ": " + orString(e.Message, "Unknown error")
	}
	return string(raw)
}
