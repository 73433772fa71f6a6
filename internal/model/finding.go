// Package model defines the normalized finding schema shared by every tool
// parser.
package model

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Rank orders severities for sorting (error=4, hint=1).
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 4
	case SeverityWarning:
		return 3
	case SeverityInfo:
		return 2
	case SeverityHint:
		return 1
	default:
		return 0
	}
}

// ParseSeverity accepts one of the four normalized names, case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityError:
		return SeverityError, true
	case SeverityWarning:
		return SeverityWarning, true
	case SeverityInfo:
		return SeverityInfo, true
	case SeverityHint:
		return SeverityHint, true
	default:
		return "", false
	}
}

// Location is 1-based; End defaults to Start when the tool gives no range.
type Location struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

type Fix struct {
	Description string `json:"description"`
	Replacement string `json:"replacement,omitempty"`
}

// Finding is one normalized static-analysis issue.
type Finding struct {
	ID       string         `json:"id"`
	FilePath string         `json:"filePath"`
	Location Location       `json:"location"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Category string         `json:"category"`
	RuleID   string         `json:"ruleId,omitempty"`
	Fix      *Fix           `json:"fix,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Stats struct {
	TotalMatches int `json:"totalMatches"`
	ErrorCount   int `json:"errorCount"`
	WarningCount int `json:"warningCount"`
	InfoCount    int `json:"infoCount"`
	FilesScanned int `json:"filesScanned"`
}

type ResultMetadata struct {
	ToolID     string `json:"toolId"`
	Target     string `json:"target"`
	AnalyzedAt string `json:"analyzedAt"`
}

// Result is one parse of one tool invocation.
type Result struct {
	Findings []Finding      `json:"findings"`
	Stats    Stats          `json:"stats"`
	Metadata ResultMetadata `json:"metadata"`
	Errors   []string       `json:"errors,omitempty"`
}

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CountStats recounts stats from findings. Hint findings count towards the
// total but have no dedicated bucket.
func CountStats(findings []Finding) Stats {
	s := Stats{TotalMatches: len(findings)}
	files := make(map[string]struct{})
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			s.ErrorCount++
		case SeverityWarning:
			s.WarningCount++
		case SeverityInfo:
			s.InfoCount++
		}
		files[f.FilePath] = struct{}{}
	}
	s.FilesScanned = len(files)
	return s
}
