package report

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jamesruggles/carbonara/internal/model"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
)

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Results     []sarifResult     `json:"results"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Properties  map[string]any    `json:"properties,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId,omitempty"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations,omitempty"`
	Fixes      []sarifFix      `json:"fixes,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           sarifRegion   `json:"region"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool   `json:"executionSuccessful"`
	EndTimeUTC          string `json:"endTimeUtc,omitempty"`
}

var sarifLevels = map[model.Severity]string{
	model.SeverityError:   "error",
	model.SeverityWarning: "warning",
	model.SeverityInfo:    "note",
	model.SeverityHint:    "note",
}

// sarifDocument exports every stored standardized result as one SARIF run.
func sarifDocument(s *snapshot) ([]byte, error) {
	doc := sarifLog{Schema: sarifSchema, Version: sarifVersion, Runs: []sarifRun{}}
	for _, tr := range s.results {
		doc.Runs = append(doc.Runs, sarifRunFor(tr))
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sarif: %w", err)
	}
	return out, nil
}

func sarifRunFor(tr toolResult) sarifRun {
	run := sarifRun{
		Tool:    sarifTool{Driver: sarifDriver{Name: tr.record.ToolName}},
		Results: make([]sarifResult, 0, len(tr.result.Findings)),
		Invocations: []sarifInvocation{{
			ExecutionSuccessful: len(tr.result.Errors) == 0,
			EndTimeUTC:          tr.result.Metadata.AnalyzedAt,
		}},
		Properties: map[string]any{
			"assessmentId": tr.record.ID,
			"target":       tr.result.Metadata.Target,
		},
	}

	rules := map[string]sarifRule{}
	for _, f := range tr.result.Findings {
		level, ok := sarifLevels[f.Severity]
		if !ok {
			level = "note"
		}
		res := sarifResult{
			RuleID:  f.RuleID,
			Level:   level,
			Message: sarifMessage{Text: f.Message},
			Locations: []sarifLocation{{PhysicalLocation: sarifPhysical{
				ArtifactLocation: sarifArtifact{URI: f.FilePath},
				Region: sarifRegion{
					StartLine:   f.Location.StartLine,
					StartColumn: f.Location.StartColumn,
					EndLine:     f.Location.EndLine,
					EndColumn:   f.Location.EndColumn,
				},
			}}},
			Properties: map[string]any{"category": f.Category, "findingId": f.ID},
		}
		if f.Fix != nil {
			res.Fixes = []sarifFix{{Description: sarifMessage{Text: f.Fix.Description}}}
		}
		run.Results = append(run.Results, res)

		if f.RuleID != "" {
			if _, seen := rules[f.RuleID]; !seen {
				rules[f.RuleID] = sarifRule{
					ID:         f.RuleID,
					Properties: map[string]any{"category": f.Category},
				}
			}
		}
	}

	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, rules[id])
	}
	return run
}
