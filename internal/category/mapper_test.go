package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogHasEightCategories(t *testing.T) {
	cats := Catalog()
	assert.Len(t, cats, 8)
	seen := map[string]bool{}
	for _, c := range cats {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
		assert.True(t, IsValid(c.ID))
		assert.NotEmpty(t, c.Name)
	}
	assert.False(t, IsValid("performance"))
}

func TestMapFindingToCategory(t *testing.T) {
	testCases := []struct {
		name     string
		toolID   string
		ruleID   string
		category string
		message  string
		metadata map[string]any
		want     string
	}{
		{
			name:     "metadata override wins over tool table",
			toolID:   "semgrep",
			category: "performance",
			metadata: map[string]any{OverrideKey: SecurityVulnerability},
			want:     SecurityVulnerability,
		},
		{
			name:     "invalid override is ignored",
			toolID:   "semgrep",
			category: "performance",
			metadata: map[string]any{OverrideKey: "not-a-category"},
			want:     PerformanceCritical,
		},
		{
			name:     "semgrep security steers to code quality",
			toolID:   "semgrep",
			ruleID:   "python.lang.security.sql-injection",
			category: "security",
			want:     CodeQuality,
		},
		{
			name:     "semgrep category is case-insensitive",
			toolID:   "semgrep",
			category: "Performance",
			want:     PerformanceCritical,
		},
		{
			name:     "megalinter descriptor prefix",
			toolID:   "megalinter",
			category: "COPYPASTE_JSCPD",
			want:     ResourceOptimization,
		},
		{
			name:   "eslint exact rule",
			toolID: "eslint",
			ruleID: "no-eval",
			want:   PerformanceCritical,
		},
		{
			name:    "eslint unknown rule falls to patterns",
			toolID:  "eslint",
			ruleID:  "jsx-a11y/alt-text",
			message: "img elements must have an alt prop",
			want:    Accessibility,
		},
		{
			name:   "default pattern order: in-loop before sql",
			toolID: "semgrep",
			ruleID: "gci72-python-avoid-sql-request-in-loop",
			want:   PerformanceCritical,
		},
		{
			name:   "unknown tool uses patterns",
			toolID: "custom",
			ruleID: "gci507-java-idleness-keep-cpu-on",
			want:   SustainabilityPattern,
		},
		{
			name:   "sql injection steers to data efficiency",
			toolID: "custom",
			ruleID: "detect-sql-injection",
			want:   DataEfficiency,
		},
		{
			name:    "message keyword fallback",
			toolID:  "custom",
			ruleID:  "R001",
			message: "This variable is never read and wastes memory",
			want:    ResourceOptimization,
		},
		{
			name:    "message keyword network",
			toolID:  "custom",
			ruleID:  "R002",
			message: "Consider enabling compression",
			want:    NetworkEfficiency,
		},
		{
			name:    "variable does not look like aria",
			toolID:  "custom",
			ruleID:  "R003",
			message: "variable shadows outer scope",
			want:    CodeQuality,
		},
		{
			name: "nothing matches",
			want: CodeQuality,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := MapFindingToCategory(tc.toolID, tc.ruleID, tc.category, tc.message, tc.metadata)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMapFindingToCategoryIsTotal(t *testing.T) {
	tools := []string{"semgrep", "megalinter", "eslint", "", "unknown"}
	texts := []string{"", "security", "performance", "no-eval", "memory leak", "{}", "ÄÖÜ", "sql", "a11y"}
	for _, tool := range tools {
		for _, rule := range texts {
			for _, cat := range texts {
				for _, msg := range texts {
					got := MapFindingToCategory(tool, rule, cat, msg, nil)
					assert.True(t, IsValid(got), "tool=%q rule=%q cat=%q msg=%q -> %q", tool, rule, cat, msg, got)
				}
			}
		}
	}
}

func TestSecurityVulnerabilityOnlyViaOverride(t *testing.T) {
	inputs := []string{"sql injection", "xss", "auth bypass", "security", "vulnerability", "cve"}
	for _, in := range inputs {
		for _, tool := range []string{"semgrep", "megalinter", "eslint", "other"} {
			got := MapFindingToCategory(tool, in, in, in, nil)
			assert.NotEqual(t, SecurityVulnerability, got, "tool=%s input=%s", tool, in)
		}
	}
}
