package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesruggles/carbonara/internal/category"
	"github.com/jamesruggles/carbonara/internal/model"
)

const sonarLike = `{"report":{"issues":[
	{"key":"I1","component":"src/app.js","line":12,"severity":"MAJOR","message":"Avoid http request in loop","rule":"js:S123"},
	{"component":"b.js","severity":"Low","message":"missing label","rule":"custom-a11y-check"},
	"not an object"
]}}`

func TestParseGeneric(t *testing.T) {
	cfg := ParsingConfig{
		FindingsPath: "report.issues",
		Mappings:     FieldMappings{ID: "key", File: "component"},
		CategoryMap:  map[string]string{"a11y": category.Accessibility},
	}
	res, err := ParseGeneric("sonar", cfg, []byte(sonarLike), "/repo")
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)

	first := res.Findings[0]
	assert.Equal(t, "I1", first.ID)
	assert.Equal(t, "src/app.js", first.FilePath)
	assert.Equal(t, 12, first.Location.StartLine)
	assert.Equal(t, model.SeverityError, first.Severity)
	assert.Equal(t, LevelHigh, first.Metadata["severityLevel"])
	assert.Equal(t, category.NetworkEfficiency, first.Category)
	assert.Equal(t, "High", first.Metadata["impact"])
	require.NotNil(t, first.Fix)
	assert.Contains(t, first.Fix.Description, "js:S123")

	second := res.Findings[1]
	assert.Equal(t, "custom-a11y-check-b.js-1-1", second.ID)
	assert.Equal(t, model.SeverityInfo, second.Severity)
	assert.Equal(t, category.Accessibility, second.Category)
	assert.Equal(t, "Low", second.Metadata["impact"])

	assert.Equal(t, "sonar", res.Metadata.ToolID)
	assertDerivedStats(t, res)
}

func TestParseGenericSeverityMap(t *testing.T) {
	cfg := ParsingConfig{
		FindingsPath: "items",
		SeverityMap:  map[string]string{"blocker": "hint", "BAD": "critical"},
	}
	raw := []byte(`{"items":[{"severity":"BLOCKER"},{"severity":"BAD"},{"severity":"whatever"}]}`)
	res, err := ParseGeneric("tool", cfg, raw, "")
	require.NoError(t, err)
	require.Len(t, res.Findings, 3)

	assert.Equal(t, model.SeverityHint, res.Findings[0].Severity)
	assert.NotContains(t, res.Findings[0].Metadata, "severityLevel")
	assert.Equal(t, model.SeverityError, res.Findings[1].Severity)
	assert.Equal(t, model.SeverityInfo, res.Findings[2].Severity)
	assert.Equal(t, LevelLow, res.Findings[2].Metadata["severityLevel"])
}

func TestGuessSeverityLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"CRITICAL", LevelCritical},
		{"blocker", LevelCritical},
		{"Major", LevelHigh},
		{"HIGH", LevelHigh},
		{"minor", LevelMedium},
		{"MEDIUM", LevelMedium},
		{"", LevelLow},
		{"trivial", LevelLow},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, guessSeverityLevel(tc.in))
		})
	}
}

func TestParseGenericYAML(t *testing.T) {
	cfg := ParsingConfig{
		Format:          FormatYAML,
		FindingsPath:    "findings",
		DefaultCategory: category.SustainabilityPattern,
	}
	raw := []byte("findings:\n  - file: a.py\n    line: 3\n    message: energy hog\n    severity: minor\n")
	res, err := ParseGeneric("yamltool", cfg, raw, "")
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)

	f := res.Findings[0]
	assert.Equal(t, "a.py", f.FilePath)
	assert.Equal(t, 3, f.Location.StartLine)
	assert.Equal(t, model.SeverityWarning, f.Severity)
	assert.Equal(t, category.SustainabilityPattern, f.Category)
}

func TestParseGenericShapes(t *testing.T) {
	cfg := ParsingConfig{FindingsPath: "data.issues"}

	res, err := ParseGeneric("tool", cfg, []byte(`{"data":{}}`), "")
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Equal(t, []string{`findings path "data.issues" not found in output`}, res.Errors)

	res, err = ParseGeneric("tool", cfg, []byte(`{"data":{"issues":[]}}`), "")
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Empty(t, res.Errors)

	_, err = ParseGeneric("tool", cfg, []byte(`{"data":{"issues":"nope"}}`), "")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "tool", pe.ToolID)

	_, err = ParseGeneric("tool", cfg, []byte(`{"data":`), "")
	require.True(t, errors.As(err, &pe))

	res, err = ParseGeneric("tool", ParsingConfig{}, []byte(`[{"message":"top level"}]`), "")
	require.NoError(t, err)
	assert.Len(t, res.Findings, 1)
}

type staticConfigs map[string]*ParsingConfig

func (s staticConfigs) ParsingConfig(id string) *ParsingConfig { return s[id] }

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(staticConfigs{"sonar": {FindingsPath: "report.issues"}})

	assert.Equal(t, []string{ToolESLint, ToolMegaLinter, ToolSemgrep}, reg.BuiltIn())

	res, err := reg.Parse("Semgrep", []byte(`{"matches":[{"rule_id":"r"}]}`), "")
	require.NoError(t, err)
	assert.Equal(t, ToolSemgrep, res.Metadata.ToolID)

	res, err = reg.Parse("sonar", []byte(sonarLike), "")
	require.NoError(t, err)
	assert.Len(t, res.Findings, 2)

	_, err = reg.Parse("unknown", []byte(`{}`), "")
	require.Error(t, err)
	var pe *ParseError
	assert.False(t, errors.As(err, &pe))

	_, ok := NewRegistry(nil).Lookup("sonar")
	assert.False(t, ok)
}
