package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesruggles/carbonara/internal/parser"
)

func TestBuiltin(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	var ids []string
	for _, tool := range reg.Tools() {
		ids = append(ids, tool.ID)
	}
	assert.Equal(t, []string{"carbonara-swd", "deployment-scan", "eslint", "if-webpage", "megalinter", "page-weight", "semgrep"}, ids)

	semgrep, ok := reg.Tool("semgrep")
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, semgrep.Timeout)
	assert.Equal(t, OutputFindings, semgrep.Output)
	assert.True(t, semgrep.AcceptsExit(1))
	assert.False(t, semgrep.AcceptsExit(2))
	assert.Equal(t, []string{"--config", "auto", "--json", "--metrics=off", "./src"}, semgrep.ExpandArgs("./src"))

	schema := reg.ToolSchema("carbonara-swd")
	require.NotNil(t, schema)
	assert.Equal(t, "globe", schema.Icon)
	assert.NotEmpty(t, schema.Fields)

	assert.Nil(t, reg.ToolSchema("nope"))
	assert.True(t, reg.UsesDeploymentBadge("deployment-scan"))
	assert.False(t, reg.UsesDeploymentBadge("carbonara-swd"))

	deploy, _ := reg.Tool("deployment-scan")
	assert.False(t, deploy.Runnable())

	pw, _ := reg.Tool("page-weight")
	assert.True(t, pw.Builtin)
	assert.True(t, pw.Runnable())
}

func TestLoadUserOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	content := `tools:
  - id: semgrep
    name: Semgrep (custom rules)
    command: semgrep
    args: ["--config", "rules/", "--json", "{target}"]
    target: path
    output: findings
    data_type: code-analysis
  - id: sonar
    name: Sonar export
    target: path
    output: findings
    data_type: code-analysis
    parsing:
      findings_path: issues
      mappings:
        file: component
      default_category: data-efficiency
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)

	semgrep, ok := reg.Tool("semgrep")
	require.True(t, ok)
	assert.Equal(t, "Semgrep (custom rules)", semgrep.Name)
	assert.Nil(t, reg.ToolSchema("semgrep"), "override replaces the whole entry")
	assert.False(t, semgrep.AcceptsExit(1))

	cfg := reg.ParsingConfig("sonar")
	require.NotNil(t, cfg)
	assert.Equal(t, "issues", cfg.FindingsPath)
	assert.Equal(t, "component", cfg.Mappings.File)

	res, err := parser.NewRegistry(reg).Parse("sonar", []byte(`{"issues":[{"component":"a.sql","message":"m"}]}`), "")
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "a.sql", res.Findings[0].FilePath)
	assert.Equal(t, "data-efficiency", res.Findings[0].Category)
}

func TestLoadMissingFileUsesBuiltin(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Len(t, reg.Tools(), 7)

	reg, err = Load("")
	require.NoError(t, err)
	assert.Len(t, reg.Tools(), 7)
}

func TestLoadRejectsInvalidTools(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"not yaml", "tools: [\n"},
		{"missing id", "tools:\n  - name: x\n    target: path\n    output: raw\n    data_type: x\n"},
		{"bad output", "tools:\n  - id: x\n    target: path\n    output: html\n    data_type: x\n"},
		{"bad target", "tools:\n  - id: x\n    target: host\n    output: raw\n    data_type: x\n"},
		{"builtin with command", "tools:\n  - id: x\n    builtin: true\n    command: x\n    target: url\n    output: raw\n    data_type: x\n"},
		{"field without path", "tools:\n  - id: x\n    target: path\n    output: raw\n    data_type: x\n    display:\n      fields:\n        - key: a\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tools.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDisplaySchemaIsEmpty(t *testing.T) {
	var nilSchema *DisplaySchema
	assert.True(t, nilSchema.IsEmpty())
	assert.True(t, (&DisplaySchema{Icon: "x"}).IsEmpty())
	assert.False(t, (&DisplaySchema{GroupName: "g"}).IsEmpty())
}
