package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesruggles/carbonara/internal/registry"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func drain(ch <-chan OutputLine) []OutputLine {
	var lines []OutputLine
	for l := range ch {
		lines = append(lines, l)
	}
	return lines
}

func TestRunCapturesStreams(t *testing.T) {
	skipWithoutShell(t)
	out := make(chan OutputLine, 16)
	collected := make(chan []OutputLine, 1)
	go func() { collected <- drain(out) }()

	res := Run(context.Background(), ToolSpec{
		BinaryName: "sh",
		Args:       []string{"-c", `echo '{"results":[]}'; echo oops >&2; exit 1`},
	}, out)

	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "{\"results\":[]}\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Error(t, res.Error)
	assert.False(t, res.TimedOut)

	lines := <-collected
	require.Len(t, lines, 2)
	streams := map[string]string{}
	for _, l := range lines {
		streams[l.Stream] = l.Line
	}
	assert.Equal(t, "oops", streams[StreamStderr])
}

func TestRunWorkingDirectory(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	out := make(chan OutputLine, 4)
	res := Run(context.Background(), ToolSpec{BinaryName: "sh", Args: []string{"-c", "pwd -P"}, Dir: dir}, out)
	drain(out)

	require.NoError(t, res.Error)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(res.Stdout))
}

func TestRunTimeout(t *testing.T) {
	skipWithoutShell(t)
	out := make(chan OutputLine, 4)
	res := Run(context.Background(), ToolSpec{BinaryName: "sh", Args: []string{"-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}, out)
	drain(out)

	assert.True(t, res.TimedOut)
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestRunMissingBinary(t *testing.T) {
	out := make(chan OutputLine)
	res := Run(context.Background(), ToolSpec{BinaryName: "carbonara-no-such-tool"}, out)

	_, open := <-out
	assert.False(t, open)
	assert.Equal(t, -1, res.ExitCode)
	assert.Error(t, res.Error)
}

func TestDetectAll(t *testing.T) {
	skipWithoutShell(t)
	list := []registry.Tool{
		{ID: "shell", Name: "Shell", Command: "sh", VersionArgs: []string{"-c", `printf 'sh 1.2\nmore\n'`}},
		{ID: "ghost", Name: "Ghost", Command: "carbonara-no-such-tool"},
		{ID: "deployment-scan", Name: "Deployment scan"},
		{ID: "page-weight", Name: "Page weight", Builtin: true},
	}
	statuses := DetectAll(context.Background(), list)
	require.Len(t, statuses, 4)

	assert.True(t, statuses[0].Installed)
	assert.NotEmpty(t, statuses[0].Path)
	assert.Equal(t, "sh 1.2", statuses[0].Version)

	assert.False(t, statuses[1].Installed)
	assert.Empty(t, statuses[1].Version)

	assert.True(t, statuses[2].ImportOnly)
	assert.False(t, statuses[2].Installed)

	assert.True(t, statuses[3].Builtin)
	assert.True(t, statuses[3].Installed)
	assert.Empty(t, statuses[3].Path)
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"https://example.com/page?x=1&y=2", false},
		{"http://localhost:3000", false},
		{"", true},
		{"example.com", true},
		{"ftp://example.com", true},
		{"https://example.com/$(rm -rf)", true},
		{"https://", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := ValidateURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	got, err := ValidatePath(file)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	_, err = ValidatePath(filepath.Join(dir, "missing"))
	assert.Error(t, err)
	_, err = ValidatePath("  ")
	assert.Error(t, err)
}

func TestValidateTargetByKind(t *testing.T) {
	web := registry.Tool{ID: "carbonara-swd", Target: registry.TargetURL}
	got, err := ValidateTarget(web, " https://example.com ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got)

	_, err = ValidateTarget(web, t.TempDir())
	assert.Error(t, err)

	code := registry.Tool{ID: "semgrep", Target: registry.TargetPath}
	dir := t.TempDir()
	got, err = ValidateTarget(code, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}
