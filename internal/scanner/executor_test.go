package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/parser"
	"github.com/jamesruggles/carbonara/internal/registry"
	"github.com/jamesruggles/carbonara/internal/tools"
)

const semgrepReport = `{"matches":[
	{"rule_id":"no-console","path":"a.ts","start_line":3,"severity":"WARNING","message":"console usage"},
	{"rule_id":"n-plus-one-query","path":"b.ts","start_line":9,"severity":"ERROR","message":"query in loop"}
]}`

type recorder struct {
	mu    sync.Mutex
	lines map[string][]tools.OutputLine
}

func (r *recorder) Broadcast(runID string, line tools.OutputLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines == nil {
		r.lines = map[string][]tools.OutputLine{}
	}
	r.lines[runID] = append(r.lines[runID], line)
}

func (r *recorder) get(runID string) []tools.OutputLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tools.OutputLine(nil), r.lines[runID]...)
}

// fakeRun replays stdout and exits with code, honouring the tools.Run
// channel contract.
func fakeRun(stdout string, code int) runFunc {
	return func(_ context.Context, spec tools.ToolSpec, out chan<- tools.OutputLine) *tools.ToolResult {
		defer close(out)
		out <- tools.OutputLine{Stream: tools.StreamStdout, Line: spec.BinaryName + " running"}
		var err error
		if code != 0 {
			err = errors.New("exit status")
		}
		return &tools.ToolResult{ExitCode: code, Stdout: stdout, Stderr: "last words\n", Error: err}
	}
}

func setup(t *testing.T) (*Executor, *database.DB, *recorder) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "carbonara.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := registry.Builtin()
	require.NoError(t, err)

	rec := &recorder{}
	return NewExecutor(db, reg, rec, zap.NewNop(), Options{}), db, rec
}

func TestRunFindingsTool(t *testing.T) {
	e, db, rec := setup(t)
	e.run = fakeRun(semgrepReport, 1)
	ctx := context.Background()
	target := t.TempDir()

	out, err := e.Run(ctx, Request{ToolID: "semgrep", Target: target})
	require.NoError(t, err)
	assert.Equal(t, database.RunCompleted, out.Status, out.Error)
	require.NotNil(t, out.ExitCode)
	assert.Equal(t, 1, *out.ExitCode)
	require.NotNil(t, out.Result)
	assert.Equal(t, 2, out.Result.Stats.TotalMatches)
	assert.Equal(t, 1, out.Result.Stats.ErrorCount)

	stored, err := db.GetAssessmentDataByID(ctx, out.AssessmentID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "semgrep", stored.ToolName)
	assert.Equal(t, "code-analysis", stored.DataType)
	var body map[string]any
	require.NoError(t, json.Unmarshal(stored.Data, &body))
	assert.Len(t, body["findings"], 2)

	run, err := db.GetRun(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, database.RunCompleted, run.Status)
	require.NotNil(t, run.AssessmentID)
	assert.Equal(t, out.AssessmentID, *run.AssessmentID)

	lines := rec.get(out.RunID)
	require.NotEmpty(t, lines)
	assert.Equal(t, "semgrep running", lines[0].Line)
	assert.True(t, lines[len(lines)-1].Done)
}

func TestRunRawTool(t *testing.T) {
	e, db, _ := setup(t)
	e.run = fakeRun(`  {"url":"https://example.com","totalBytes":2048}`+"\n", 0)
	ctx := context.Background()

	out, err := e.Run(ctx, Request{ToolID: "carbonara-swd", Target: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, database.RunCompleted, out.Status, out.Error)
	assert.Nil(t, out.Result)

	stored, err := db.GetAssessmentDataByID(ctx, out.AssessmentID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com","totalBytes":2048}`, string(stored.Data))
	assert.Equal(t, "web-analysis", stored.DataType)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		target  string
		run     runFunc
		wantErr string
	}{
		{name: "unaccepted exit code", tool: "semgrep", run: fakeRun(semgrepReport, 2), wantErr: "exit code 2: last words"},
		{name: "unparseable findings", tool: "semgrep", run: fakeRun("not json", 0), wantErr: "parse semgrep output"},
		{name: "raw output not json", tool: "carbonara-swd", target: "https://example.com", run: fakeRun("<html>", 0), wantErr: "not valid JSON"},
		{name: "missing report file", tool: "megalinter", run: fakeRun("", 0), wantErr: "reading megalinter report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db, _ := setup(t)
			e.run = tt.run
			target := tt.target
			if target == "" {
				target = t.TempDir()
			}

			out, err := e.Run(context.Background(), Request{ToolID: tt.tool, Target: target})
			require.NoError(t, err)
			assert.Equal(t, database.RunFailed, out.Status)
			assert.Contains(t, out.Error, tt.wantErr)
			assert.Zero(t, out.AssessmentID)

			run, err := db.GetRun(context.Background(), out.RunID)
			require.NoError(t, err)
			assert.Equal(t, database.RunFailed, run.Status)
			assert.Nil(t, run.AssessmentID)

			stats, err := db.GetStats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, stats.AssessmentCount)
		})
	}
}

func TestRunReadsOutputFile(t *testing.T) {
	e, db, _ := setup(t)
	e.run = fakeRun("MegaLinter banner", 1)
	target := t.TempDir()
	reportDir := filepath.Join(target, "megalinter-reports")
	require.NoError(t, os.MkdirAll(reportDir, 0o755))
	report := `{"results":[{"linter":"eslint","descriptor":"javascript","file":"app.js","violations":[{"line":4,"severity":"error","message":"bad","rule":"no-var"}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(reportDir, "mega-linter-report.json"), []byte(report), 0o644))

	out, err := e.Run(context.Background(), Request{ToolID: "megalinter", Target: target})
	require.NoError(t, err)
	require.Equal(t, database.RunCompleted, out.Status, out.Error)
	assert.Equal(t, 1, out.Result.Stats.ErrorCount)

	stats, err := db.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"megalinter": 1}, stats.ByTool)
}

func TestRunRejectsBadRequests(t *testing.T) {
	e, _, _ := setup(t)
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown tool", Request{ToolID: "nmap", Target: "."}},
		{"import-only tool", Request{ToolID: "deployment-scan", Target: "."}},
		{"missing path", Request{ToolID: "semgrep", Target: filepath.Join(t.TempDir(), "nope")}},
		{"bad url", Request{ToolID: "carbonara-swd", Target: "example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Run(context.Background(), tt.req)
			assert.Error(t, err)
			_, err = e.Start(tt.req)
			assert.Error(t, err)
		})
	}
}

func TestStartAndCancel(t *testing.T) {
	e, db, rec := setup(t)
	started := make(chan struct{})
	e.run = func(ctx context.Context, _ tools.ToolSpec, out chan<- tools.OutputLine) *tools.ToolResult {
		defer close(out)
		close(started)
		<-ctx.Done()
		return &tools.ToolResult{ExitCode: -1, Error: ctx.Err()}
	}

	runID, err := e.Start(Request{ToolID: "eslint", Target: t.TempDir()})
	require.NoError(t, err)
	<-started

	assert.True(t, e.Cancel(runID))
	e.Wait()
	assert.False(t, e.Cancel(runID), "finished runs are forgotten")

	run, err := db.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, database.RunCancelled, run.Status)
	assert.Equal(t, "run cancelled", run.Error)
	require.NotNil(t, run.CompletedAt)

	lines := rec.get(runID)
	require.NotEmpty(t, lines)
	assert.True(t, lines[len(lines)-1].Done)
}

func TestRunTimeoutIsFailure(t *testing.T) {
	e, _, _ := setup(t)
	e.run = func(_ context.Context, spec tools.ToolSpec, out chan<- tools.OutputLine) *tools.ToolResult {
		close(out)
		return &tools.ToolResult{ExitCode: -1, TimedOut: true, Duration: spec.Timeout}
	}

	out, err := e.Run(context.Background(), Request{ToolID: "eslint", Target: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, database.RunFailed, out.Status)
	assert.Equal(t, "timed out after 10m0s", out.Error)
	assert.Nil(t, out.ExitCode)
}

func TestImport(t *testing.T) {
	e, db, _ := setup(t)
	ctx := context.Background()
	pid, err := db.CreateProject(ctx, "demo", t.TempDir(), nil)
	require.NoError(t, err)

	out, err := e.Import(ctx, ImportRequest{
		ToolID:    "deployment-scan",
		Raw:       []byte(`{"deployments":[{"provider":"aws","region":"eu-west-1","carbonIntensity":300}]}`),
		ProjectID: &pid,
		Source:    "deployments.json",
	})
	require.NoError(t, err)
	assert.Empty(t, out.RunID)

	records, err := db.GetAssessmentData(ctx, &pid, "deployment-scan")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "deployments.json", records[0].Source)
	assert.Equal(t, "deployment-analysis", records[0].DataType)

	_, err = e.Import(ctx, ImportRequest{ToolID: "eslint", Raw: []byte(`{"not":"an array"}`)})
	var pe *parser.ParseError
	assert.ErrorAs(t, err, &pe)

	_, err = e.Import(ctx, ImportRequest{ToolID: "nope", Raw: []byte(`{}`)})
	assert.Error(t, err)
}

func TestBuildToolSpec(t *testing.T) {
	reg, err := registry.Builtin()
	require.NoError(t, err)
	dir := t.TempDir()
	file := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(file, []byte("var x"), 0o644))

	eslint, _ := reg.Tool("eslint")
	spec, err := buildToolSpec(eslint, file, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "eslint", spec.BinaryName)
	assert.Equal(t, []string{"-f", "json", file}, spec.Args)
	assert.Equal(t, dir, spec.Dir)
	assert.Equal(t, 10*time.Minute, spec.Timeout)

	custom := registry.Tool{ID: "x", Command: "x", Target: registry.TargetURL, Args: []string{"{target}"}}
	spec, err = buildToolSpec(custom, "https://example.com", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, spec.Timeout)
	assert.Empty(t, spec.Dir)
}
