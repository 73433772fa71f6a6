package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesruggles/carbonara/internal/config"
	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/display"
	"github.com/jamesruggles/carbonara/internal/registry"
)

const swdReport = `{"url":"https://shop.example/","totalBytes":524288,"carbonEmissions":{"total":0.3}}`

func newTestServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "carbonara.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := registry.Builtin()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Reports.Directory = filepath.Join(dir, "reports")
	s, err := New(cfg, db, reg, nil)
	require.NoError(t, err)
	return s, db
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestProjects(t *testing.T) {
	s, _ := newTestServer(t)
	path := t.TempDir()

	rec := do(t, s, http.MethodPost, "/api/projects", map[string]any{"name": "Shop", "path": path})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[database.Project](t, rec)
	assert.Equal(t, "Shop", created.Name)

	rec = do(t, s, http.MethodPost, "/api/projects", map[string]any{"name": "Again", "path": path})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, created.ID, decode[database.Project](t, rec).ID)

	rec = do(t, s, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]database.Project](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/projects/"+strconv.FormatInt(created.ID, 10), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/projects/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/projects/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/projects", map[string]any{"name": "x"}).Code)
}

func TestImportAndBrowse(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/assessments", map[string]any{
		"tool":   "carbonara-swd",
		"target": "https://shop.example/",
		"source": "ci",
		"data":   json.RawMessage(swdReport),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[struct {
		AssessmentID int64 `json:"assessmentId"`
	}](t, rec)
	require.NotZero(t, out.AssessmentID)
	id := strconv.FormatInt(out.AssessmentID, 10)

	rec = do(t, s, http.MethodGet, "/api/assessments?tool=carbonara-swd", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]database.AssessmentData](t, rec)
	require.Len(t, records, 1)
	assert.JSONEq(t, swdReport, string(records[0].Data))
	assert.Equal(t, "ci", records[0].Source)

	rec = do(t, s, http.MethodGet, "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]display.DataGroup](t, rec)
	require.Len(t, groups, 1)
	assert.Equal(t, "Website Carbon (SWD)", groups[0].DisplayName)
	assert.Equal(t, "shop.example/ - 512 KB", groups[0].Entries[0].Label)

	rec = do(t, s, http.MethodGet, "/api/assessments/"+id+"/details", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]display.DataDetail](t, rec))

	rec = do(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		Database database.Stats  `json:"database"`
		Display  display.Summary `json:"display"`
	}](t, rec)
	assert.Equal(t, 1, stats.Database.AssessmentCount)
	assert.Equal(t, 1, stats.Display.ByTool["carbonara-swd"])

	rec = do(t, s, http.MethodDelete, "/api/assessments?source=ci", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[map[string]int64](t, rec)["deleted"])

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/assessments/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/assessments/"+id, nil).Code)
}

func TestImportRejects(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing data", map[string]any{"tool": "semgrep"}, http.StatusBadRequest},
		{"unknown tool", map[string]any{"tool": "nope", "data": json.RawMessage(`{}`)}, http.StatusBadRequest},
		{"unparseable findings", map[string]any{"tool": "semgrep", "data": "not json"}, http.StatusUnprocessableEntity},
		{"raw not json", map[string]any{"tool": "carbonara-swd", "data": "<html>"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/assessments", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRuns(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/runs", map[string]any{"tool": "nope", "target": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/runs", map[string]any{"tool": "deployment-scan", "target": t.TempDir()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "import-only")

	rec = do(t, s, http.MethodPost, "/api/runs", map[string]any{"tool": "semgrep"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]database.ToolRun](t, rec))

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/runs/missing", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodDelete, "/api/runs/missing", nil).Code)
}

func TestReports(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/reports", map[string]any{"format": "docx"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/reports", map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rpt := decode[database.Report](t, rec)
	assert.Equal(t, "markdown", rpt.Format)
	_, err := os.Stat(rpt.FilePath)
	assert.NoError(t, err)

	rec = do(t, s, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]database.Report](t, rec), 1)
}

func TestTools(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]toolInfo](t, rec)
	require.Len(t, list, len(s.tools.Tools()))
	for _, ti := range list {
		assert.Equal(t, ti.ID, ti.Status.ID)
	}
}

func TestMiddleware(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/projects", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	panicky := recoveryMiddleware(s.log, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec = httptest.NewRecorder()
	panicky.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
