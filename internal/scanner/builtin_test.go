package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/tools"
)

const testPage = `<!doctype html>
<html><head>
<title> Demo shop </title>
<meta name="description" content="Sustainable socks">
<link rel="stylesheet" href="/a.css">
<link rel="icon" href="data:image/png;base64,AAAA">
<script src="b.js"></script>
<script src="/b.js#dup"></script>
</head><body>
<img src="/missing.png">
<img src="mailto:someone@example.com">
</body></html>`

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	})
	mux.HandleFunc("/a.css", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 1000)))
	})
	mux.HandleFunc("/b.js", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("b", 2000)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzePageWeight(t *testing.T) {
	srv := pageServer(t)

	var progress []string
	data, err := analyzePageWeight(context.Background(), srv.URL+"/", func(s string) { progress = append(progress, s) })
	require.NoError(t, err)

	var got pageWeight
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Demo shop", got.Title)
	assert.Equal(t, "Sustainable socks", got.Description)
	assert.Equal(t, http.StatusOK, got.HTTPStatus)
	assert.Equal(t, int64(len(testPage)), got.DocumentBytes)

	require.Equal(t, 3, got.ResourceCount)
	assert.Equal(t, 1, got.FailedResources)
	kinds := map[string]pageAsset{}
	for _, a := range got.Resources {
		kinds[a.Kind] = a
	}
	assert.Equal(t, int64(1000), kinds["stylesheet"].Bytes)
	assert.Equal(t, int64(2000), kinds["script"].Bytes)
	assert.Equal(t, http.StatusNotFound, kinds["image"].Status)
	assert.NotEmpty(t, kinds["image"].Error)

	assert.Equal(t, int64(len(testPage))+3000, got.TotalBytes)
	energy := float64(got.TotalBytes) / 1e9 * swdKWhPerGB
	assert.InDelta(t, energy, got.EnergyUsage.Total, 1e-6)
	assert.InDelta(t, energy*swdGridIntensity, got.CarbonEmissions.Total, 1e-3)
	assert.Equal(t, "swd-v3", got.Model)

	require.Len(t, progress, 3)
	assert.Equal(t, "Found 3 resources", progress[1])
}

func TestAnalyzePageWeightErrorStatus(t *testing.T) {
	srv := pageServer(t)
	_, err := analyzePageWeight(context.Background(), srv.URL+"/nowhere", func(string) {})
	assert.ErrorContains(t, err, "404")
}

func TestRunBuiltin(t *testing.T) {
	out := make(chan tools.OutputLine, 10)
	res := runBuiltin(context.Background(), tools.ToolSpec{BinaryName: "nope", Args: []string{"x"}}, out)
	_, open := <-out
	assert.False(t, open)
	assert.Equal(t, -1, res.ExitCode)
	assert.ErrorContains(t, res.Error, "no built-in analyzer for nope")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	out = make(chan tools.OutputLine, 10)
	res = runBuiltin(context.Background(), tools.ToolSpec{BinaryName: "page-weight", Args: []string{slow.URL}, Timeout: 50 * time.Millisecond}, out)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRunPageWeightTool(t *testing.T) {
	e, db, rec := setup(t)
	srv := pageServer(t)
	ctx := context.Background()

	out, err := e.Run(ctx, Request{ToolID: "page-weight", Target: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, database.RunCompleted, out.Status, out.Error)

	stored, err := db.GetAssessmentDataByID(ctx, out.AssessmentID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "web-analysis", stored.DataType)
	var body map[string]any
	require.NoError(t, json.Unmarshal(stored.Data, &body))
	assert.Equal(t, srv.URL+"/", body["url"])

	lines := rec.get(out.RunID)
	require.NotEmpty(t, lines)
	assert.Equal(t, "Fetching "+srv.URL+"/", lines[0].Line)
	assert.True(t, lines[len(lines)-1].Done)
}

func TestBuildToolSpecBuiltin(t *testing.T) {
	e, _, _ := setup(t)
	tool, ok := e.tools.Tool("page-weight")
	require.True(t, ok)

	spec, err := buildToolSpec(tool, " https://example.com ", 0)
	require.NoError(t, err)
	assert.Equal(t, "page-weight", spec.BinaryName)
	assert.Equal(t, []string{"https://example.com"}, spec.Args)
	assert.Equal(t, 2*time.Minute, spec.Timeout)
	assert.Empty(t, spec.Dir)
}
