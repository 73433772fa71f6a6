// Package report renders stored assessment data as Markdown, PDF and SARIF
// documents.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jamesruggles/carbonara/internal/category"
	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/display"
	"github.com/jamesruggles/carbonara/internal/model"
	"github.com/jamesruggles/carbonara/internal/registry"
)

// Report formats.
const (
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
	FormatSARIF    = "sarif"
)

var extensions = map[string]string{
	FormatMarkdown: ".md",
	FormatPDF:      ".pdf",
	FormatSARIF:    ".sarif",
}

// Formats lists the supported report formats.
func Formats() []string {
	return []string{FormatMarkdown, FormatPDF, FormatSARIF}
}

type Generator struct {
	db         *database.DB
	builder    *display.Builder
	tools      *registry.Registry
	reportsDir string
	now        func() time.Time
}

func NewGenerator(db *database.DB, builder *display.Builder, reg *registry.Registry, reportsDir string) *Generator {
	return &Generator{db: db, builder: builder, tools: reg, reportsDir: reportsDir, now: time.Now}
}

// snapshot is everything a report renders, loaded once.
type snapshot struct {
	title       string
	generatedAt time.Time
	records     []database.AssessmentData
	byID        map[int64]database.AssessmentData
	groups      []display.DataGroup
	results     []toolResult
}

// toolResult is a stored standardized result together with its record.
type toolResult struct {
	record database.AssessmentData
	result model.Result
}

func (g *Generator) load(ctx context.Context, projectID *int64) (*snapshot, error) {
	title := "All projects"
	if projectID != nil {
		project, err := g.db.GetProjectByID(ctx, *projectID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, fmt.Errorf("project %d not found", *projectID)
		}
		title = project.Name
	}

	records, err := g.db.GetAssessmentData(ctx, projectID, "")
	if err != nil {
		return nil, fmt.Errorf("loading assessment data: %w", err)
	}

	s := &snapshot{
		title:       title,
		generatedAt: g.now(),
		records:     records,
		byID:        make(map[int64]database.AssessmentData, len(records)),
		groups:      g.builder.CreateGroupedItems(records),
	}
	for _, r := range records {
		s.byID[r.ID] = r
		if !g.producesFindings(r.ToolName) {
			continue
		}
		var res model.Result
		if err := json.Unmarshal(r.Data, &res); err != nil {
			continue
		}
		s.results = append(s.results, toolResult{record: r, result: res})
	}
	return s, nil
}

func (g *Generator) producesFindings(toolID string) bool {
	if g.tools == nil {
		return false
	}
	t, ok := g.tools.Tool(toolID)
	return ok && t.Output == registry.OutputFindings
}

type categoryCount struct {
	category category.Category
	count    int
}

// categoryCounts tallies findings per category, most frequent first.
func (s *snapshot) categoryCounts() []categoryCount {
	counts := map[string]int{}
	for _, tr := range s.results {
		for _, f := range tr.result.Findings {
			counts[f.Category]++
		}
	}
	var out []categoryCount
	for _, c := range category.Catalog() {
		if n := counts[c.ID]; n > 0 {
			out = append(out, categoryCount{category: c, count: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}

func (s *snapshot) findingCount() int {
	n := 0
	for _, tr := range s.results {
		n += len(tr.result.Findings)
	}
	return n
}

// Render produces the report body in format.
func (g *Generator) Render(ctx context.Context, projectID *int64, format string) ([]byte, error) {
	if _, ok := extensions[format]; !ok {
		return nil, fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
	s, err := g.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPDF:
		return g.pdf(s)
	case FormatSARIF:
		return sarifDocument(s)
	default:
		return []byte(g.markdown(s)), nil
	}
}

// Save renders a report into the reports directory and records it.
func (g *Generator) Save(ctx context.Context, projectID *int64, format string) (*database.Report, error) {
	content, err := g.Render(ctx, projectID, format)
	if err != nil {
		return nil, err
	}

	name := "carbonara"
	if projectID != nil {
		if p, _ := g.db.GetProjectByID(ctx, *projectID); p != nil {
			name = slug(p.Name)
		}
	}

	if err := os.MkdirAll(g.reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating reports directory: %w", err)
	}
	filename := fmt.Sprintf("%s-%s%s", name, g.now().Format("20060102-150405"), extensions[format])
	path := filepath.Join(g.reportsDir, filename)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	rpt := &database.Report{
		ProjectID: projectID,
		Title:     fmt.Sprintf("Carbonara report - %s", name),
		Format:    format,
		FilePath:  path,
	}
	if err := g.db.CreateReport(ctx, rpt); err != nil {
		return nil, fmt.Errorf("saving report record: %w", err)
	}
	return rpt, nil
}

func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
	s = strings.Trim(s, "-")
	if s == "" {
		return "report"
	}
	return s
}
