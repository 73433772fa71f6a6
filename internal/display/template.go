package display

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/fieldpath"
	"github.com/jamesruggles/carbonara/internal/registry"
)

var placeholder = regexp.MustCompile(`\{[^{}]*\}`)

// Paths consulted for {count} when no schema field resolves to an array.
var (
	countArrayPaths  = []string{"data.matches", "data.findings", "data.results", "data.deployments"}
	countScalarPaths = "data.stats.totalMatches,data.stats.total_matches,data.totalCount"
	totalBytesPath   = "data.totalBytes"
)

// renderLabels fills the schema's templates for one record. Records for
// which no schema field resolves get the generic "{tool} - {date}" label.
func renderLabels(r database.AssessmentData, rec map[string]any, schema *registry.DisplaySchema) (string, string) {
	date := FormatDate(r.Timestamp)
	generic := r.ToolName + " - " + date
	if schema == nil {
		return generic, date
	}

	values := make(map[string]string, len(schema.Fields))
	for _, f := range schema.Fields {
		if v := fieldpath.ExtractValue(rec, f.Path); v != nil {
			values[f.Key] = fieldpath.FormatValue(v, f.Type, f.Format)
		}
	}
	if len(values) == 0 {
		return generic, date
	}

	fill := func(tmpl string) string {
		out := strings.ReplaceAll(tmpl, "{date}", date)
		for key, v := range values {
			out = strings.ReplaceAll(out, "{"+key+"}", v)
		}
		if strings.Contains(out, "{totalKB}") {
			if kb, ok := totalKB(rec, schema); ok {
				out = strings.ReplaceAll(out, "{totalKB}", kb)
			}
		}
		if strings.Contains(out, "{count}") {
			if n, ok := count(rec, schema); ok {
				out = strings.ReplaceAll(out, "{count}", strconv.Itoa(n))
			}
		}
		return strings.TrimSpace(placeholder.ReplaceAllString(out, ""))
	}

	label := fill(schema.EntryTemplate)
	if label == "" {
		label = generic
	}
	description := fill(schema.DescriptionTemplate)
	if description == "" {
		description = date
	}
	return label, description
}

// totalKB reads the first bytes-typed field, else data.totalBytes, as whole
// kilobytes.
func totalKB(rec map[string]any, schema *registry.DisplaySchema) (string, bool) {
	for _, f := range schema.Fields {
		if f.Type != fieldpath.TypeBytes {
			continue
		}
		if n, ok := fieldpath.ToFloat(fieldpath.ExtractValue(rec, f.Path)); ok {
			return strconv.FormatFloat(fieldpath.RoundHalfUp(n/1024), 'f', -1, 64), true
		}
	}
	if n, ok := fieldpath.ToFloat(fieldpath.ExtractValue(rec, totalBytesPath)); ok {
		return strconv.FormatFloat(fieldpath.RoundHalfUp(n/1024), 'f', -1, 64), true
	}
	return "", false
}

// count is the length of the first array a schema field resolves to, then
// of a well-known findings array, then a scalar total.
func count(rec map[string]any, schema *registry.DisplaySchema) (int, bool) {
	for _, f := range schema.Fields {
		if arr, ok := fieldpath.ExtractValue(rec, f.Path).([]any); ok {
			return len(arr), true
		}
	}
	for _, p := range countArrayPaths {
		if arr, ok := fieldpath.ExtractValue(rec, p).([]any); ok {
			return len(arr), true
		}
	}
	if n, ok := fieldpath.ToFloat(fieldpath.ExtractValue(rec, countScalarPaths)); ok {
		return int(n), true
	}
	return 0, false
}
