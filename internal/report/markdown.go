package report

import (
	"fmt"
	"strings"
)

func (g *Generator) markdown(s *snapshot) string {
	var b strings.Builder

	// Title
	b.WriteString(fmt.Sprintf("# Carbonara Assessment Report: %s\n\n", s.title))
	b.WriteString(fmt.Sprintf("**Generated:** %s  \n", s.generatedAt.Format("January 2, 2006 15:04:05 MST")))
	b.WriteString("**Tool:** Carbonara  \n\n")

	// Executive Summary
	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("This report covers %d stored result(s) from %d tool(s). ", len(s.records), len(s.groups)))
	b.WriteString(fmt.Sprintf("A total of %d finding(s) were recorded.\n\n", s.findingCount()))

	if counts := s.categoryCounts(); len(counts) > 0 {
		b.WriteString("| Category | Findings | Environmental impact | Priority |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, c := range counts {
			b.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n", c.category.Name, c.count, c.category.EnvironmentalImpact, c.category.Priority))
		}
		b.WriteString("\n")
	}

	if len(s.groups) == 0 {
		b.WriteString("No assessment data has been stored yet.\n")
		return b.String()
	}

	// One section per tool group
	for _, group := range s.groups {
		b.WriteString(fmt.Sprintf("## %s\n\n", group.DisplayName))
		for _, entry := range group.Entries {
			mark := entry.BadgeColor.Mark()
			if mark != "" {
				mark += " "
			}
			b.WriteString(fmt.Sprintf("### %s%s\n\n", mark, entry.Label))
			b.WriteString(fmt.Sprintf("%s  \n", entry.Description))
			if entry.Source != "" {
				b.WriteString(fmt.Sprintf("**Source:** `%s`  \n", entry.Source))
			}
			b.WriteString("\n")

			details := g.builder.CreateDataDetails(s.byID[entry.ID])
			b.WriteString("| Field | Value |\n")
			b.WriteString("|---|---|\n")
			for _, d := range details {
				label := strings.TrimSuffix(d.Label, ": "+d.FormattedValue)
				b.WriteString(fmt.Sprintf("| %s | %s |\n", escapeCell(label), escapeCell(d.FormattedValue)))
			}
			b.WriteString("\n")
		}
	}

	// Findings appendix
	if s.findingCount() > 0 {
		b.WriteString("## Appendix: Findings\n\n")
		for _, tr := range s.results {
			if len(tr.result.Findings) == 0 {
				continue
			}
			b.WriteString(fmt.Sprintf("### %s - %s\n\n", tr.record.ToolName, tr.result.Metadata.Target))
			b.WriteString("| Severity | Category | Location | Message |\n")
			b.WriteString("|---|---|---|---|\n")
			for _, f := range tr.result.Findings {
				msg := f.Message
				if len(msg) > 120 {
					msg = msg[:120] + "..."
				}
				b.WriteString(fmt.Sprintf("| %s | %s | `%s:%d` | %s |\n", f.Severity, f.Category, f.FilePath, f.Location.StartLine, escapeCell(msg)))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
