package category

import "strings"

// OverrideKey is the finding metadata key a parser may set to force a category.
const OverrideKey = "carbonara-category"

// Input describes one finding as seen by the mapper.
type Input struct {
	ToolID           string
	RuleID           string
	OriginalCategory string
	Message          string
	Metadata         map[string]any
}

// Pattern maps a lowercase substring to a category id.
type Pattern struct {
	Substr   string
	Category string
}

// KeywordGroup maps any of several message keywords to a category id.
type KeywordGroup struct {
	Category string
	Words    []string
}

// toolMapper is implemented once per tool that has its own override table.
type toolMapper interface {
	categorize(in Input) (string, bool)
}

// originalCategoryMapper matches the tool's own category string.
type originalCategoryMapper struct {
	table map[string]string
	// prefixes also tries the text before the first '_' ("JAVASCRIPT_ES" -> "javascript").
	prefixes bool
}

func (m originalCategoryMapper) categorize(in Input) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(in.OriginalCategory))
	if key == "" {
		return "", false
	}
	if id, ok := m.table[key]; ok {
		return id, true
	}
	if m.prefixes {
		if i := strings.IndexByte(key, '_'); i > 0 {
			if id, ok := m.table[key[:i]]; ok {
				return id, true
			}
		}
	}
	return "", false
}

// ruleMapper matches exact rule ids.
type ruleMapper struct {
	rules map[string]string
}

func (m ruleMapper) categorize(in Input) (string, bool) {
	id, ok := m.rules[in.RuleID]
	return id, ok
}

// Mapper assigns findings to catalog categories. The zero value is not
// usable; build one with NewMapper. A Mapper is immutable and safe for
// concurrent use.
type Mapper struct {
	tools    map[string]toolMapper
	patterns []Pattern
	keywords []KeywordGroup
	fallback string
}

// NewMapper returns a Mapper with the built-in tables.
func NewMapper() *Mapper {
	return &Mapper{
		tools: map[string]toolMapper{
			"semgrep":    originalCategoryMapper{table: semgrepCategories},
			"megalinter": originalCategoryMapper{table: megalinterCategories, prefixes: true},
			"eslint":     ruleMapper{rules: eslintRules},
		},
		patterns: defaultPatterns,
		keywords: messageKeywords,
		fallback: CodeQuality,
	}
}

var defaultMapper = NewMapper()

// MapFindingToCategory assigns a category id using the built-in tables. It
// never returns an empty or unknown id.
func MapFindingToCategory(toolID, ruleID, originalCategory, message string, metadata map[string]any) string {
	return defaultMapper.Map(Input{
		ToolID:           toolID,
		RuleID:           ruleID,
		OriginalCategory: originalCategory,
		Message:          message,
		Metadata:         metadata,
	})
}

// Map resolves in order: metadata override, the tool's own table, the
// generic pattern table, message keywords, and finally code-quality.
func (m *Mapper) Map(in Input) string {
	if id, ok := override(in.Metadata); ok {
		return id
	}
	if tm, ok := m.tools[strings.ToLower(in.ToolID)]; ok {
		if id, ok := tm.categorize(in); ok && IsValid(id) {
			return id
		}
	}
	if id, ok := m.matchPatterns(in); ok {
		return id
	}
	if id, ok := m.matchKeywords(in.Message); ok {
		return id
	}
	return m.fallback
}

func override(metadata map[string]any) (string, bool) {
	if metadata == nil {
		return "", false
	}
	id, ok := metadata[OverrideKey].(string)
	if !ok || !IsValid(id) {
		return "", false
	}
	return id, true
}

func (m *Mapper) matchPatterns(in Input) (string, bool) {
	text := strings.ToLower(in.RuleID + " " + in.OriginalCategory + " " + in.Message)
	for _, p := range m.patterns {
		if strings.Contains(text, p.Substr) {
			return p.Category, true
		}
	}
	return "", false
}

func (m *Mapper) matchKeywords(message string) (string, bool) {
	msg := strings.ToLower(message)
	for _, g := range m.keywords {
		for _, w := range g.Words {
			if strings.Contains(msg, w) {
				return g.Category, true
			}
		}
	}
	return "", false
}
