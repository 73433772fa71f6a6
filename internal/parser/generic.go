package parser

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jamesruggles/carbonara/internal/category"
	"github.com/jamesruggles/carbonara/internal/fieldpath"
	"github.com/jamesruggles/carbonara/internal/model"
)

// Raw output formats understood by the generic parser.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParsingConfig drives the generic parser for tools without a dedicated one.
// Paths use fieldpath syntax, including comma-separated fallbacks.
type ParsingConfig struct {
	Format          string            `yaml:"format" json:"format,omitempty"`
	FindingsPath    string            `yaml:"findings_path" json:"findingsPath"`
	Mappings        FieldMappings     `yaml:"mappings" json:"mappings"`
	SeverityMap     map[string]string `yaml:"severity_map" json:"severityMap,omitempty"`
	CategoryMap     map[string]string `yaml:"category_map" json:"categoryMap,omitempty"`
	DefaultCategory string            `yaml:"default_category" json:"defaultCategory,omitempty"`
}

// FieldMappings locates finding fields inside one findings-array item.
// Empty entries fall back to common field names.
type FieldMappings struct {
	ID       string `yaml:"id" json:"id,omitempty"`
	File     string `yaml:"file" json:"file,omitempty"`
	Line     string `yaml:"line" json:"line,omitempty"`
	Column   string `yaml:"column" json:"column,omitempty"`
	Severity string `yaml:"severity" json:"severity,omitempty"`
	Message  string `yaml:"message" json:"message,omitempty"`
	Rule     string `yaml:"rule" json:"rule,omitempty"`
	Type     string `yaml:"type" json:"type,omitempty"`
}

var defaultMappings = FieldMappings{
	ID:       "id",
	File:     "file,filePath,path",
	Line:     "line,startLine,location.line",
	Column:   "column,startColumn,location.column",
	Severity: "severity,level",
	Message:  "message,description",
	Rule:     "rule,ruleId,rule_id",
	Type:     "type,category",
}

func (m FieldMappings) withDefaults() FieldMappings {
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return FieldMappings{
		ID:       pick(m.ID, defaultMappings.ID),
		File:     pick(m.File, defaultMappings.File),
		Line:     pick(m.Line, defaultMappings.Line),
		Column:   pick(m.Column, defaultMappings.Column),
		Severity: pick(m.Severity, defaultMappings.Severity),
		Message:  pick(m.Message, defaultMappings.Message),
		Rule:     pick(m.Rule, defaultMappings.Rule),
		Type:     pick(m.Type, defaultMappings.Type),
	}
}

// Severity levels produced by the keyword guesser.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
)

// GenericParser is the config-driven parser for one tool.
type GenericParser struct {
	ToolID string
	Config ParsingConfig
}

func (g GenericParser) Parse(raw []byte, target string) (*model.Result, error) {
	return ParseGeneric(g.ToolID, g.Config, raw, target)
}

// ParseGeneric decodes raw output (JSON unless cfg.Format is yaml), locates
// the findings array at cfg.FindingsPath and maps each object item to a
// finding. A missing findings path yields an empty result that records the
// miss in its Errors; a path that resolves to something other than an array
// is a parse error.
func ParseGeneric(toolID string, cfg ParsingConfig, raw []byte, target string) (*model.Result, error) {
	var doc any
	var err error
	if strings.EqualFold(cfg.Format, FormatYAML) {
		err = yaml.Unmarshal(raw, &doc)
	} else {
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, &ParseError{ToolID: toolID, Err: err}
	}

	items := doc
	if strings.TrimSpace(cfg.FindingsPath) != "" {
		items = fieldpath.ExtractValue(doc, cfg.FindingsPath)
	}
	if items == nil {
		res := newResult(toolID, target, nil)
		res.Errors = append(res.Errors, fmt.Sprintf("findings path %q not found in output", cfg.FindingsPath))
		return res, nil
	}
	list, ok := items.([]any)
	if !ok {
		return nil, &ParseError{ToolID: toolID, Err: fmt.Errorf("findings path %q is not an array", cfg.FindingsPath)}
	}

	m := cfg.Mappings.withDefaults()
	findings := make([]model.Finding, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		findings = append(findings, genericFinding(toolID, cfg, m, obj))
	}
	return newResult(toolID, target, findings), nil
}

func genericFinding(toolID string, cfg ParsingConfig, m FieldMappings, item map[string]any) model.Finding {
	get := func(path string) string {
		return fieldpath.Stringify(fieldpath.ExtractValue(item, path))
	}
	file := get(m.File)
	rule := get(m.Rule)
	typ := get(m.Type)
	message := get(m.Message)
	rawSeverity := get(m.Severity)
	line := positiveInt(fieldpath.ExtractValue(item, m.Line), 1)
	col := positiveInt(fieldpath.ExtractValue(item, m.Column), 1)

	meta := map[string]any{}
	if rawSeverity != "" {
		meta["originalSeverity"] = rawSeverity
	}
	if typ != "" {
		meta["type"] = typ
	}
	if v, ok := item[category.OverrideKey]; ok {
		meta[category.OverrideKey] = v
	}

	severity, level, guessed := resolveSeverity(cfg.SeverityMap, rawSeverity)
	if guessed {
		meta["severityLevel"] = level
	}

	cat := resolveCategory(toolID, cfg, rule, typ, message, meta)
	meta["impact"] = estimateImpact(level, cat)

	id := get(m.ID)
	if id == "" {
		id = fmt.Sprintf("%s-%s-%d-%d", orString(rule, "unknown"), orString(file, "unknown"), line, col)
	}

	return model.Finding{
		ID:       id,
		FilePath: file,
		Location: model.Location{StartLine: line, StartColumn: col, EndLine: line, EndColumn: col},
		Severity: severity,
		Message:  message,
		Category: cat,
		RuleID:   rule,
		Fix:      &model.Fix{Description: fixSuggestion(cat, rule)},
		Metadata: meta,
	}
}

func positiveInt(v any, def int) int {
	f, ok := fieldpath.ToFloat(v)
	if !ok || f < 1 {
		return def
	}
	return int(f)
}

// resolveSeverity consults the configured map (case-insensitive keys, values
// may be a finding severity or a level) before falling back to the keyword
// guesser. guessed reports whether the guesser decided.
func resolveSeverity(severityMap map[string]string, raw string) (model.Severity, string, bool) {
	mapped, ok := severityMap[raw]
	if !ok {
		for k, v := range severityMap {
			if strings.EqualFold(k, raw) {
				mapped, ok = v, true
				break
			}
		}
	}
	if ok {
		if sev, valid := model.ParseSeverity(mapped); valid {
			return sev, severityLevel(sev), false
		}
		level := strings.ToLower(strings.TrimSpace(mapped))
		if sev, valid := levelSeverity(level); valid {
			return sev, level, false
		}
	}
	level := guessSeverityLevel(raw)
	sev, _ := levelSeverity(level)
	return sev, level, true
}

func guessSeverityLevel(raw string) string {
	s := strings.ToUpper(raw)
	switch {
	case strings.Contains(s, "CRITICAL"), strings.Contains(s, "BLOCKER"):
		return LevelCritical
	case strings.Contains(s, "MAJOR"), strings.Contains(s, "HIGH"):
		return LevelHigh
	case strings.Contains(s, "MINOR"), strings.Contains(s, "MEDIUM"):
		return LevelMedium
	default:
		return LevelLow
	}
}

func levelSeverity(level string) (model.Severity, bool) {
	switch level {
	case LevelCritical, LevelHigh:
		return model.SeverityError, true
	case LevelMedium:
		return model.SeverityWarning, true
	case LevelLow:
		return model.SeverityInfo, true
	default:
		return "", false
	}
}

func severityLevel(sev model.Severity) string {
	switch sev {
	case model.SeverityError:
		return LevelHigh
	case model.SeverityWarning:
		return LevelMedium
	default:
		return LevelLow
	}
}

// resolveCategory tries the configured category map (keys matched as
// case-insensitive substrings of the rule, in key order), then the default
// category, then the shared category mapper.
func resolveCategory(toolID string, cfg ParsingConfig, rule, typ, message string, meta map[string]any) string {
	if len(cfg.CategoryMap) > 0 && rule != "" {
		keys := make([]string, 0, len(cfg.CategoryMap))
		for k := range cfg.CategoryMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lowerRule := strings.ToLower(rule)
		for _, k := range keys {
			if k != "" && strings.Contains(lowerRule, strings.ToLower(k)) && category.IsValid(cfg.CategoryMap[k]) {
				return cfg.CategoryMap[k]
			}
		}
	}
	if category.IsValid(cfg.DefaultCategory) {
		return cfg.DefaultCategory
	}
	return category.MapFindingToCategory(toolID, rule, typ, message, meta)
}

var severityWeights = map[string]int{
	LevelCritical: 4,
	LevelHigh:     3,
	LevelMedium:   2,
	LevelLow:      1,
}

var categoryWeights = map[string]int{
	category.PerformanceCritical:   3,
	category.NetworkEfficiency:     3,
	category.SustainabilityPattern: 3,
	category.ResourceOptimization:  2,
	category.DataEfficiency:        2,
	category.SecurityVulnerability: 2,
	category.CodeQuality:           1,
	category.Accessibility:         1,
}

// estimateImpact bands severityWeight x typeWeight into High/Medium/Low.
func estimateImpact(level, cat string) string {
	score := severityWeights[level] * categoryWeights[cat]
	switch {
	case score >= 9:
		return "High"
	case score >= 4:
		return "Medium"
	default:
		return "Low"
	}
}

var suggestions = map[string]string{
	category.PerformanceCritical:   "Remove unnecessary computation or blocking work from this code path.",
	category.ResourceOptimization:  "Remove unused code and release resources once they are no longer needed.",
	category.NetworkEfficiency:     "Batch, cache or compress these requests to cut network transfers.",
	category.DataEfficiency:        "Limit the data read or transferred and avoid queries inside loops.",
	category.SecurityVulnerability: "Review and remediate the reported vulnerability.",
	category.CodeQuality:           "Refactor the code to follow the rule's recommendation.",
	category.Accessibility:         "Make the element usable with assistive technologies.",
	category.SustainabilityPattern: "Let the device idle between work and avoid continuous polling.",
}

func fixSuggestion(cat, rule string) string {
	s := suggestions[cat]
	if rule == "" {
		return s
	}
	return fmt.Sprintf("%s (%s)", s, rule)
}
