// Package display turns stored assessment records into grouped, labelled
// and badge-coloured entries driven by each tool's display schema.
package display

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jamesruggles/carbonara/internal/badge"
	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/fieldpath"
	"github.com/jamesruggles/carbonara/internal/registry"
)

// DefaultCacheSize bounds the label memo.
const DefaultCacheSize = 1024

// DateLayout renders entry dates.
const DateLayout = "2006-01-02 15:04"

// SchemaSource looks up display schemas by tool id.
type SchemaSource interface {
	ToolSchema(toolID string) *registry.DisplaySchema
	UsesDeploymentBadge(toolID string) bool
}

type DataGroup struct {
	ToolName    string      `json:"toolName"`
	DisplayName string      `json:"displayName"`
	Icon        string      `json:"icon"`
	Entries     []DataEntry `json:"entries"`
}

type DataEntry struct {
	ID          int64       `json:"id"`
	ToolName    string      `json:"toolName"`
	DataType    string      `json:"dataType"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
	Source      string      `json:"source,omitempty"`
	BadgeColor  badge.Color `json:"badgeColor"`
}

type DataDetail struct {
	Key            string `json:"key"`
	Label          string `json:"label"`
	Value          any    `json:"value"`
	FormattedValue string `json:"formattedValue"`
	Type           string `json:"type"`
}

type labels struct {
	label, description string
}

// Builder is safe for concurrent use.
type Builder struct {
	schemas SchemaSource
	badges  *badge.Service
	memo    *lru.Cache[int64, labels]
}

func NewBuilder(schemas SchemaSource, badges *badge.Service, cacheSize int) (*Builder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	memo, err := lru.New[int64, labels](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create label cache: %w", err)
	}
	if badges == nil {
		badges = badge.NewService(nil)
	}
	return &Builder{schemas: schemas, badges: badges, memo: memo}, nil
}

// FormatDate renders t in the local time zone.
func FormatDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// CreateGroupedItems buckets records by tool. Groups are ordered by tool
// name and entries newest first, whatever the input order.
func (b *Builder) CreateGroupedItems(records []database.AssessmentData) []DataGroup {
	byTool := make(map[string][]database.AssessmentData)
	for _, r := range records {
		byTool[r.ToolName] = append(byTool[r.ToolName], r)
	}
	tools := make([]string, 0, len(byTool))
	for t := range byTool {
		tools = append(tools, t)
	}
	sort.Strings(tools)

	groups := make([]DataGroup, 0, len(tools))
	for _, tool := range tools {
		recs := byTool[tool]
		sort.SliceStable(recs, func(i, j int) bool {
			if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
				return recs[i].Timestamp.After(recs[j].Timestamp)
			}
			return recs[i].ID > recs[j].ID
		})

		schema := b.schema(tool)
		group := DataGroup{
			ToolName:    tool,
			DisplayName: "Analysis results from " + tool,
		}
		if schema != nil {
			group.Icon = schema.Icon
			if schema.GroupName != "" {
				group.DisplayName = schema.GroupName
			}
		}

		decoded := make([]map[string]any, len(recs))
		for i, r := range recs {
			decoded[i] = recordMap(r)
		}
		colors := b.colors(tool, schema, decoded)

		group.Entries = make([]DataEntry, len(recs))
		for i, r := range recs {
			l := b.labels(r, decoded[i], schema)
			group.Entries[i] = DataEntry{
				ID:          r.ID,
				ToolName:    r.ToolName,
				DataType:    r.DataType,
				Label:       l.label,
				Description: l.description,
				Timestamp:   r.Timestamp,
				Source:      r.Source,
				BadgeColor:  colors[i],
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// CreateDataDetails lists every schema field that resolves for record. When
// no schema exists or none of its fields resolve, only the tool name and
// date are shown.
func (b *Builder) CreateDataDetails(record database.AssessmentData) []DataDetail {
	rec := recordMap(record)
	var details []DataDetail
	if schema := b.schema(record.ToolName); schema != nil {
		for _, f := range schema.Fields {
			v := fieldpath.ExtractValue(rec, f.Path)
			if v == nil {
				continue
			}
			formatted := fieldpath.FormatValue(v, f.Type, f.Format)
			details = append(details, DataDetail{
				Key:            f.Key,
				Label:          f.Label + ": " + formatted,
				Value:          v,
				FormattedValue: formatted,
				Type:           f.Type,
			})
		}
	}
	if len(details) > 0 {
		return details
	}

	date := FormatDate(record.Timestamp)
	return []DataDetail{
		{Key: "tool", Label: "Tool: " + record.ToolName, Value: record.ToolName, FormattedValue: record.ToolName, Type: fieldpath.TypeString},
		{Key: "timestamp", Label: "Date: " + date, Value: record.Timestamp, FormattedValue: date, Type: fieldpath.TypeString},
	}
}

func (b *Builder) schema(tool string) *registry.DisplaySchema {
	if b.schemas == nil {
		return nil
	}
	s := b.schemas.ToolSchema(tool)
	if s.IsEmpty() {
		return nil
	}
	return s
}

func (b *Builder) labels(r database.AssessmentData, rec map[string]any, schema *registry.DisplaySchema) labels {
	if r.ID != 0 {
		if l, ok := b.memo.Get(r.ID); ok {
			return l
		}
	}
	label, description := renderLabels(r, rec, schema)
	l := labels{label: label, description: description}
	if r.ID != 0 {
		b.memo.Add(r.ID, l)
	}
	return l
}

// recordMap exposes a record to path expressions under the stored column
// names, with data decoded.
func recordMap(r database.AssessmentData) map[string]any {
	var data any
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			data = nil
		}
	}
	var projectID any
	if r.ProjectID != nil {
		projectID = float64(*r.ProjectID)
	}
	return map[string]any{
		"id":         float64(r.ID),
		"project_id": projectID,
		"tool_name":  r.ToolName,
		"data_type":  r.DataType,
		"data":       data,
		"timestamp":  r.Timestamp.UTC().Format(time.RFC3339),
		"source":     r.Source,
	}
}
