// Package registry describes the analysis tools Carbonara knows how to run,
// import and display.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jamesruggles/carbonara/internal/parser"
)

//go:embed tools.yaml
var builtinTools []byte

// Output kinds.
const (
	OutputFindings = "findings"
	OutputRaw      = "raw"
)

// Target kinds.
const (
	TargetPath = "path"
	TargetURL  = "url"
)

// BadgeDeployment marks tools whose badge uses the highest carbon intensity
// among data.deployments[].
const BadgeDeployment = "deployment"

// TargetPlaceholder is replaced in Args by the analysis target.
const TargetPlaceholder = "{target}"

// Field is one value a display schema pulls out of a stored record.
type Field struct {
	Key    string `yaml:"key" json:"key"`
	Label  string `yaml:"label" json:"label"`
	Path   string `yaml:"path" json:"path"`
	Type   string `yaml:"type" json:"type"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// DisplaySchema tells the display builder how to label a tool's records.
type DisplaySchema struct {
	Icon                string  `yaml:"icon" json:"icon"`
	GroupName           string  `yaml:"group_name" json:"groupName"`
	EntryTemplate       string  `yaml:"entry_template" json:"entryTemplate"`
	DescriptionTemplate string  `yaml:"description_template" json:"descriptionTemplate"`
	Fields              []Field `yaml:"fields" json:"fields"`
}

// IsEmpty reports whether the schema carries nothing usable.
func (s *DisplaySchema) IsEmpty() bool {
	return s == nil || (s.GroupName == "" && s.EntryTemplate == "" && s.DescriptionTemplate == "" && len(s.Fields) == 0)
}

type Tool struct {
	ID          string                `yaml:"id" json:"id"`
	Name        string                `yaml:"name" json:"name"`
	Description string                `yaml:"description" json:"description"`
	Builtin     bool                  `yaml:"builtin" json:"builtin,omitempty"`
	Command     string                `yaml:"command" json:"command,omitempty"`
	Args        []string              `yaml:"args" json:"args,omitempty"`
	Target      string                `yaml:"target" json:"target"`
	ExitCodes   []int                 `yaml:"exit_codes" json:"exitCodes,omitempty"`
	VersionArgs []string              `yaml:"version_args" json:"-"`
	Timeout     time.Duration         `yaml:"timeout" json:"-"`
	Output      string                `yaml:"output" json:"output"`
	OutputFile  string                `yaml:"output_file" json:"outputFile,omitempty"`
	DataType    string                `yaml:"data_type" json:"dataType"`
	Parsing     *parser.ParsingConfig `yaml:"parsing" json:"parsing,omitempty"`
	Display     *DisplaySchema        `yaml:"display" json:"display,omitempty"`
	Badge       string                `yaml:"badge" json:"badge,omitempty"`
}

// Runnable reports whether the tool can be run, as opposed to import-only.
func (t Tool) Runnable() bool { return t.Builtin || t.Command != "" }

// ExpandArgs substitutes target into the argument template.
func (t Tool) ExpandArgs(target string) []string {
	out := make([]string, len(t.Args))
	for i, a := range t.Args {
		out[i] = strings.ReplaceAll(a, TargetPlaceholder, target)
	}
	return out
}

// AcceptsExit reports whether code is a successful exit for the tool. With
// no configured codes only 0 is accepted.
func (t Tool) AcceptsExit(code int) bool {
	if len(t.ExitCodes) == 0 {
		return code == 0
	}
	for _, c := range t.ExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (t Tool) validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tool id is required")
	}
	switch t.Output {
	case OutputFindings, OutputRaw:
	default:
		return fmt.Errorf("tool %s: unknown output kind %q", t.ID, t.Output)
	}
	switch t.Target {
	case TargetPath, TargetURL:
	default:
		return fmt.Errorf("tool %s: unknown target kind %q", t.ID, t.Target)
	}
	if t.DataType == "" {
		return fmt.Errorf("tool %s: data_type is required", t.ID)
	}
	if t.Builtin && t.Command != "" {
		return fmt.Errorf("tool %s: built-in tools take no command", t.ID)
	}
	if t.Display != nil {
		for i, f := range t.Display.Fields {
			if f.Key == "" || f.Path == "" {
				return fmt.Errorf("tool %s: display field %d needs key and path", t.ID, i)
			}
		}
	}
	return nil
}

type toolsFile struct {
	Tools []Tool `yaml:"tools"`
}

// Registry is an immutable, id-indexed tool table.
type Registry struct {
	tools map[string]Tool
}

// New validates tools and indexes them by id. Later entries replace earlier
// ones with the same id.
func New(tools []Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := t.validate(); err != nil {
			return nil, err
		}
		r.tools[t.ID] = t
	}
	return r, nil
}

// Builtin returns the registry of embedded tools.
func Builtin() (*Registry, error) {
	tools, err := decode(builtinTools)
	if err != nil {
		return nil, fmt.Errorf("decode builtin tools: %w", err)
	}
	return New(tools)
}

// Load returns the embedded tools overlaid with the user tools file at path.
// An empty path or a missing file yields the embedded tools alone.
func Load(path string) (*Registry, error) {
	tools, err := decode(builtinTools)
	if err != nil {
		return nil, fmt.Errorf("decode builtin tools: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read tools file: %w", err)
		}
		if err == nil {
			user, err := decode(data)
			if err != nil {
				return nil, fmt.Errorf("parse tools file %s: %w", path, err)
			}
			tools = append(tools, user...)
		}
	}
	return New(tools)
}

func decode(data []byte) ([]Tool, error) {
	var f toolsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Tools, nil
}

// Tools lists all tools sorted by id.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Tool(id string) (Tool, bool) {
	t, ok := r.tools[id]
	return t, ok
}

// ToolSchema returns the tool's display schema, or nil when the tool is
// unknown or its schema is empty.
func (r *Registry) ToolSchema(id string) *DisplaySchema {
	t, ok := r.tools[id]
	if !ok || t.Display.IsEmpty() {
		return nil
	}
	return t.Display
}

// ParsingConfig returns the generic parsing config for id, if any.
func (r *Registry) ParsingConfig(id string) *parser.ParsingConfig {
	t, ok := r.tools[id]
	if !ok {
		return nil
	}
	return t.Parsing
}

// UsesDeploymentBadge reports whether id's badge comes from deployments.
func (r *Registry) UsesDeploymentBadge(id string) bool {
	t, ok := r.tools[id]
	return ok && t.Badge == BadgeDeployment
}
