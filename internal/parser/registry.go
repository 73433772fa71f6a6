package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jamesruggles/carbonara/internal/model"
)

// Parser turns one tool's raw output into a normalized result.
type Parser interface {
	Parse(raw []byte, target string) (*model.Result, error)
}

// Func adapts a plain function to Parser.
type Func func(raw []byte, target string) (*model.Result, error)

func (f Func) Parse(raw []byte, target string) (*model.Result, error) { return f(raw, target) }

// ConfigSource supplies generic parsing configs for tools without a
// dedicated parser.
type ConfigSource interface {
	ParsingConfig(toolID string) *ParsingConfig
}

// Registry dispatches raw output to a parser by tool id.
type Registry struct {
	parsers map[string]Parser
	configs ConfigSource
}

// NewRegistry returns a registry with the built-in Semgrep, MegaLinter and
// ESLint parsers. configs may be nil.
func NewRegistry(configs ConfigSource) *Registry {
	return &Registry{
		parsers: map[string]Parser{
			ToolSemgrep:    Func(ParseSemgrep),
			ToolMegaLinter: Func(ParseMegaLinter),
			ToolESLint:     Func(ParseESLint),
		},
		configs: configs,
	}
}

// Lookup returns the parser for toolID: a built-in one, or a GenericParser
// when the config source knows the tool.
func (r *Registry) Lookup(toolID string) (Parser, bool) {
	id := strings.ToLower(strings.TrimSpace(toolID))
	if p, ok := r.parsers[id]; ok {
		return p, true
	}
	if r.configs != nil {
		if cfg := r.configs.ParsingConfig(toolID); cfg != nil {
			return GenericParser{ToolID: toolID, Config: *cfg}, true
		}
	}
	return nil, false
}

// Parse normalizes raw output for toolID.
func (r *Registry) Parse(toolID string, raw []byte, target string) (*model.Result, error) {
	p, ok := r.Lookup(toolID)
	if !ok {
		return nil, fmt.Errorf("no parser for tool %q", toolID)
	}
	return p.Parse(raw, target)
}

// BuiltIn lists the tool ids with dedicated parsers.
func (r *Registry) BuiltIn() []string {
	ids := make([]string, 0, len(r.parsers))
	for id := range r.parsers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
