package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesruggles/carbonara/internal/registry"
	"github.com/jamesruggles/carbonara/internal/tools"
)

// DefaultTimeout applies to tools that declare no timeout of their own.
const DefaultTimeout = 10 * time.Minute

// buildToolSpec validates target for tool and expands the tool's argument
// template into a runnable spec.
func buildToolSpec(tool registry.Tool, target string, fallback time.Duration) (tools.ToolSpec, error) {
	if !tool.Runnable() {
		return tools.ToolSpec{}, fmt.Errorf("tool %s is import-only", tool.ID)
	}
	target, err := tools.ValidateTarget(tool, target)
	if err != nil {
		return tools.ToolSpec{}, err
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if tool.Builtin {
		return tools.ToolSpec{
			Name:       tool.Name,
			BinaryName: tool.ID,
			Args:       []string{target},
			Timeout:    timeout,
		}, nil
	}

	return tools.ToolSpec{
		Name:       tool.Name,
		BinaryName: tool.Command,
		Args:       tool.ExpandArgs(target),
		Dir:        workDir(tool, target),
		Timeout:    timeout,
	}, nil
}

// workDir is the directory a path tool runs in: the target itself, or the
// directory holding it.
func workDir(tool registry.Tool, target string) string {
	if tool.Target != registry.TargetPath {
		return ""
	}
	info, err := os.Stat(target)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		return target
	}
	return filepath.Dir(target)
}

// readOutput returns the tool's report: the configured output file when the
// tool writes one, stdout otherwise.
func readOutput(tool registry.Tool, spec tools.ToolSpec, stdout string) ([]byte, error) {
	if tool.OutputFile == "" {
		return []byte(stdout), nil
	}
	path := tool.OutputFile
	if !filepath.IsAbs(path) && spec.Dir != "" {
		path = filepath.Join(spec.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s report: %w", tool.ID, err)
	}
	return data, nil
}
