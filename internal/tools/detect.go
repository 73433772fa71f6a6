package tools

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/jamesruggles/carbonara/internal/registry"
)

const versionProbeTimeout = 10 * time.Second

type ToolStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Binary     string `json:"binary,omitempty"`
	Installed  bool   `json:"installed"`
	ImportOnly bool   `json:"importOnly,omitempty"`
	Builtin    bool   `json:"builtin,omitempty"`
	Path       string `json:"path,omitempty"`
	Version    string `json:"version,omitempty"`
}

// DetectAll probes every runnable tool on PATH. Import-only and built-in
// tools are listed as such and never probed.
func DetectAll(ctx context.Context, list []registry.Tool) []ToolStatus {
	statuses := make([]ToolStatus, 0, len(list))

	for _, tool := range list {
		status := ToolStatus{
			ID:     tool.ID,
			Name:   tool.Name,
			Binary: tool.Command,
		}
		if !tool.Runnable() {
			status.ImportOnly = true
			statuses = append(statuses, status)
			continue
		}
		if tool.Builtin {
			status.Builtin = true
			status.Installed = true
			statuses = append(statuses, status)
			continue
		}

		path, err := exec.LookPath(tool.Command)
		if err == nil {
			status.Installed = true
			status.Path = path
			if len(tool.VersionArgs) > 0 {
				status.Version = probeVersion(ctx, path, tool.VersionArgs)
			}
		}

		statuses = append(statuses, status)
	}

	return statuses
}

func probeVersion(ctx context.Context, path string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return ""
	}
	version := strings.TrimSpace(string(out))
	// Extract first line
	if idx := strings.IndexByte(version, '\n'); idx > 0 {
		version = version[:idx]
	}
	if len(version) > 100 {
		version = version[:100]
	}
	return strings.TrimSpace(version)
}
