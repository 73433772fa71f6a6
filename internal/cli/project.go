package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jamesruggles/carbonara/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Register a project and write a default config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := absPath(dir)
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(abs)
			}

			if err := writeDefaultConfig(a.configPath); err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			existing, err := db.GetProject(ctx, abs)
			if err != nil {
				return err
			}
			if existing != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Project %q already initialized (id %d)\n", existing.Name, existing.ID)
				return nil
			}

			id, err := db.CreateProject(ctx, name, abs, map[string]any{"initializedBy": "cli"})
			if err != nil {
				return err
			}
			a.log.Info("project created", zap.Int64("id", id), zap.String("path", abs))
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized project %q (id %d) at %s\n", name, id, abs)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name (default is the directory name)")
	return cmd
}

// writeDefaultConfig creates path with the default settings unless it
// already exists.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
