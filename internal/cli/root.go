// Package cli implements the carbonara command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/badge"
	"github.com/jamesruggles/carbonara/internal/config"
	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/display"
	"github.com/jamesruggles/carbonara/internal/logging"
	"github.com/jamesruggles/carbonara/internal/registry"
)

// DefaultConfigPath is where init writes the project config.
const DefaultConfigPath = ".carbonara/config.yaml"

// app carries state shared by subcommands once the root pre-run has loaded
// configuration.
type app struct {
	configPath string
	debug      bool

	cfg *config.Config
	log *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "carbonara",
		Short:         "Carbonara collects sustainability and code-quality assessments for a project.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", DefaultConfigPath, "config file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(a),
		newAnalyzeCmd(a),
		newImportCmd(a),
		newDataCmd(a),
		newClearCmd(a),
		newToolsCmd(a),
		newReportCmd(a),
		newServeCmd(a),
	)
	return root
}

// Execute runs the command line with ctx, which is cancelled on shutdown.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		}
		return err
	}
	return nil
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.debug {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Logging, stderr)
	zap.ReplaceGlobals(a.log)
	a.log.Debug("config loaded", zap.String("path", a.configPath), zap.String("database", cfg.Database.Path))
	return nil
}

func (a *app) openDB() (*database.DB, error) {
	db, err := database.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", a.cfg.Database.Path, err)
	}
	return db, nil
}

func (a *app) registry() (*registry.Registry, error) {
	reg, err := registry.Load(a.cfg.Tools.File)
	if err != nil {
		return nil, fmt.Errorf("loading tool registry: %w", err)
	}
	return reg, nil
}

func (a *app) builder(reg *registry.Registry) (*display.Builder, error) {
	return display.NewBuilder(reg, badge.NewService(nil), display.DefaultCacheSize)
}

// currentProject returns the id of the project registered for the working
// directory, or nil when there is none.
func (a *app) currentProject(ctx context.Context, db *database.DB) (*int64, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	p, err := db.GetProject(ctx, wd)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return &p.ID, nil
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	return abs, nil
}
