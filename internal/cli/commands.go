package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jamesruggles/carbonara/internal/report"
	"github.com/jamesruggles/carbonara/internal/server"
	"github.com/jamesruggles/carbonara/internal/tools"
)

func newToolsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered analysis tools and whether they are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			statuses := tools.DetectAll(cmd.Context(), reg.Tools())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), statuses)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tVERSION")
			for _, st := range statuses {
				state := "missing"
				switch {
				case st.ImportOnly:
					state = "import only"
				case st.Builtin:
					state = "built-in"
				case st.Installed:
					state = "installed"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.ID, st.Name, state, st.Version)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var format, output string
	var all bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a Markdown, PDF or SARIF report from stored data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			reg, err := a.registry()
			if err != nil {
				return err
			}
			builder, err := a.builder(reg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var projectID *int64
			if !all {
				if projectID, err = a.currentProject(ctx, db); err != nil {
					return err
				}
			}

			gen := report.NewGenerator(db, builder, reg, a.cfg.Reports.Directory)
			if output == "" {
				rpt, err := gen.Save(ctx, projectID, format)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", rpt.FilePath)
				return nil
			}

			data, err := gen.Render(ctx, projectID, format)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", report.FormatMarkdown, "report format: markdown, pdf or sarif")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of the reports directory (- for stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "include every project, not just the current one")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local JSON and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			reg, err := a.registry()
			if err != nil {
				return err
			}

			srv, err := server.New(a.cfg, db, reg, a.log)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}
