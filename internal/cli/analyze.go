package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/scanner"
	"github.com/jamesruggles/carbonara/internal/tools"
)

// linePrinter echoes run output to a terminal.
type linePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *linePrinter) Broadcast(_ string, line tools.OutputLine) {
	if line.Done {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line.Line)
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var stream, asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <tool> <target>",
		Short: "Run an analysis tool and store its result",
		Args:  cobra.ExactArgs(2),
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

			ctx := cmd.Context()
			projectID, err := a.currentProject(ctx, db)
			if err != nil {
				return err
			}

			var broadcaster scanner.Broadcaster
			if stream {
				broadcaster = &linePrinter{out: cmd.ErrOrStderr()}
			}
			exec := scanner.NewExecutor(db, reg, broadcaster, a.log, scanner.Options{DefaultTimeout: a.cfg.Tools.Timeout})

			out, err := exec.Run(ctx, scanner.Request{ToolID: args[0], Target: args[1], ProjectID: projectID})
			if err != nil {
				return err
			}
			if err := printOutcome(cmd.OutOrStdout(), out, asJSON); err != nil {
				return err
			}
			if out.Status != database.RunCompleted {
				return fmt.Errorf("%s %s: %s", args[0], out.Status, out.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "echo tool output while it runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var target, source string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import <tool> <file>",
		Short: "Store a report a tool produced outside carbonara",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			if len(raw) == 0 {
				return errors.New("report file is empty")
			}
			if source == "" {
				source = args[1]
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

			ctx := cmd.Context()
			projectID, err := a.currentProject(ctx, db)
			if err != nil {
				return err
			}

			exec := scanner.NewExecutor(db, reg, nil, a.log, scanner.Options{})
			out, err := exec.Import(ctx, scanner.ImportRequest{
				ToolID:    args[0],
				Raw:       raw,
				Target:    target,
				ProjectID: projectID,
				Source:    source,
			})
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), out, asJSON)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "target the report was produced for")
	cmd.Flags().StringVar(&source, "source", "", "source label (default is the file path)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

func printOutcome(w io.Writer, out *scanner.Outcome, asJSON bool) error {
	if asJSON {
		return writeJSON(w, out)
	}
	if out.Status != database.RunCompleted {
		fmt.Fprintf(w, "Run %s: %s\n", out.Status, out.Error)
		return nil
	}
	fmt.Fprintf(w, "Stored assessment #%d\n", out.AssessmentID)
	if r := out.Result; r != nil {
		fmt.Fprintf(w, "%d finding(s) in %d file(s): %d error, %d warning, %d info\n",
			r.Stats.TotalMatches, r.Stats.FilesScanned, r.Stats.ErrorCount, r.Stats.WarningCount, r.Stats.InfoCount)
	}
	return nil
}
