package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/display"
)

type dataOptions struct {
	all    bool
	asJSON bool
}

func newDataCmd(a *app) *cobra.Command {
	opts := &dataOptions{}

	cmd := &cobra.Command{
		Use:   "data",
		Short: "Browse stored assessment data",
	}
	cmd.PersistentFlags().BoolVar(&opts.all, "all", false, "include every project, not just the current one")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored results grouped by tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDisplay(cmd.Context(), opts, func(svc *display.Service, projectID *int64) error {
				groups := svc.Groups(cmd.Context(), projectID)
				if opts.asJSON {
					return writeJSON(cmd.OutOrStdout(), groups)
				}
				printGroups(cmd.OutOrStdout(), groups)
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the detail fields of one stored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid assessment id %q", args[0])
			}
			return a.withDisplay(cmd.Context(), opts, func(svc *display.Service, _ *int64) error {
				details := svc.Details(cmd.Context(), id)
				if opts.asJSON {
					return writeJSON(cmd.OutOrStdout(), details)
				}
				if len(details) == 0 {
					return fmt.Errorf("assessment %d not found", id)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, d := range details {
					fmt.Fprintf(tw, "%s\t%s\n", strings.TrimSuffix(d.Label, ": "+d.FormattedValue), d.FormattedValue)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(list, show)
	cmd.RunE = list.RunE
	return cmd
}

func (a *app) withDisplay(ctx context.Context, opts *dataOptions, fn func(*display.Service, *int64) error) error {
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

	var projectID *int64
	if !opts.all {
		if projectID, err = a.currentProject(ctx, db); err != nil {
			return err
		}
	}
	return fn(display.NewService(db, builder, a.log), projectID)
}

func printGroups(w io.Writer, groups []display.DataGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No assessment data stored yet.")
		return
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%s (%d)\n", g.DisplayName, len(g.Entries))
		for _, e := range g.Entries {
			mark := e.BadgeColor.Mark()
			if mark == "" {
				mark = " "
			}
			fmt.Fprintf(w, "  %s #%-4d %s\n", mark, e.ID, e.Label)
			fmt.Fprintf(w, "         %s\n", e.Description)
		}
	}
}

func newClearCmd(a *app) *cobra.Command {
	var id int64
	var source string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored results by id or by source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (id == 0) == (source == "") {
				return errors.New("exactly one of --id or --source is required")
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			var n int64
			if id != 0 {
				deleted, err := db.DeleteAssessmentData(ctx, id)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("assessment %d not found", id)
				}
				n = 1
			} else if n, err = db.DeleteAssessmentDataBySource(ctx, source); err != nil {
				return err
			}
			a.log.Info("assessment data cleared", zap.Int64("count", n))
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d result(s)\n", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "delete one result by id")
	cmd.Flags().StringVar(&source, "source", "", "delete every result imported from source")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
