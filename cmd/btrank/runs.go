package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/btrank/internal/database"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/report"
)

func runsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect fits stored in the run database",
	}

	cmd.AddCommand(runsListCmd(a))
	cmd.AddCommand(runsShowCmd(a))
	cmd.AddCommand(runsDeleteCmd(a))
	return cmd
}

func runsListCmd(a *app) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			repo, closer, err := a.openRepository()
			if err != nil {
				return err
			}
			defer apperrors.SafeClose(closer, "run database")

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeRuns(cmd.OutOrStdout(), runs, f)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", database.DefaultListLimit, "Maximum number of runs to list")
	cmd.Flags().StringVarP(&format, "format", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func writeRuns(w io.Writer, runs []database.FitRun, format report.Format) error {
	switch format {
	case report.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case report.FormatYAML:
		return yaml.NewEncoder(w).Encode(runs)
	case report.FormatText:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tMETHOD\tALPHA\tFEATURES\tCOMPARISONS\tSOURCE")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%d\t%d\t%s\n",
				r.ID, r.CreatedAt.Format(time.RFC3339), r.Method, r.Alpha,
				r.FeatureCount, r.ComparisonCount, r.Source)
		}
		return tw.Flush()
	default:
		return apperrors.NewValidationError(fmt.Sprintf("runs cannot be listed as %s", format))
	}
}

func runsShowCmd(a *app) *cobra.Command {
	var (
		format string
		ranked bool
	)

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the strengths of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			repo, closer, err := a.openRepository()
			if err != nil {
				return err
			}
			defer apperrors.SafeClose(closer, "run database")

			run, err := repo.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			set, err := run.FeatureSet()
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout(), set, f, report.Options{Ranked: ranked, Method: run.Method})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "text", "Output format: text, json, yaml or csv")
	cmd.Flags().BoolVar(&ranked, "ranked", false, "Order output by descending strength")
	return cmd
}

func runsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Remove a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closer, err := a.openRepository()
			if err != nil {
				return err
			}
			defer apperrors.SafeClose(closer, "run database")

			if err := repo.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "deleted run %s\n", args[0])
			return nil
		},
	}
}
