package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/btrank/internal/comparison"
	"github.com/ZanzyTHEbar/btrank/internal/database"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/features"
	"github.com/ZanzyTHEbar/btrank/internal/optimizer"
	"github.com/ZanzyTHEbar/btrank/internal/report"
)

type fitFlags struct {
	featuresPath string
	header       string
	exclude      []string
	renames      []string
	comparisons  string
	method       string
	alpha        float64
	unique       bool
	format       string
	ranked       bool
	save         bool
}

func fitCmd(a *app) *cobra.Command {
	f := &fitFlags{}

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit feature strengths from a comparison log",
		Example: `  btrank fit --features survey.csv --comparisons answers.txt
  btrank fit --header "Age,Price,Brand" --exclude 0 --rename Price=price \
      --comparisons answers.txt --ranked --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd, a, f)
		},
	}

	cmd.Flags().StringVar(&f.featuresPath, "features", "", "File whose first line is the comma separated feature header")
	cmd.Flags().StringVar(&f.header, "header", "", "Comma separated feature header given inline")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Header entries to drop, by position or name, applied in order")
	cmd.Flags().StringArrayVar(&f.renames, "rename", nil, "Set a survey label as Feature=label (repeatable)")
	cmd.Flags().StringVar(&f.comparisons, "comparisons", "", "Comparison log with one \"A > B\" line per answer")
	cmd.Flags().StringVar(&f.method, "method", "", "Optimizer: newton or mm (default from BTRANK_METHOD)")
	cmd.Flags().Float64Var(&f.alpha, "alpha", optimizer.DefaultAlpha, "Regularization strength")
	cmd.Flags().BoolVar(&f.unique, "unique", false, "Reject duplicate feature names and survey labels")
	cmd.Flags().StringVarP(&f.format, "format", "o", "text", "Output format: text, json, yaml or csv")
	cmd.Flags().BoolVar(&f.ranked, "ranked", false, "Order output by descending strength")
	cmd.Flags().BoolVar(&f.save, "save", false, "Store the fit in the run database")

	cmd.MarkFlagsMutuallyExclusive("features", "header")
	cmd.MarkFlagsOneRequired("features", "header")
	_ = cmd.MarkFlagRequired("comparisons")

	return cmd
}

func parseRenames(values []string) ([][2]string, error) {
	out := make([][2]string, 0, len(values))
	for _, v := range values {
		feature, label, ok := strings.Cut(v, "=")
		if !ok || feature == "" || label == "" {
			return nil, apperrors.NewValidationError(fmt.Sprintf("rename %q must look like Feature=label", v))
		}
		out = append(out, [2]string{feature, label})
	}
	return out, nil
}

func runFit(cmd *cobra.Command, a *app, f *fitFlags) error {
	format, err := report.ParseFormat(f.format)
	if err != nil {
		return err
	}
	renames, err := parseRenames(f.renames)
	if err != nil {
		return err
	}

	optCfg := a.cfg.OptimizerConfig()
	if cmd.Flags().Changed("alpha") {
		optCfg.Alpha = f.alpha
	}
	method := a.cfg.Method
	if f.method != "" {
		method = f.method
	}
	opt, err := optimizer.New(method, optCfg)
	if err != nil {
		return err
	}

	var opts []features.Option
	if f.unique {
		opts = append(opts, features.WithUniqueNames())
	}
	exclude := features.ParseExclusions(f.exclude)

	var set *features.FeatureSet
	source := f.featuresPath
	if f.featuresPath != "" {
		set, err = features.FromFile(f.featuresPath, exclude, opts...)
	} else {
		source = "inline"
		set, err = features.FromReader(strings.NewReader(f.header), exclude, opts...)
	}
	if err != nil {
		return err
	}

	for _, rn := range renames {
		if err := set.Rename(rn[0], rn[1]); err != nil {
			return err
		}
	}

	pairs, err := comparison.ParseFile(f.comparisons, set.ItemKeyForSurveyName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	start := time.Now()
	if err := set.FitPairs(ctx, pairs,
		features.WithOptimizer(opt),
		features.WithLogger(a.logger.Logger),
	); err != nil {
		return err
	}

	runID := ""
	if f.save {
		repo, closer, err := a.openRepository()
		if err != nil {
			return err
		}
		defer apperrors.SafeClose(closer, "run database")

		run := database.NewFitRun(set, source, opt.Method(), optCfg.Alpha, len(pairs))
		if err := repo.SaveRun(ctx, run); err != nil {
			return err
		}
		runID = run.ID
		fmt.Fprintf(cmd.ErrOrStderr(), "saved run %s\n", runID)
	}
	a.logger.FitLogger(runID, opt.Method(), set.Len(), len(pairs), time.Since(start), false)

	return report.Render(cmd.OutOrStdout(), set, format, report.Options{
		Ranked: f.ranked,
		Method: opt.Method(),
	})
}
