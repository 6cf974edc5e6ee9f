// Package main provides the btrank command line tool. It fits
// Bradley-Terry strengths for the features named in a header file from a
// log of "A > B" comparisons, and manages fits saved to the run database.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/btrank/internal/config"
	"github.com/ZanzyTHEbar/btrank/internal/database"
	"github.com/ZanzyTHEbar/btrank/internal/monitoring"
)

const appName = "btrank"

// Set at build time with -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	envFile  string
	dataDir  string
	logLevel string

	cfg    *config.Config
	logger *monitoring.Logger
}

func (a *app) setup(cmd *cobra.Command) error {
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}

	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = a.dataDir
	}
	level := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = a.logLevel
	}

	a.cfg = cfg
	a.logger = monitoring.NewLoggerTo(cmd.ErrOrStderr(), monitoring.ParseLevel(level), false)
	return nil
}

func (a *app) openRepository() (*database.Repository, io.Closer, error) {
	db, err := database.NewDB(a.cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return database.NewRepository(db), db, nil
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Fit pairwise-comparison strengths for named features",
		Long: `btrank estimates a Bradley-Terry strength for every feature named in a
header row, using a log of "A > B" comparison lines that refer to the
features by their survey labels.

Settings are read from BTRANK_* environment variables and an optional
.env file; flags override them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Load settings from this .env file (default ./.env when present)")
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "./data", "Directory holding the run database")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(fitCmd(a))
	cmd.AddCommand(runsCmd(a))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}
