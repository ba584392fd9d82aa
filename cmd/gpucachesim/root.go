package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gogpu/gpucache"
	gpulogrus "github.com/gogpu/gpucache/log/logrus"
	gpuzap "github.com/gogpu/gpucache/log/zap"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gpucachesim",
	Short: "GPU object cache simulator",
	Long: `gpucachesim replays frame workloads against an in-memory device.

Each workload describes the render passes drawn per frame, how many
descriptor sets are requested and how many of them repeat. The report
shows hit rates, pool growth and retired-pool reclamation.`,
	Version:           gpucache.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

type rootFlags struct {
	logger  string
	verbose bool
}

var rootOpts rootFlags

// syncLog flushes the active logger backend, if it buffers.
var syncLog = func() {}

// Execute runs the root command.
func Execute() error {
	defer func() { syncLog() }()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootOpts.logger, "logger", "text", "Log backend: text, json, zap, logrus or none")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.verbose, "verbose", "v", false, "Log cache misses and prune sweeps")
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if rootOpts.verbose {
		level = slog.LevelDebug
	}

	switch rootOpts.logger {
	case "none":
		gpucache.SetLogger(nil)
	case "text":
		gpucache.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	case "json":
		gpucache.SetLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	case "zap":
		cfg := zap.NewProductionConfig()
		if rootOpts.verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("build zap logger: %w", err)
		}
		syncLog = func() { _ = l.Sync() }
		gpucache.SetLogger(gpuzap.New(l))
	case "logrus":
		l := logrus.New()
		l.SetOutput(os.Stderr)
		if rootOpts.verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		gpucache.SetLogger(gpulogrus.New(l))
	default:
		return fmt.Errorf("unknown logger %q", rootOpts.logger)
	}
	return nil
}
