package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpucache/internal/workload"
)

// runCmd replays workload files.
var runCmd = &cobra.Command{
	Use:   "run WORKLOAD.yaml...",
	Short: "Replay workloads and print their reports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if runOpts.output != "" {
			f, err := os.Create(filepath.Clean(runOpts.output))
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		for _, path := range args {
			w, err := workload.Load(path)
			if err != nil {
				return err
			}
			if runOpts.frames > 0 {
				w.Frames = runOpts.frames
			}
			rep, err := workload.Run(cmd.Context(), w)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := rep.Encode(out, runOpts.format); err != nil {
				return err
			}
			if runOpts.strict && rep.Leaked.Total() != 0 {
				return fmt.Errorf("%s: %d device objects leaked", path, rep.Leaked.Total())
			}
		}
		return nil
	},
}

// runFlags holds the flags for the run command.
type runFlags struct {
	format string
	output string
	frames int
	strict bool
}

var runOpts runFlags

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOpts.format, "format", "f", "text", "Report format: text, yaml, json, msgpack or cbor")
	runCmd.Flags().StringVarP(&runOpts.output, "output", "o", "", "Write reports to a file instead of stdout")
	runCmd.Flags().IntVar(&runOpts.frames, "frames", 0, "Override the frame count of every workload")
	runCmd.Flags().BoolVar(&runOpts.strict, "strict", false, "Fail when objects survive cache destruction")
}
