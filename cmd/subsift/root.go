package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/framefish/subsift/internal/config"
	"github.com/framefish/subsift/internal/video"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var verboseFlag bool
	var traceFlag bool

	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "subsift",
		Short:         "Extract hardcoded subtitles from raw video into SRT",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, _, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			cfg = loaded

			writers := video.LogWriters{Ops: os.Stderr}
			if verboseFlag || cfg.Logging.Diagnostics {
				writers.Diag = os.Stderr
			}
			if traceFlag || cfg.Logging.Trace {
				writers.Trace = os.Stderr
			}
			video.SetLogWriters(writers)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable diagnostic logging")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "Enable per-frame trace logging")

	rootCmd.AddCommand(newExtractCommand(&cfg))
	rootCmd.AddCommand(newProbeCommand(&cfg))
	rootCmd.AddCommand(newMigrateCommand(&cfg))
	rootCmd.AddCommand(newRunsCommand(&cfg))

	return rootCmd
}
