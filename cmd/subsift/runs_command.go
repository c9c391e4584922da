package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/framefish/subsift/internal/config"
	"github.com/framefish/subsift/internal/store"
	"github.com/framefish/subsift/internal/subrip"
)

func newRunsCommand(cfg **config.Config) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted extraction runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := (*cfg).Output.DatabasePath
			if path == "" {
				return fmt.Errorf("no database path: set [output] database_path")
			}
			db, err := store.NewDB(path)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.Runs(cmd.Context(), limitFlag)
			if err != nil {
				return err
			}
			for _, r := range runs {
				status := "running"
				if r.FinishedAt.Valid {
					status = "done"
					if r.Error != "" {
						status = "failed"
					}
				}
				fmt.Printf("%s  %-7s  %6d frames  %4d cues  %s\n",
					r.StartedAt.Format(time.DateTime), status, r.Frames, r.CueCount, r.Source)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum runs to list")

	cmd.AddCommand(newRunsExportCommand(cfg))
	return cmd
}

func newRunsExportCommand(cfg **config.Config) *cobra.Command {
	var outFlag string

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Re-render a persisted run's cues as SRT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := (*cfg).Output.DatabasePath
			if path == "" {
				return fmt.Errorf("no database path: set [output] database_path")
			}
			db, err := store.NewDB(path)
			if err != nil {
				return err
			}
			defer db.Close()

			merged, err := db.Cues(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cues := make([]subrip.Cue, 0, len(merged))
			for _, c := range merged {
				cues = append(cues, subrip.Cue{Start: c.Start, End: c.End, Lines: c.Lines})
			}
			if err := subrip.WriteFile(outFlag, cues); err != nil {
				return err
			}
			fmt.Printf("wrote %d cues to %s\n", len(cues), outFlag)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFlag, "out", "o", "export.srt", "Output SRT path")
	return cmd
}
