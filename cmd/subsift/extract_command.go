package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/framefish/subsift/internal/config"
	"github.com/framefish/subsift/internal/pipeline"
	"github.com/framefish/subsift/internal/store"
	"github.com/framefish/subsift/internal/subrip"
	"github.com/framefish/subsift/internal/video"
)

const progressInterval = 2 * time.Second

func newExtractCommand(cfg **config.Config) *cobra.Command {
	var widthFlag, heightFlag int
	var fpsFlag float64
	var outFlag string

	cmd := &cobra.Command{
		Use:   "extract <video-file>",
		Short: "Run the extraction pipeline over a raw 8-bit luma video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if widthFlag > 0 {
				c.Input.Width = widthFlag
			}
			if heightFlag > 0 {
				c.Input.Height = heightFlag
			}
			if fpsFlag > 0 {
				c.Input.FPS = fpsFlag
			}
			if outFlag != "" {
				c.Output.SRTPath = outFlag
			}
			if c.Input.Width <= 0 || c.Input.Height <= 0 {
				return fmt.Errorf("input dimensions required: set --width/--height or [input] in config")
			}
			return runExtract(cmd.Context(), c, args[0])
		},
	}

	cmd.Flags().IntVar(&widthFlag, "width", 0, "Frame width in pixels")
	cmd.Flags().IntVar(&heightFlag, "height", 0, "Frame height in pixels")
	cmd.Flags().Float64Var(&fpsFlag, "fps", 0, "Source frame rate")
	cmd.Flags().StringVarP(&outFlag, "out", "o", "", "Output SRT path")

	return cmd
}

func runExtract(parent context.Context, cfg *config.Config, path string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := &video.RawVideoProvider{
		Path:   path,
		Width:  cfg.Input.Width,
		Height: cfg.Input.Height,
		FPS:    cfg.Input.FPS,
	}

	outputs, err := pipeline.Build(ctx, provider, cfg.Pipeline())
	if err != nil {
		return err
	}

	var db *store.DB
	var runID string
	if cfg.Output.DatabasePath != "" {
		db, err = store.NewDB(cfg.Output.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		runID, err = db.CreateRun(ctx, path)
		if err != nil {
			return err
		}
	}

	// SIGUSR1 toggles the intake gate while the pipeline drains in place.
	pauseCh := make(chan os.Signal, 1)
	signal.Notify(pauseCh, syscall.SIGUSR1)
	defer signal.Stop(pauseCh)
	go func() {
		for range pauseCh {
			paused := !outputs.Handle.Paused()
			outputs.Handle.SetPaused(paused)
			video.Opsf("extract: intake paused=%v", paused)
		}
	}()

	cues := make(map[int]pipeline.MergedSubtitle)
	var lastProgress pipeline.PipelineProgress
	var runErr error
	nextReport := time.Now().Add(progressInterval)

	for result := range outputs.Results {
		if result.Err != nil {
			runErr = result.Err
		}
		lastProgress = result.Progress
		for _, update := range result.Updates {
			cues[update.Index] = update.Cue
			if db != nil {
				if err := db.UpsertCue(ctx, runID, update.Index, update.Cue); err != nil {
					video.Opsf("extract: cue persistence failed: %v", err)
				}
			}
		}
		if now := time.Now(); now.After(nextReport) {
			nextReport = now.Add(progressInterval)
			reportProgress(lastProgress, outputs.TotalFrames)
		}
	}

	ordered := make([]subrip.Cue, 0, len(cues))
	for i := 0; i < len(cues); i++ {
		cue, ok := cues[i]
		if !ok {
			continue
		}
		ordered = append(ordered, subrip.Cue{Start: cue.Start, End: cue.End, Lines: cue.Lines})
	}
	if err := subrip.WriteFile(cfg.Output.SRTPath, ordered); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			video.Opsf("extract: srt write failed: %v", err)
		}
	}

	if db != nil {
		if err := db.FinishRun(context.Background(), runID,
			lastProgress.FramesProcessed, lastProgress.SamplesProcessed,
			len(ordered), runErr); err != nil {
			video.Opsf("extract: run finalize failed: %v", err)
		}
	}

	reportProgress(lastProgress, outputs.TotalFrames)
	if runErr != nil {
		return fmt.Errorf("extraction finished with error: %w", runErr)
	}
	fmt.Printf("wrote %d cues to %s\n", len(ordered), cfg.Output.SRTPath)
	return nil
}

func reportProgress(p pipeline.PipelineProgress, total uint64) {
	if total > 0 {
		video.Opsf("extract: %d/%d frames, %d samples, %d cues, fps %.1f",
			p.FramesProcessed, total, p.SamplesProcessed, p.Stats.Cues, p.FPSEstimate)
		return
	}
	video.Opsf("extract: %d frames, %d samples, %d cues, fps %.1f",
		p.FramesProcessed, p.SamplesProcessed, p.Stats.Cues, p.FPSEstimate)
}
