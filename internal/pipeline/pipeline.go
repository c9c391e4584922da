package pipeline

import (
	"context"
	"fmt"

	"github.com/framefish/subsift/internal/compare"
	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/ocr"
	"github.com/framefish/subsift/internal/video"
)

// Outputs is a running pipeline's public surface: the result stream, the
// stream metadata captured at open time, and the pause handle.
type Outputs struct {
	// Results carries one item per detection event plus at most one final
	// item with Err set. Closed when the run ends.
	Results <-chan Result

	// TotalFrames is the container's frame count when known, zero otherwise.
	TotalFrames uint64

	// Handle pauses and resumes frame intake.
	Handle *Handle
}

// Build opens the provider and starts all nine stages. The returned Outputs
// is live immediately; cancel ctx to abandon the run. The gate owns the
// stream and closes it when it finishes.
func Build(ctx context.Context, provider video.Provider, cfg Config) (*Outputs, error) {
	lim := cfg.Limits.withDefaults()

	det := cfg.DetectorOverride
	if det == nil {
		var err error
		det, err = detect.New(cfg.Detection)
		if err != nil {
			return nil, fmt.Errorf("building detector: %w", err)
		}
	}

	cmp := cfg.ComparatorOverride
	if cmp == nil {
		var err error
		cmp, err = compare.New(cfg.Comparator)
		if err != nil {
			return nil, fmt.Errorf("building comparator: %w", err)
		}
	}

	engine := cfg.OCR.Engine
	if engine == nil {
		var err error
		engine, err = ocr.New(cfg.OCR.Settings)
		if err != nil {
			return nil, fmt.Errorf("building ocr engine: %w", err)
		}
	}

	stream, info, err := provider.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening video source: %w", err)
	}
	video.Opsf("pipeline: source open (fps %.2f, %d frames known)", info.FPS, info.TotalFrames)

	handle := newHandle()
	depth := lim.QueueDepth

	gated := make(chan frameItem, depth)
	sorted := make(chan frameItem, depth)
	sampled := make(chan sampleItem, depth)
	detected := make(chan sampleItem, depth)
	events := make(chan eventItem, depth)
	tracked := make(chan trackedItem, depth)
	recognized := make(chan recognizedItem, depth)
	merged := make(chan mergedItem, depth)
	results := make(chan Result, depth)

	go runGate(ctx, stream, handle, gated)
	go runSorter(ctx, gated, sorted, lim.SorterLookahead)
	go runSampler(ctx, sorted, sampled, info.FPS, lim)
	go runDetector(ctx, sampled, detected, det)
	go runDeterminer(ctx, detected, events)
	go runLifecycle(ctx, events, tracked, cmp, lim)
	go runOCR(ctx, tracked, recognized, engine)
	go runMerge(ctx, recognized, merged, lim)
	go runAverager(ctx, merged, results)

	return &Outputs{
		Results:     results,
		TotalFrames: info.TotalFrames,
		Handle:      handle,
	}, nil
}
