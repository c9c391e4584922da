package pipeline

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"
)

// averagerWindow bounds the rate-estimate window so the reported figures
// track the current stretch of video rather than the whole run.
const averagerWindow = 32

// averager is stage 9. It folds per-event telemetry into smoothed progress
// snapshots and pairs them with the event's cue updates on the output
// stream.
type averager struct {
	totals  RegionTimings
	fpsHist []float64

	regionsCompleted uint64
}

func runAverager(ctx context.Context, in <-chan mergedItem, out chan<- Result) {
	defer close(out)

	a := &averager{}
	for {
		item, ok := recv(ctx, in)
		if !ok {
			return
		}
		if item.err != nil {
			send(ctx, out, Result{Err: item.err, Progress: a.progress(item)})
			return
		}

		a.totals.add(item.timings)
		if item.fps > 0 {
			a.fpsHist = append(a.fpsHist, item.fps)
			if len(a.fpsHist) > averagerWindow {
				a.fpsHist = a.fpsHist[len(a.fpsHist)-averagerWindow:]
			}
		}
		a.regionsCompleted = uint64(item.stats.RegionsRecognized + item.stats.RegionsDropped)

		if !send(ctx, out, Result{
			Progress: a.progress(item),
			Updates:  item.updates,
		}) {
			return
		}
	}
}

func (a *averager) progress(item mergedItem) PipelineProgress {
	p := PipelineProgress{
		FramesProcessed:  item.frames,
		SamplesProcessed: item.samples,
		RegionsCompleted: a.regionsCompleted,
		Stats:            item.stats,
	}
	if len(a.fpsHist) > 0 {
		p.FPSEstimate = stat.Mean(a.fpsHist, nil)
	}
	if a.totals.Extractions > 0 {
		p.AvgExtract = a.totals.ExtractDur / time.Duration(a.totals.Extractions)
	}
	if a.totals.Comparisons > 0 {
		p.AvgCompare = a.totals.CompareDur / time.Duration(a.totals.Comparisons)
	}
	if n := int64(a.regionsCompleted); n > 0 {
		p.AvgOCR = a.totals.OCRDur / time.Duration(n)
	}
	return p
}
