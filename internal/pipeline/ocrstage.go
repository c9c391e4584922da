package pipeline

import (
	"context"
	"time"

	"github.com/framefish/subsift/internal/ocr"
	"github.com/framefish/subsift/internal/video"
)

// runOCR is stage 7. It recognizes text in every completed region's
// representative frame. Engine failure is fatal: regions recognized so far
// in the batch are emitted, then the error terminates the stream. A clean
// response with no text is not a failure; that region is just dropped.
func runOCR(ctx context.Context, in <-chan trackedItem, out chan<- recognizedItem, engine ocr.Engine) {
	defer close(out)

	for {
		item, ok := recv(ctx, in)
		if !ok {
			return
		}
		if item.err != nil {
			send(ctx, out, recognizedItem{err: item.err})
			return
		}

		rec := recognizedItem{
			timings: item.timings,
			frames:  item.frames,
			samples: item.samples,
			fps:     item.fps,
		}
		for _, region := range item.completed {
			start := time.Now()
			resp, err := engine.Recognize(ctx, &ocr.Request{Frame: region.Frame, ROI: region.ROI})
			rec.timings.OCRDur += time.Since(start)
			if err != nil {
				region.Frame.Release()
				releaseCompleted(item.completed, region)
				if ctx.Err() != nil {
					return
				}
				video.Opsf("ocr: %s: engine failure: %v", region.ID, err)
				if len(rec.regions) > 0 || rec.dropped > 0 {
					if !send(ctx, out, rec) {
						return
					}
				}
				send(ctx, out, recognizedItem{err: err})
				return
			}
			region.Frame.Release()
			region.Frame = nil
			if len(resp.Texts) == 0 {
				video.Diagf("ocr: %s: no text recognized (region dropped)", region.ID)
				rec.dropped++
				continue
			}
			rec.regions = append(rec.regions, &RecognizedRegion{
				CompletedRegion: *region,
				Texts:           resp.Texts,
			})
		}

		if !send(ctx, out, rec) {
			return
		}
	}
}

// releaseCompleted releases the frames of every completed region after the
// given one, used when recognition aborts mid-batch.
func releaseCompleted(regions []*CompletedRegion, after *CompletedRegion) {
	past := false
	for _, r := range regions {
		if r == after {
			past = true
			continue
		}
		if past && r.Frame != nil {
			r.Frame.Release()
		}
	}
}
