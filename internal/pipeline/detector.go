package pipeline

import (
	"context"

	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/video"
)

// runDetector is stage 4: it invokes the pluggable region detector once per
// sample. Detection errors are fatal to the run and propagate as the
// terminal item.
func runDetector(ctx context.Context, in <-chan sampleItem, out chan<- sampleItem, det detect.Detector) {
	defer close(out)

	for {
		item, ok := recv(ctx, in)
		if !ok {
			return
		}
		if item.err != nil {
			send(ctx, out, item)
			return
		}
		sample := item.sample
		result, err := det.Detect(sample.Frame)
		if err != nil {
			sample.History.Release()
			sample.Frame.Release()
			if _, typed := err.(*detect.DetectionError); !typed {
				err = &detect.DetectionError{Op: "detect", Err: err}
			}
			send(ctx, out, sampleItem{err: err})
			return
		}
		sample.Detection = result
		if result.HasSubtitle {
			video.Tracef("detector: frame %d: %d candidate boxes", sample.FrameIndex, len(result.Regions))
		}
		if !send(ctx, out, sampleItem{sample: sample}) {
			sample.History.Release()
			sample.Frame.Release()
			return
		}
	}
}
