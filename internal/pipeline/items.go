package pipeline

import (
	"context"

	"github.com/framefish/subsift/internal/video"
)

// Inter-stage queue items. A stage ends its output by closing the channel;
// a terminal failure is one final item with err set, followed by close. The
// lifecycle tracker flushes before forwarding a terminal error.

type frameItem struct {
	frame *video.Frame
	err   error
}

type sampleItem struct {
	sample *DetectionSample
	err    error
}

type eventItem struct {
	event *RegionEvent
	err   error
}

// trackedItem is one lifecycle event's output: zero or more completed
// regions plus the event's telemetry.
type trackedItem struct {
	completed []*CompletedRegion
	timings   RegionTimings
	frames    uint64
	samples   uint64
	fps       float64
	err       error
}

type recognizedItem struct {
	regions []*RecognizedRegion
	dropped uint64
	timings RegionTimings
	frames  uint64
	samples uint64
	fps     float64
	err     error
}

type mergedItem struct {
	updates []SubtitleUpdate
	stats   SubtitleStats
	timings RegionTimings
	frames  uint64
	samples uint64
	fps     float64
	err     error
}

// send blocks on the bounded downstream queue; that blocking is the
// pipeline's only backpressure mechanism. Returns false when the run is
// cancelled.
func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// recv returns ok=false when the upstream queue is closed or the run is
// cancelled.
func recv[T any](ctx context.Context, ch <-chan T) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}
