// Package pipeline is the composition root of the subtitle extraction
// pipeline: nine independently scheduled stages connected by bounded queues,
// from the rate gate in front of the decoder stream down to the averager
// emitting progress and cue updates. This package imports the seam packages
// (video, detect, compare, ocr); none of them import pipeline.
package pipeline

import (
	"time"

	"github.com/framefish/subsift/internal/compare"
	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/ocr"
	"github.com/framefish/subsift/internal/video"
)

// RegionID is a stable identity assigned by the determiner to a tracked
// on-screen caption region.
type RegionID string

// DetectionSample is one sampled frame plus its detection result and an
// immutable history snapshot for later boundary refinement.
type DetectionSample struct {
	Frame      *video.Frame
	FrameIndex uint64
	Time       time.Duration

	// FPS is the sampler's playback-rate estimate at this instant.
	FPS float64

	// FramesSeen is the cumulative count of frames the sampler has passed
	// through (sampled or not).
	FramesSeen uint64

	Detection detect.Result
	History   video.HistorySnapshot
}

// RegionUnit is a detector box normalized to a stable identity for one
// sample.
type RegionUnit struct {
	ID    RegionID
	ROI   video.Rect
	Label string
}

// RegionEvent is one sampled frame with its identity-bearing region units,
// the lifecycle tracker's input.
type RegionEvent struct {
	Sample *DetectionSample
	Units  []RegionUnit
}

// ActiveRegion is the live state for a region currently believed open. Owned
// exclusively by the lifecycle tracker's goroutine.
type ActiveRegion struct {
	ID    RegionID
	Label string
	ROI   video.Rect

	// Template is the feature blob from the most recent refresh; Anchor is
	// the most recent confirmed-matching blob and is the comparison
	// reference for the next observation. Anchor falls back to Template
	// when unset, giving a sliding-reference match rather than a fixed
	// first-frame template.
	Template compare.Features
	Anchor   compare.Features

	StartTime  time.Duration
	StartFrame uint64
	LastTime   time.Duration
	LastFrame  uint64

	// Frame is the retained representative frame for OCR.
	Frame *video.Frame

	// misses counts consecutive seen-but-mismatching samples.
	misses int
}

// anchor returns the comparison reference: the last confirmed match, or the
// template when no match has been confirmed yet.
func (r *ActiveRegion) anchor() compare.Features {
	if r.Anchor != nil {
		return r.Anchor
	}
	return r.Template
}

// CompletedRegion is emitted once a region closes and passes validity
// checks. Frame is the retained representative frame handed to OCR.
type CompletedRegion struct {
	ID    RegionID
	Label string
	ROI   video.Rect

	StartTime  time.Duration
	EndTime    time.Duration
	StartFrame uint64
	EndFrame   uint64

	Frame *video.Frame
}

// Duration returns the region's on-screen time span.
func (r *CompletedRegion) Duration() time.Duration { return r.EndTime - r.StartTime }

// RecognizedRegion is a completed region with its OCR result attached. The
// representative frame has been released by the time this exists.
type RecognizedRegion struct {
	CompletedRegion
	Texts []ocr.Text
}

// RegionTimings carries per-event observability counters. Control decisions
// never read these.
type RegionTimings struct {
	Frames      int
	Extractions int
	Comparisons int

	ExtractDur time.Duration
	CompareDur time.Duration
	OCRDur     time.Duration
	TotalDur   time.Duration
}

func (t *RegionTimings) add(o RegionTimings) {
	t.Frames += o.Frames
	t.Extractions += o.Extractions
	t.Comparisons += o.Comparisons
	t.ExtractDur += o.ExtractDur
	t.CompareDur += o.CompareDur
	t.OCRDur += o.OCRDur
	t.TotalDur += o.TotalDur
}

// TimedSubtitle is one cue in the final timeline.
type TimedSubtitle struct {
	Start time.Duration
	End   time.Duration
	Lines []string
}

// MergedSubtitle is a cue plus the regions that contributed to it.
type MergedSubtitle struct {
	TimedSubtitle
	Regions    []RegionID
	Confidence float32
}

// UpdateKind distinguishes new cues from extensions of existing ones.
type UpdateKind int

const (
	// UpdateNew marks a cue appended to the timeline.
	UpdateNew UpdateKind = iota
	// UpdateUpdated marks an existing cue whose window or text changed.
	UpdateUpdated
)

// SubtitleUpdate is one incremental change to the cue timeline.
type SubtitleUpdate struct {
	Kind  UpdateKind
	Index int
	Cue   MergedSubtitle
}

// SubtitleStats is the merge stage's running tally.
type SubtitleStats struct {
	Cues             int
	RegionsMerged    int
	RegionsRecognized int
	RegionsDropped   int
	TotalCueDuration time.Duration
}

// PipelineProgress is the averager's smoothed telemetry snapshot.
type PipelineProgress struct {
	FramesProcessed  uint64
	SamplesProcessed uint64
	RegionsCompleted uint64
	FPSEstimate      float64

	AvgExtract time.Duration
	AvgCompare time.Duration
	AvgOCR     time.Duration

	Stats SubtitleStats
}

// Result is one output stream item: a progress snapshot plus any cue updates
// produced by the event, or a terminal error.
type Result struct {
	Progress PipelineProgress
	Updates  []SubtitleUpdate
	Err      error
}
