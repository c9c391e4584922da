package pipeline

import (
	"time"

	"github.com/framefish/subsift/internal/compare"
	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/ocr"
)

// Config is the single construction input for a pipeline run.
type Config struct {
	Detection  detect.Settings
	Comparator compare.Settings
	OCR        OCRSettings
	Output     OutputSettings
	Limits     Limits

	// DetectorOverride and ComparatorOverride substitute for strategies
	// constructed from settings. Test seam; nil in production.
	DetectorOverride   detect.Detector
	ComparatorOverride compare.Comparator
}

// OCRSettings selects the recognition engine. An explicit Engine instance
// takes precedence over construction from Settings.
type OCRSettings struct {
	Engine   ocr.Engine
	Settings ocr.Settings
}

// OutputSettings names the final artifact destination.
type OutputSettings struct {
	Path string
}

// Limits holds the pipeline's tunable thresholds and queue geometry.
type Limits struct {
	// SamplesPerSecond is the detection sampling rate N (≤ one sample per
	// 1/N second of playback time).
	SamplesPerSecond float64

	// HistoryDepth is how many frames the sampler retains for boundary
	// refinement.
	HistoryDepth int

	// SorterLookahead is the reorder window of the frame sorter.
	SorterLookahead int

	// QueueDepth is the capacity of every inter-stage queue.
	QueueDepth int

	// MinAreaFraction, MinDimPx and MinDuration are the completed-region
	// validity thresholds; regions failing any are silently dropped.
	MinAreaFraction float64
	MinDimPx        int
	MinDuration     time.Duration

	// MaxAnchorMisses force-closes a region after this many consecutive
	// seen-but-mismatching samples. Zero disables the timeout.
	MaxAnchorMisses int

	// MergeGap is the maximum gap between cue windows that still merges
	// near-identical text.
	MergeGap time.Duration
}

// DefaultLimits returns production-default pipeline limits.
func DefaultLimits() Limits {
	return Limits{
		SamplesPerSecond: 5,
		HistoryDepth:     64,
		SorterLookahead:  8,
		QueueDepth:       4,
		MinAreaFraction:  0.0005,
		MinDimPx:         8,
		MinDuration:      300 * time.Millisecond,
		MaxAnchorMisses:  3,
		MergeGap:         400 * time.Millisecond,
	}
}

// withDefaults fills zero-valued limits from DefaultLimits.
func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.SamplesPerSecond <= 0 {
		l.SamplesPerSecond = def.SamplesPerSecond
	}
	if l.HistoryDepth <= 0 {
		l.HistoryDepth = def.HistoryDepth
	}
	if l.SorterLookahead <= 0 {
		l.SorterLookahead = def.SorterLookahead
	}
	if l.QueueDepth <= 0 {
		l.QueueDepth = def.QueueDepth
	}
	if l.MinAreaFraction <= 0 {
		l.MinAreaFraction = def.MinAreaFraction
	}
	if l.MinDimPx <= 0 {
		l.MinDimPx = def.MinDimPx
	}
	if l.MinDuration <= 0 {
		l.MinDuration = def.MinDuration
	}
	if l.MergeGap <= 0 {
		l.MergeGap = def.MergeGap
	}
	// MaxAnchorMisses zero is a meaningful setting (never time out), so it
	// is left alone here; DefaultLimits carries the production value.
	return l
}
