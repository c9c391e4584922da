// Package compare provides the content comparator used by the region
// lifecycle tracker: feature extraction over a frame+ROI and a continuity
// verdict between two feature blobs. Strategies are interchangeable; the
// tracker only ever reads the SameSegment verdict.
package compare

import (
	"fmt"

	"github.com/framefish/subsift/internal/video"
)

// Features is an opaque comparator-specific feature blob. Continuity is
// judged only through Compare, never by value comparison.
type Features interface {
	strategy() Strategy
}

// Verdict is the result of comparing two feature blobs.
type Verdict struct {
	// SameSegment is the continuity verdict: the two blobs represent
	// visually continuous subtitle content.
	SameSegment bool

	// Similarity is the raw score in 0–1. Diagnostic only.
	Similarity float64

	// Details describes how the verdict was reached. Diagnostic only.
	Details string
}

// Comparator extracts features from a frame region and judges continuity
// between feature blobs.
type Comparator interface {
	// Extract computes features for the ROI of f. ok is false when the ROI
	// falls outside the frame or degenerates; extraction never errors hard.
	Extract(f *video.Frame, roi video.Rect) (Features, bool)

	// Compare judges continuity between two blobs produced by this
	// comparator.
	Compare(a, b Features) Verdict
}

// Strategy names a concrete comparator implementation.
type Strategy string

const (
	// StrategyBitmap compares coarse binarized luma bitmaps by overlap.
	StrategyBitmap Strategy = "bitmap"

	// StrategyEdge compares sparse edge point sets by mutual proximity.
	StrategyEdge Strategy = "edge"
)

// Probe returns the comparator strategies usable in the current environment.
// Called once at configuration time, never mid-pipeline.
func Probe() []Strategy {
	return []Strategy{StrategyBitmap, StrategyEdge}
}

// Settings configures comparator construction.
type Settings struct {
	Strategy Strategy

	// GridW/GridH is the downsample grid for the bitmap strategy.
	GridW, GridH int

	// SameThreshold is the minimum similarity for a same-segment verdict.
	SameThreshold float64

	// EdgeThreshold is the minimum luma gradient counted as an edge point
	// (edge strategy).
	EdgeThreshold uint8

	// MatchRadius is the grid-cell distance within which edge points match
	// (edge strategy).
	MatchRadius int

	// MaxPoints caps the edge point set per extraction.
	MaxPoints int
}

// DefaultSettings returns comparator defaults.
func DefaultSettings() Settings {
	return Settings{
		Strategy:      StrategyBitmap,
		GridW:         64,
		GridH:         16,
		SameThreshold: 0.55,
		EdgeThreshold: 40,
		MatchRadius:   1,
		MaxPoints:     512,
	}
}

// New constructs the configured comparator strategy.
func New(s Settings) (Comparator, error) {
	def := DefaultSettings()
	if s.GridW <= 0 {
		s.GridW = def.GridW
	}
	if s.GridH <= 0 {
		s.GridH = def.GridH
	}
	if s.SameThreshold <= 0 {
		s.SameThreshold = def.SameThreshold
	}
	if s.EdgeThreshold == 0 {
		s.EdgeThreshold = def.EdgeThreshold
	}
	if s.MatchRadius <= 0 {
		s.MatchRadius = def.MatchRadius
	}
	if s.MaxPoints <= 0 {
		s.MaxPoints = def.MaxPoints
	}
	switch s.Strategy {
	case StrategyBitmap, "":
		return &bitmapComparator{cfg: s}, nil
	case StrategyEdge:
		return &edgeComparator{cfg: s}, nil
	default:
		return nil, fmt.Errorf("compare: unknown strategy %q", s.Strategy)
	}
}
