// Package detect defines the pluggable subtitle-region detector seam and a
// luma-band projection reference detector. Concrete vision backends live
// behind the Detector interface; the pipeline never inspects which strategy
// is active.
package detect

import (
	"fmt"

	"github.com/framefish/subsift/internal/video"
)

// Box is one raw candidate region in pixel coordinates.
type Box struct {
	X, Y, W, H int
	Score      float32
}

// Result is the per-frame detector output.
type Result struct {
	HasSubtitle bool
	Regions     []Box
}

// Detector inspects a single frame for candidate subtitle regions.
type Detector interface {
	Detect(f *video.Frame) (Result, error)
}

// DetectionError wraps a fatal detection-layer failure (malformed ROI,
// insufficient plane data). Fatal for the current pipeline run.
type DetectionError struct {
	Op  string
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detect %s: %v", e.Op, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// Strategy names a concrete detector implementation.
type Strategy string

const (
	// StrategyLumaBand is the row-projection luma-band detector.
	StrategyLumaBand Strategy = "luma-band"
)

// Probe returns the detector strategies usable in the current environment.
// Called once at configuration time, never mid-pipeline.
func Probe() []Strategy {
	return []Strategy{StrategyLumaBand}
}

// Settings configures detector construction. Band bounds are normalized
// (0–1) vertical limits of the region searched for captions.
type Settings struct {
	Strategy Strategy

	// BandTop/BandBottom bound the searched vertical band.
	BandTop    float64
	BandBottom float64

	// EdgeThreshold is the minimum horizontal luma delta counted as text
	// energy.
	EdgeThreshold uint8

	// MinRowFill is the fraction of energetic columns a row needs to count
	// as a text row.
	MinRowFill float64

	// MinScore filters candidate boxes below this score.
	MinScore float32

	// MaxRegions caps the number of boxes returned per frame.
	MaxRegions int
}

// DefaultSettings returns detector defaults tuned for bottom-third captions.
func DefaultSettings() Settings {
	return Settings{
		Strategy:      StrategyLumaBand,
		BandTop:       0.65,
		BandBottom:    1.0,
		EdgeThreshold: 40,
		MinRowFill:    0.04,
		MinScore:      0.05,
		MaxRegions:    4,
	}
}

// New constructs the configured detector strategy.
func New(s Settings) (Detector, error) {
	switch s.Strategy {
	case StrategyLumaBand, "":
		return newLumaBand(s), nil
	default:
		return nil, &DetectionError{Op: "construct", Err: fmt.Errorf("unknown strategy %q", s.Strategy)}
	}
}
