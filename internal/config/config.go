// Package config loads, validates and normalizes subsift configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/framefish/subsift/internal/compare"
	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/ocr"
	"github.com/framefish/subsift/internal/pipeline"
)

// Input describes the raw video source.
type Input struct {
	Width  int     `toml:"width"`
	Height int     `toml:"height"`
	FPS    float64 `toml:"fps"`
}

// Detection configures the subtitle region detector.
type Detection struct {
	Strategy      string  `toml:"strategy"`
	BandTop       float64 `toml:"band_top"`
	BandBottom    float64 `toml:"band_bottom"`
	EdgeThreshold int     `toml:"edge_threshold"`
	MinRowFill    float64 `toml:"min_row_fill"`
	MinScore      float64 `toml:"min_score"`
	MaxRegions    int     `toml:"max_regions"`
}

// Comparison configures the frame-content comparator.
type Comparison struct {
	Strategy      string  `toml:"strategy"`
	SameThreshold float64 `toml:"same_threshold"`
	EdgeThreshold int     `toml:"edge_threshold"`
}

// OCR configures the text recognition engine.
type OCR struct {
	Kind           string   `toml:"kind"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Tuning holds the pipeline thresholds and queue geometry.
type Tuning struct {
	SamplesPerSecond float64 `toml:"samples_per_second"`
	HistoryDepth     int     `toml:"history_depth"`
	SorterLookahead  int     `toml:"sorter_lookahead"`
	QueueDepth       int     `toml:"queue_depth"`
	MinAreaFraction  float64 `toml:"min_area_fraction"`
	MinDimPx         int     `toml:"min_dim_px"`
	MinDurationMs    int     `toml:"min_duration_ms"`
	MaxAnchorMisses  int     `toml:"max_anchor_misses"`
	MergeGapMs       int     `toml:"merge_gap_ms"`
}

// Output names the artifacts a run produces.
type Output struct {
	SRTPath      string `toml:"srt_path"`
	DatabasePath string `toml:"database_path"`
}

// Logging selects which log streams are enabled.
type Logging struct {
	Diagnostics bool `toml:"diagnostics"`
	Trace       bool `toml:"trace"`
}

// Config encapsulates all configuration values for subsift.
type Config struct {
	Input      Input      `toml:"input"`
	Detection  Detection  `toml:"detection"`
	Comparison Comparison `toml:"comparison"`
	OCR        OCR        `toml:"ocr"`
	Tuning     Tuning     `toml:"tuning"`
	Output     Output     `toml:"output"`
	Logging    Logging    `toml:"logging"`
}

// Default returns a configuration with production defaults. Input dimensions
// are intentionally zero; they are source properties, not defaults.
func Default() Config {
	lim := pipeline.DefaultLimits()
	det := detect.DefaultSettings()
	return Config{
		Detection: Detection{
			Strategy:      string(det.Strategy),
			BandTop:       det.BandTop,
			BandBottom:    det.BandBottom,
			EdgeThreshold: int(det.EdgeThreshold),
			MinRowFill:    det.MinRowFill,
			MinScore:      float64(det.MinScore),
			MaxRegions:    det.MaxRegions,
		},
		Comparison: Comparison{
			Strategy:      string(compare.StrategyBitmap),
			SameThreshold: 0.55,
			EdgeThreshold: 40,
		},
		OCR: OCR{
			Kind:           string(ocr.KindCommand),
			TimeoutSeconds: 30,
		},
		Tuning: Tuning{
			SamplesPerSecond: lim.SamplesPerSecond,
			HistoryDepth:     lim.HistoryDepth,
			SorterLookahead:  lim.SorterLookahead,
			QueueDepth:       lim.QueueDepth,
			MinAreaFraction:  lim.MinAreaFraction,
			MinDimPx:         lim.MinDimPx,
			MinDurationMs:    int(lim.MinDuration / time.Millisecond),
			MaxAnchorMisses:  lim.MaxAnchorMisses,
			MergeGapMs:       int(lim.MergeGap / time.Millisecond),
		},
		Output: Output{
			SRTPath: "out.srt",
		},
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() (string, error) {
	return expandPath("~/.config/subsift/config.toml")
}

// Load parses and validates a configuration file. An empty path falls back
// to DefaultPath; a missing file yields defaults. The second return value
// reports whether a file was actually read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, false, err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return "", false, err
		}
		path = def
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Tuning.SamplesPerSecond <= 0 {
		problems = append(problems, "tuning.samples_per_second must be positive")
	}
	if c.Tuning.HistoryDepth <= 0 {
		problems = append(problems, "tuning.history_depth must be positive")
	}
	if c.Tuning.QueueDepth <= 0 {
		problems = append(problems, "tuning.queue_depth must be positive")
	}
	if c.Detection.BandTop < 0 || c.Detection.BandBottom > 1 || c.Detection.BandTop >= c.Detection.BandBottom {
		problems = append(problems, "detection.band_top/band_bottom must satisfy 0 <= top < bottom <= 1")
	}
	if c.Comparison.SameThreshold <= 0 || c.Comparison.SameThreshold >= 1 {
		problems = append(problems, "comparison.same_threshold must be in (0, 1)")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Pipeline materializes the pipeline configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Detection: detect.Settings{
			Strategy:      detect.Strategy(c.Detection.Strategy),
			BandTop:       c.Detection.BandTop,
			BandBottom:    c.Detection.BandBottom,
			EdgeThreshold: uint8(c.Detection.EdgeThreshold),
			MinRowFill:    c.Detection.MinRowFill,
			MinScore:      float32(c.Detection.MinScore),
			MaxRegions:    c.Detection.MaxRegions,
		},
		Comparator: compare.Settings{
			Strategy:      compare.Strategy(c.Comparison.Strategy),
			SameThreshold: c.Comparison.SameThreshold,
			EdgeThreshold: uint8(c.Comparison.EdgeThreshold),
		},
		OCR: pipeline.OCRSettings{
			Settings: ocr.Settings{
				Kind:    ocr.Kind(c.OCR.Kind),
				Command: c.OCR.Command,
				Args:    c.OCR.Args,
				Timeout: time.Duration(c.OCR.TimeoutSeconds) * time.Second,
			},
		},
		Output: pipeline.OutputSettings{Path: c.Output.SRTPath},
		Limits: pipeline.Limits{
			SamplesPerSecond: c.Tuning.SamplesPerSecond,
			HistoryDepth:     c.Tuning.HistoryDepth,
			SorterLookahead:  c.Tuning.SorterLookahead,
			QueueDepth:       c.Tuning.QueueDepth,
			MinAreaFraction:  c.Tuning.MinAreaFraction,
			MinDimPx:         c.Tuning.MinDimPx,
			MinDuration:      time.Duration(c.Tuning.MinDurationMs) * time.Millisecond,
			MaxAnchorMisses:  c.Tuning.MaxAnchorMisses,
			MergeGap:         time.Duration(c.Tuning.MergeGapMs) * time.Millisecond,
		},
	}
}
