// Package ocr defines the recognition-engine seam consumed by the pipeline's
// OCR stage, plus an exec-command adapter for driving external recognisers.
package ocr

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/framefish/subsift/internal/video"
)

// Request asks an engine to recognize text within one frame region.
type Request struct {
	Frame *video.Frame
	ROI   video.Rect
}

// Text is one recognized line/region. ROI is normalized to the full frame.
type Text struct {
	ROI        video.Rect
	Text       string
	Confidence float32
}

// Response is the engine output for one request.
type Response struct {
	Texts []Text
}

// Engine recognizes text in frame regions. Engine failures are fatal to the
// pipeline run.
type Engine interface {
	Recognize(ctx context.Context, req *Request) (*Response, error)
}

// EngineFunc adapts a function to the Engine interface. Used heavily in
// tests.
type EngineFunc func(ctx context.Context, req *Request) (*Response, error)

// Recognize implements Engine.
func (f EngineFunc) Recognize(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// EngineError wraps a fatal OCR-layer failure.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("ocr %s: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Kind names a concrete engine backend.
type Kind string

const (
	// KindCommand shells out to an external recogniser per request.
	KindCommand Kind = "command"
)

// Settings configures engine construction.
type Settings struct {
	Kind Kind

	// Command and Args configure the external recogniser for KindCommand.
	// The crop is written to its stdin as PNG; it must print a JSON response
	// on stdout.
	Command string
	Args    []string

	// Timeout bounds a single recognition call. Zero means 30s.
	Timeout time.Duration
}

// DefaultSettings returns engine defaults.
func DefaultSettings() Settings {
	return Settings{Kind: KindCommand, Timeout: 30 * time.Second}
}

// Probe returns the engine kinds usable in the current environment for the
// given settings. Called once at configuration time, never mid-pipeline.
func Probe(s Settings) []Kind {
	var kinds []Kind
	if s.Command != "" {
		if _, err := exec.LookPath(s.Command); err == nil {
			kinds = append(kinds, KindCommand)
		}
	}
	return kinds
}

// New constructs the configured engine.
func New(s Settings) (Engine, error) {
	switch s.Kind {
	case KindCommand:
		if s.Command == "" {
			return nil, &EngineError{Engine: "command", Err: fmt.Errorf("no command configured")}
		}
		if s.Timeout <= 0 {
			s.Timeout = 30 * time.Second
		}
		return &commandEngine{cfg: s}, nil
	default:
		return nil, &EngineError{Engine: string(s.Kind), Err: fmt.Errorf("unknown engine kind")}
	}
}
