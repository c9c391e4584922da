package pipeline

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/ocr"
	"github.com/framefish/subsift/internal/video"
)

// brightDetector reports one full-frame box whenever the frame carries any
// bright pixels. With the scene helpers this makes detection deterministic
// without a real vision pass.
func brightDetector() detect.Detector {
	return funcDetector(func(f *video.Frame) (detect.Result, error) {
		for _, p := range f.Luma() {
			if p > 200 {
				return detect.Result{
					HasSubtitle: true,
					Regions:     []detect.Box{{X: 0, Y: 0, W: f.Width(), H: f.Height(), Score: 1}},
				}, nil
			}
		}
		return detect.Result{}, nil
	})
}

// sceneOCR recognizes the synthetic scenes: left-bright reads as "left
// side", right-bright as "right side".
func sceneOCR() ocr.Engine {
	return ocr.EngineFunc(func(ctx context.Context, req *ocr.Request) (*ocr.Response, error) {
		luma := req.Frame.Luma()
		text := "right side"
		if luma[0] > 200 {
			text = "left side"
		}
		return &ocr.Response{Texts: []ocr.Text{{ROI: req.ROI, Text: text, Confidence: 0.95}}}, nil
	})
}

func buildConfig() Config {
	lim := DefaultLimits()
	lim.SamplesPerSecond = 5
	return Config{
		Limits:             lim,
		DetectorOverride:   brightDetector(),
		ComparatorOverride: nil, // construct from settings
		OCR:                OCRSettings{Engine: sceneOCR()},
	}
}

func TestBuildEndToEnd(t *testing.T) {
	t.Parallel()

	// 1 second of nothing, 2 seconds of caption, 1 second of nothing.
	scenes := strings.Repeat(" ", 10) + strings.Repeat("a", 20) + strings.Repeat(" ", 10)
	frames := sceneFrames(t, scenes)
	provider := &fakeProvider{
		stream: &fakeStream{frames: frames, err: io.EOF},
		info:   video.StreamInfo{FPS: 10, TotalFrames: uint64(len(frames))},
	}

	outputs, err := Build(context.Background(), provider, buildConfig())
	require.NoError(t, err)
	assert.Equal(t, uint64(40), outputs.TotalFrames)
	require.NotNil(t, outputs.Handle)

	results := collect(t, outputs.Results)
	require.NotEmpty(t, results)

	cues := make(map[int]MergedSubtitle)
	for _, res := range results {
		require.NoError(t, res.Err)
		for _, up := range res.Updates {
			cues[up.Index] = up.Cue
		}
	}
	require.Len(t, cues, 1)

	cue := cues[0]
	assert.Equal(t, []string{"left side"}, cue.Lines)
	// Caption runs frames 10..29 at 10 fps; refinement recovers the
	// unsampled boundary frames.
	assert.Equal(t, time.Second, cue.Start)
	assert.Equal(t, 2900*time.Millisecond, cue.End)

	last := results[len(results)-1].Progress
	assert.Equal(t, 1, last.Stats.Cues)
	assert.Equal(t, uint64(1), last.RegionsCompleted)

	assert.True(t, provider.stream.closed, "gate closes the stream")
	for _, f := range frames {
		assert.Equal(t, int32(0), f.Refs(), "frame %d leaked", f.Index())
	}
}

func TestBuildTwoCaptions(t *testing.T) {
	t.Parallel()

	// Two different captions back to back with a blank second between.
	scenes := strings.Repeat("a", 10) + strings.Repeat(" ", 10) + strings.Repeat("b", 10)
	frames := sceneFrames(t, scenes)
	provider := &fakeProvider{
		stream: &fakeStream{frames: frames, err: io.EOF},
		info:   video.StreamInfo{FPS: 10, TotalFrames: uint64(len(frames))},
	}

	outputs, err := Build(context.Background(), provider, buildConfig())
	require.NoError(t, err)

	cues := make(map[int]MergedSubtitle)
	for res := range outputs.Results {
		require.NoError(t, res.Err)
		for _, up := range res.Updates {
			cues[up.Index] = up.Cue
		}
	}
	require.Len(t, cues, 2)
	assert.Equal(t, []string{"left side"}, cues[0].Lines)
	assert.Equal(t, []string{"right side"}, cues[1].Lines)
	assert.Less(t, cues[0].End, cues[1].Start)
}

func TestBuildDecodeErrorFlushes(t *testing.T) {
	t.Parallel()

	// The stream dies mid-caption; the open region must still come out.
	scenes := strings.Repeat("a", 15)
	frames := sceneFrames(t, scenes)
	provider := &fakeProvider{
		stream: &fakeStream{frames: frames, err: &video.DecodeError{Op: "read", Err: io.ErrUnexpectedEOF}},
		info:   video.StreamInfo{FPS: 10},
	}

	outputs, err := Build(context.Background(), provider, buildConfig())
	require.NoError(t, err)

	var cueCount int
	var sawErr error
	for res := range outputs.Results {
		if res.Err != nil {
			sawErr = res.Err
		}
		for _, up := range res.Updates {
			if up.Kind == UpdateNew {
				cueCount++
			}
		}
	}
	require.Error(t, sawErr)
	var decodeErr *video.DecodeError
	assert.ErrorAs(t, sawErr, &decodeErr)
	assert.Equal(t, 1, cueCount, "mid-caption region flushed before the error")
}

func TestBuildOCREngineFailureFatal(t *testing.T) {
	t.Parallel()

	// A caption closes cleanly but the recognizer backend is down; the run
	// must end with the engine error, not silently drop the caption.
	scenes := strings.Repeat("a", 25) + strings.Repeat(" ", 6)
	frames := sceneFrames(t, scenes)
	provider := &fakeProvider{
		stream: &fakeStream{frames: frames, err: io.EOF},
		info:   video.StreamInfo{FPS: 10, TotalFrames: uint64(len(frames))},
	}

	cfg := buildConfig()
	cfg.OCR = OCRSettings{Engine: ocr.EngineFunc(func(ctx context.Context, req *ocr.Request) (*ocr.Response, error) {
		return nil, &ocr.EngineError{Engine: "test", Err: io.ErrClosedPipe}
	})}

	outputs, err := Build(context.Background(), provider, cfg)
	require.NoError(t, err)

	var sawErr error
	for res := range outputs.Results {
		if res.Err != nil {
			sawErr = res.Err
		}
	}
	require.Error(t, sawErr)
	var engErr *ocr.EngineError
	assert.ErrorAs(t, sawErr, &engErr)

	// Upstream stages drain after the recognizer aborts the stream.
	assert.Eventually(t, func() bool {
		for _, f := range frames {
			if f.Refs() != 0 {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "frames leaked after the run ended")
}

func TestBuildRejectsBadConfig(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{stream: &fakeStream{err: io.EOF}}

	t.Run("unknown comparator", func(t *testing.T) {
		t.Parallel()
		cfg := buildConfig()
		cfg.ComparatorOverride = nil
		cfg.Comparator.Strategy = "nope"
		_, err := Build(context.Background(), provider, cfg)
		assert.Error(t, err)
	})

	t.Run("missing ocr engine command", func(t *testing.T) {
		t.Parallel()
		cfg := buildConfig()
		cfg.OCR = OCRSettings{}
		_, err := Build(context.Background(), provider, cfg)
		assert.Error(t, err)
	})
}
