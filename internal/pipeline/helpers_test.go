package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/framefish/subsift/internal/compare"
	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/video"
)

const (
	testW = 64
	testH = 32
)

var fullROI = video.Rect{X: 0, Y: 0, W: 1, H: 1}

// Scene tags for synthetic frames: 'a' lights the left half, 'b' the right
// half, anything else is flat. Distinct scenes binarize to disjoint bitmaps,
// so the real bitmap comparator tells them apart deterministically.
func scenePix(scene byte) []byte {
	pix := make([]byte, testW*testH)
	for i := range pix {
		pix[i] = 20
	}
	lightHalf := func(left bool) {
		for y := 0; y < testH; y++ {
			for x := 0; x < testW; x++ {
				if (x < testW/2) == left {
					pix[y*testW+x] = 240
				}
			}
		}
	}
	switch scene {
	case 'a':
		lightHalf(true)
	case 'b':
		lightHalf(false)
	}
	return pix
}

// sceneFrame builds a frame for index idx at 10 fps with the given scene.
func sceneFrame(t *testing.T, idx uint64, scene byte) *video.Frame {
	t.Helper()
	return video.NewGray8(scenePix(scene), testW, testH, video.FrameConfig{
		PTS:    time.Duration(idx) * 100 * time.Millisecond,
		HasPTS: true,
		Index:  idx,
		Serial: 1,
	})
}

// sceneFrames builds one frame per byte of scenes, index = position.
func sceneFrames(t *testing.T, scenes string) []*video.Frame {
	t.Helper()
	frames := make([]*video.Frame, len(scenes))
	for i := range scenes {
		frames[i] = sceneFrame(t, uint64(i), scenes[i])
	}
	return frames
}

func releaseFrames(frames []*video.Frame) {
	for _, f := range frames {
		f.Release()
	}
}

func testComparator(t *testing.T) compare.Comparator {
	t.Helper()
	cmp, err := compare.New(compare.Settings{Strategy: compare.StrategyBitmap})
	if err != nil {
		t.Fatalf("building comparator: %v", err)
	}
	return cmp
}

// fastLimits are DefaultLimits with thresholds scaled for tiny test frames.
func fastLimits() Limits {
	lim := DefaultLimits()
	lim.SamplesPerSecond = 10
	lim.MinDuration = 300 * time.Millisecond
	return lim
}

// funcDetector adapts a function to the Detector seam.
type funcDetector func(f *video.Frame) (detect.Result, error)

func (fn funcDetector) Detect(f *video.Frame) (detect.Result, error) { return fn(f) }

// fakeStream replays prepared frames, then ends with err (io.EOF for a clean
// end). It transfers one reference per frame to the caller.
type fakeStream struct {
	frames []*video.Frame
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (*video.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, s.err
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeProvider struct {
	stream *fakeStream
	info   video.StreamInfo
}

func (p *fakeProvider) Open(ctx context.Context) (video.Stream, video.StreamInfo, error) {
	return p.stream, p.info, nil
}

// collect drains a channel until close, returning everything received.
func collect[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var items []T
	timeout := time.After(10 * time.Second)
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return items
			}
			items = append(items, item)
		case <-timeout:
			t.Fatal("timed out draining channel")
		}
	}
}
