package video

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RawVideoProvider replays fixed-size 8-bit luma frames from a file, one
// frame every Width×Height bytes. It exists for offline extraction and
// deterministic tests; real deployments plug a platform decoder in behind
// the Provider seam instead.
type RawVideoProvider struct {
	Path   string
	Width  int
	Height int
	FPS    float64

	// Serial tags the decode session; defaults to 1.
	Serial uint64
}

// Open validates the geometry and returns a sequential frame stream.
func (p *RawVideoProvider) Open(ctx context.Context) (Stream, StreamInfo, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, StreamInfo{}, &DecodeError{Op: "open", Err: fmt.Errorf("invalid frame geometry %dx%d", p.Width, p.Height)}
	}
	fps := p.FPS
	if fps <= 0 {
		fps = 25
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, StreamInfo{}, &DecodeError{Op: "open", Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, StreamInfo{}, &DecodeError{Op: "stat", Err: err}
	}
	frameSize := int64(p.Width) * int64(p.Height)
	serial := p.Serial
	if serial == 0 {
		serial = 1
	}
	info := StreamInfo{
		FPS:         fps,
		TotalFrames: uint64(st.Size() / frameSize),
	}
	return &rawStream{
		f:      f,
		r:      bufio.NewReaderSize(f, int(frameSize)),
		width:  p.Width,
		height: p.Height,
		fps:    fps,
		serial: serial,
	}, info, nil
}

type rawStream struct {
	f      *os.File
	r      *bufio.Reader
	width  int
	height int
	fps    float64
	serial uint64
	next   uint64
}

func (s *rawStream) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pix := make([]byte, s.width*s.height)
	if _, err := io.ReadFull(s.r, pix); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		// A short trailing frame is a truncated file, not a clean end.
		return nil, &DecodeError{Op: "read", Err: err}
	}
	idx := s.next
	s.next++
	pts := time.Duration(float64(idx) / s.fps * float64(time.Second))
	return NewGray8(pix, s.width, s.height, FrameConfig{
		PTS:    pts,
		HasPTS: true,
		Index:  idx,
		Serial: s.serial,
	}), nil
}

func (s *rawStream) Close() error { return s.f.Close() }
