// Package video holds the shared frame model for the subtitle extraction
// pipeline: immutable decoded frames with reference-counted ownership, the
// sampler's frame history, and the frame-source seam to decoder backends.
package video

import (
	"sync/atomic"
	"time"
)

// Frame is one immutable decoded video frame. Pixel data is planar; plane 0
// is always luma for the formats this pipeline consumes. A Frame is shared by
// reference count across the sampler history, active regions and completed
// regions; the payload is never mutated after construction.
type Frame struct {
	planes  [][]byte
	strides []int
	width   int
	height  int

	pts    time.Duration
	hasPTS bool
	index  uint64
	serial uint64

	refs    atomic.Int32
	release func()
}

// FrameConfig carries everything needed to construct a Frame.
type FrameConfig struct {
	Width   int
	Height  int
	Planes  [][]byte
	Strides []int

	// PTS is the presentation timestamp; HasPTS reports whether the decoder
	// supplied one.
	PTS    time.Duration
	HasPTS bool

	// Index is the decode-order frame number.
	Index uint64

	// Serial identifies the decode session / seek generation.
	Serial uint64

	// Release, when non-nil, is invoked exactly once when the last reference
	// is dropped. Decoder backends use it to recycle pooled pixel buffers.
	Release func()
}

// NewFrame constructs a frame with an initial reference count of one.
func NewFrame(cfg FrameConfig) *Frame {
	f := &Frame{
		planes:  cfg.Planes,
		strides: cfg.Strides,
		width:   cfg.Width,
		height:  cfg.Height,
		pts:     cfg.PTS,
		hasPTS:  cfg.HasPTS,
		index:   cfg.Index,
		serial:  cfg.Serial,
		release: cfg.Release,
	}
	f.refs.Store(1)
	return f
}

// NewGray8 constructs a single-plane 8-bit luma frame. Used by the raw file
// provider and tests.
func NewGray8(pix []byte, width, height int, cfg FrameConfig) *Frame {
	cfg.Width = width
	cfg.Height = height
	cfg.Planes = [][]byte{pix}
	cfg.Strides = []int{width}
	return NewFrame(cfg)
}

// Retain increments the reference count and returns the frame for chaining.
func (f *Frame) Retain() *Frame {
	f.refs.Add(1)
	return f
}

// Release decrements the reference count. When it reaches zero the release
// hook (if any) runs; further use of the frame's pixel data is invalid.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	if n := f.refs.Add(-1); n == 0 && f.release != nil {
		f.release()
	}
}

// Refs returns the current reference count. Test/diagnostic use only.
func (f *Frame) Refs() int32 { return f.refs.Load() }

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// Planes returns the number of pixel planes.
func (f *Frame) Planes() int { return len(f.planes) }

// Plane returns the raw bytes of plane i.
func (f *Frame) Plane(i int) []byte { return f.planes[i] }

// Stride returns the row stride of plane i in bytes.
func (f *Frame) Stride(i int) int { return f.strides[i] }

// Luma returns plane 0.
func (f *Frame) Luma() []byte { return f.planes[0] }

// PTS returns the presentation timestamp and whether the decoder supplied one.
func (f *Frame) PTS() (time.Duration, bool) { return f.pts, f.hasPTS }

// Index returns the decode-order frame number.
func (f *Frame) Index() uint64 { return f.index }

// Serial returns the decode session / seek generation.
func (f *Frame) Serial() uint64 { return f.serial }
