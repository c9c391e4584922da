package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/framefish/subsift/internal/video"
)

// Handle exposes run-time control over a built pipeline. Pause acts on the
// rate gate only: while paused the gate stops pulling from the decoder
// stream entirely, and bounded queues stall every downstream stage through
// ordinary backpressure.
type Handle struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{} // closed while running; replaced when paused

	polls atomic.Uint64
}

func newHandle() *Handle {
	resume := make(chan struct{})
	close(resume)
	return &Handle{resume: resume}
}

// SetPaused toggles the gate. Resume is symmetric: polling picks up where it
// stopped.
func (h *Handle) SetPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if paused == h.paused {
		return
	}
	h.paused = paused
	if paused {
		h.resume = make(chan struct{})
	} else {
		close(h.resume)
	}
}

// Paused reports the current gate state.
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Polls returns how many times the gate has pulled from the decoder stream.
// Test/diagnostic hook for verifying pause semantics.
func (h *Handle) Polls() uint64 { return h.polls.Load() }

// wait blocks while the gate is paused.
func (h *Handle) wait(ctx context.Context) error {
	for {
		h.mu.Lock()
		resume := h.resume
		h.mu.Unlock()
		select {
		case <-resume:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runGate is stage 1: it wraps the raw decode stream and pulls nothing while
// paused. No buffering happens here; a paused gate simply stalls the chain.
func runGate(ctx context.Context, stream video.Stream, h *Handle, out chan<- frameItem) {
	defer close(out)
	defer stream.Close()

	for {
		if err := h.wait(ctx); err != nil {
			return
		}
		h.polls.Add(1)
		frame, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			send(ctx, out, frameItem{err: err})
			return
		}
		if !send(ctx, out, frameItem{frame: frame}) {
			frame.Release()
			return
		}
	}
}
