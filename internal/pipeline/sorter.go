package pipeline

import (
	"container/heap"
	"context"

	"github.com/framefish/subsift/internal/video"
)

// frameHeap orders frames by index, lowest first.
type frameHeap []*video.Frame

func (h frameHeap) Len() int            { return len(h) }
func (h frameHeap) Less(i, j int) bool  { return h[i].Index() < h[j].Index() }
func (h frameHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frameHeap) Push(x interface{}) { *h = append(*h, x.(*video.Frame)) }
func (h *frameHeap) Pop() interface{} {
	old := *h
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return f
}

// runSorter is stage 2: it restores monotonic frame order from a decode
// stream that may emit slightly out of order, holding at most lookahead
// frames. A frame arriving later than the sorted output has already passed
// is dropped; decoders that reorder further than the lookahead window need
// a bigger window, not silent duplication downstream.
func runSorter(ctx context.Context, in <-chan frameItem, out chan<- frameItem, lookahead int) {
	defer close(out)

	var pending frameHeap
	heap.Init(&pending)
	var lastSent uint64
	sentAny := false

	emit := func(f *video.Frame) bool {
		if sentAny && f.Index() <= lastSent {
			video.Opsf("sorter: dropping late frame %d (already emitted %d)", f.Index(), lastSent)
			f.Release()
			return true
		}
		if !send(ctx, out, frameItem{frame: f}) {
			f.Release()
			return false
		}
		lastSent = f.Index()
		sentAny = true
		return true
	}

	drain := func() bool {
		for pending.Len() > 0 {
			if !emit(heap.Pop(&pending).(*video.Frame)) {
				return false
			}
		}
		return true
	}

	release := func() {
		for pending.Len() > 0 {
			heap.Pop(&pending).(*video.Frame).Release()
		}
	}

	for {
		item, ok := recv(ctx, in)
		if !ok {
			drain()
			return
		}
		if item.err != nil {
			if !drain() {
				release()
				return
			}
			send(ctx, out, frameItem{err: item.err})
			return
		}
		heap.Push(&pending, item.frame)
		for pending.Len() > lookahead {
			if !emit(heap.Pop(&pending).(*video.Frame)) {
				release()
				return
			}
		}
	}
}
