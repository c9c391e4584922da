package video

import "sort"

// HistoryRecord pairs a frame index with its retained frame handle.
type HistoryRecord struct {
	Index uint64
	Frame *Frame
}

// FrameHistory is the sampler's rolling buffer of every frame that passed
// through it, sampled or not. Records are strictly increasing by frame index;
// the oldest records are evicted once the buffer exceeds its depth. The
// history itself is owned by the sampler goroutine; downstream stages see it
// only through immutable snapshots.
type FrameHistory struct {
	records []HistoryRecord
	depth   int
}

// NewFrameHistory creates a history retaining at most depth frames.
func NewFrameHistory(depth int) *FrameHistory {
	if depth < 1 {
		depth = 64
	}
	return &FrameHistory{
		records: make([]HistoryRecord, 0, depth),
		depth:   depth,
	}
}

// Append retains the frame and adds it to the history, evicting the oldest
// record when over depth. Frames must arrive in strictly increasing index
// order; out-of-order frames are dropped (the sorter upstream guarantees
// order, this guards the invariant).
func (h *FrameHistory) Append(f *Frame) {
	if n := len(h.records); n > 0 && f.Index() <= h.records[n-1].Index {
		Opsf("frame history: dropping out-of-order frame %d (last %d)", f.Index(), h.records[n-1].Index)
		return
	}
	h.records = append(h.records, HistoryRecord{Index: f.Index(), Frame: f.Retain()})
	for len(h.records) > h.depth {
		h.records[0].Frame.Release()
		h.records = h.records[1:]
	}
}

// Len returns the number of retained records.
func (h *FrameHistory) Len() int { return len(h.records) }

// Snapshot returns an immutable view of the current records. Every frame in
// the snapshot is retained; the consumer must call Release on the snapshot
// when done with it.
func (h *FrameHistory) Snapshot() HistorySnapshot {
	records := make([]HistoryRecord, len(h.records))
	copy(records, h.records)
	for _, rec := range records {
		rec.Frame.Retain()
	}
	return HistorySnapshot{records: records}
}

// Close releases every retained frame.
func (h *FrameHistory) Close() {
	for _, rec := range h.records {
		rec.Frame.Release()
	}
	h.records = nil
}

// HistorySnapshot is an immutable copy of the history at one sampling
// instant. Safe to read from any goroutine.
type HistorySnapshot struct {
	records []HistoryRecord
}

// Len returns the number of records in the snapshot.
func (s HistorySnapshot) Len() int { return len(s.records) }

// At returns record i (oldest first).
func (s HistorySnapshot) At(i int) HistoryRecord { return s.records[i] }

// IndexOf returns the position of frameIndex within the snapshot, or -1.
func (s HistorySnapshot) IndexOf(frameIndex uint64) int {
	i := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Index >= frameIndex
	})
	if i < len(s.records) && s.records[i].Index == frameIndex {
		return i
	}
	return -1
}

// Retain adds a reference to every frame in the snapshot and returns it,
// for holding a snapshot beyond the lifetime of the sample that carried it.
func (s HistorySnapshot) Retain() HistorySnapshot {
	for _, rec := range s.records {
		rec.Frame.Retain()
	}
	return s
}

// Release drops the snapshot's frame references. The snapshot must not be
// used afterwards.
func (s HistorySnapshot) Release() {
	for _, rec := range s.records {
		rec.Frame.Release()
	}
}
