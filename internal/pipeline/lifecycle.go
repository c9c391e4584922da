package pipeline

import (
	"context"
	"time"

	"github.com/framefish/subsift/internal/compare"
	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/video"
)

// lifecycleTracker is stage 6, the core state machine. It owns the active
// region map exclusively; no other goroutine touches it. Regions move
// absent → active → absent; a close converts the region into a
// CompletedRegion (emitted if valid) or drops it.
type lifecycleTracker struct {
	cmp compare.Comparator
	lim Limits

	active map[RegionID]*ActiveRegion
	// order preserves insertion order so closes, flushes and emitted output
	// are deterministic for identical inputs.
	order []RegionID

	// lastHistory is the most recent history snapshot, retained so a
	// terminal flush can still refine end boundaries.
	lastHistory    video.HistorySnapshot
	haveHistory    bool
	lastFPS        float64
	frameW, frameH int

	samples uint64
	frames  uint64
}

func newLifecycleTracker(cmp compare.Comparator, lim Limits) *lifecycleTracker {
	return &lifecycleTracker{
		cmp:    cmp,
		lim:    lim,
		active: make(map[RegionID]*ActiveRegion),
	}
}

// runLifecycle consumes determiner events and emits one trackedItem per
// event. On upstream end or error every still-active region is force-closed
// through the same forward-refinement path before the stream ends, so a
// decode failure mid-caption does not discard an otherwise-complete
// subtitle.
func runLifecycle(ctx context.Context, in <-chan eventItem, out chan<- trackedItem, cmp compare.Comparator, lim Limits) {
	defer close(out)

	t := newLifecycleTracker(cmp, lim)
	defer t.discard()

	for {
		item, ok := recv(ctx, in)
		if !ok {
			if flushed, timings := t.flush(); len(flushed) > 0 {
				send(ctx, out, trackedItem{
					completed: flushed,
					timings:   timings,
					frames:    t.framesSeen(),
					samples:   t.samples,
					fps:       t.lastFPS,
				})
			}
			return
		}
		if item.err != nil {
			err := item.err
			if _, isDetect := err.(*detect.DetectionError); isDetect {
				err = &LifecycleError{Err: err}
			}
			flushed, timings := t.flush()
			if len(flushed) > 0 {
				send(ctx, out, trackedItem{
					completed: flushed,
					timings:   timings,
					frames:    t.framesSeen(),
					samples:   t.samples,
					fps:       t.lastFPS,
				})
			}
			send(ctx, out, trackedItem{err: err})
			return
		}

		completed, timings := t.processEvent(item.event)
		if !send(ctx, out, trackedItem{
			completed: completed,
			timings:   timings,
			frames:    item.event.Sample.FramesSeen,
			samples:   t.samples,
			fps:       item.event.Sample.FPS,
		}) {
			for _, r := range completed {
				r.Frame.Release()
			}
			return
		}
	}
}

// processEvent runs the per-event algorithm: extract and compare every unit
// against its active region's anchor, refresh matches, open new regions with
// backward start refinement, and close every active region the event did not
// see with forward end refinement.
func (t *lifecycleTracker) processEvent(ev *RegionEvent) ([]*CompletedRegion, RegionTimings) {
	sample := ev.Sample
	start := time.Now()
	timings := RegionTimings{Frames: 1}
	t.samples++
	t.frames = sample.FramesSeen
	t.lastFPS = sample.FPS
	t.frameW = sample.Frame.Width()
	t.frameH = sample.Frame.Height()

	var completed []*CompletedRegion
	seen := make(map[RegionID]bool, len(ev.Units))

	for _, unit := range ev.Units {
		feats, ok := t.extract(sample.Frame, unit.ROI, &timings)
		if !ok {
			// ROI outside frame bounds or degenerate; skip the unit for
			// this event only.
			video.Diagf("lifecycle: %s: feature extraction failed, unit skipped", unit.ID)
			continue
		}

		reg, exists := t.active[unit.ID]
		if exists {
			seen[unit.ID] = true
			verdict := t.compareFeatures(feats, reg.anchor(), &timings)
			if verdict.SameSegment {
				t.refresh(reg, unit, sample, feats)
				continue
			}
			// A single mismatch is absorbed: comparator false negatives on
			// one sample must not flap the region. Repeated mismatches hit
			// the explicit close policy below.
			reg.misses++
			video.Tracef("lifecycle: %s anchor mismatch %d (sim %.2f)", unit.ID, reg.misses, verdict.Similarity)
			if t.lim.MaxAnchorMisses > 0 && reg.misses >= t.lim.MaxAnchorMisses {
				if done := t.close(reg, sample.History, &timings); done != nil {
					completed = append(completed, done)
				}
				t.remove(unit.ID)
				// The mismatching observation itself opens the successor.
				t.open(unit, sample, feats, &timings)
			}
			continue
		}

		t.open(unit, sample, feats, &timings)
		seen[unit.ID] = true
	}

	// Close every region the event did not see, in insertion order.
	for _, id := range append([]RegionID(nil), t.order...) {
		if seen[id] {
			continue
		}
		reg := t.active[id]
		if done := t.close(reg, sample.History, &timings); done != nil {
			completed = append(completed, done)
		}
		t.remove(id)
	}

	// Keep the freshest snapshot for a terminal flush, then drop the
	// event's references.
	if t.haveHistory {
		t.lastHistory.Release()
	}
	t.lastHistory = sample.History.Retain()
	t.haveHistory = true
	sample.History.Release()
	sample.Frame.Release()

	timings.TotalDur = time.Since(start)
	return completed, timings
}

// refresh updates an active region with a confirmed-matching observation:
// ROI, representative frame, last seen bounds, template and anchor all move
// to the new observation (sliding-reference matching).
func (t *lifecycleTracker) refresh(reg *ActiveRegion, unit RegionUnit, sample *DetectionSample, feats compare.Features) {
	reg.ROI = unit.ROI
	reg.LastTime = sample.Time
	reg.LastFrame = sample.FrameIndex
	reg.Template = feats
	reg.Anchor = feats
	reg.misses = 0
	old := reg.Frame
	reg.Frame = sample.Frame.Retain()
	old.Release()
}

// open starts a region at the current sample, then refines the start
// backward through the history: the caption may have appeared several
// un-sampled frames earlier than the sampler's beat.
func (t *lifecycleTracker) open(unit RegionUnit, sample *DetectionSample, feats compare.Features, timings *RegionTimings) {
	reg := &ActiveRegion{
		ID:         unit.ID,
		Label:      unit.Label,
		ROI:        unit.ROI,
		Template:   feats,
		StartTime:  sample.Time,
		StartFrame: sample.FrameIndex,
		LastTime:   sample.Time,
		LastFrame:  sample.FrameIndex,
		Frame:      sample.Frame.Retain(),
	}
	t.refineStart(reg, feats, sample, timings)
	t.active[unit.ID] = reg
	t.order = append(t.order, unit.ID)
	video.Diagf("lifecycle: opened %s (%s) at frame %d (refined from %d)", reg.ID, reg.Label, reg.StartFrame, sample.FrameIndex)
}

// refineStart walks the history backward from the opening frame, sliding the
// comparison reference onto each confirmed frame, and moves the start to the
// earliest frame still judged the same segment. The walk is strictly
// monotonic and never moves the start later than the opening sample.
func (t *lifecycleTracker) refineStart(reg *ActiveRegion, opening compare.Features, sample *DetectionSample, timings *RegionTimings) {
	hist := sample.History
	pos := hist.IndexOf(sample.FrameIndex)
	if pos < 0 {
		return
	}
	ref := opening
	for i := pos - 1; i >= 0; i-- {
		rec := hist.At(i)
		feats, ok := t.extract(rec.Frame, reg.ROI, timings)
		if !ok {
			break
		}
		if !t.compareFeatures(feats, ref, timings).SameSegment {
			break
		}
		reg.StartFrame = rec.Index
		reg.StartTime = t.frameTime(rec.Frame, sample.FPS)
		ref = feats
	}
}

// close forward-refines the end boundary past the last confirmed sample and
// converts the region into a CompletedRegion, or returns nil when the region
// fails validity and is dropped.
func (t *lifecycleTracker) close(reg *ActiveRegion, hist video.HistorySnapshot, timings *RegionTimings) *CompletedRegion {
	endFrame := reg.LastFrame
	endTime := reg.LastTime

	pos := hist.IndexOf(reg.LastFrame)
	if pos >= 0 {
		ref := reg.anchor()
		for i := pos + 1; i < hist.Len(); i++ {
			rec := hist.At(i)
			feats, ok := t.extract(rec.Frame, reg.ROI, timings)
			if !ok {
				break
			}
			if !t.compareFeatures(feats, ref, timings).SameSegment {
				break
			}
			endFrame = rec.Index
			endTime = t.frameTime(rec.Frame, t.lastFPS)
			ref = feats
		}
	}

	done := &CompletedRegion{
		ID:         reg.ID,
		Label:      reg.Label,
		ROI:        reg.ROI,
		StartTime:  reg.StartTime,
		EndTime:    endTime,
		StartFrame: reg.StartFrame,
		EndFrame:   endFrame,
		Frame:      reg.Frame, // reference moves to the completed region
	}
	reg.Frame = nil

	if !t.valid(done) {
		video.Diagf("lifecycle: dropped %s (invalid: roi %.4f area, %v duration)", done.ID, done.ROI.Area(), done.Duration())
		done.Frame.Release()
		return nil
	}
	video.Diagf("lifecycle: closed %s frames %d–%d (%v–%v)", done.ID, done.StartFrame, done.EndFrame, done.StartTime, done.EndTime)
	return done
}

// valid applies the completed-region validity checks: minimum ROI area
// fraction, minimum pixel dimensions and minimum duration.
func (t *lifecycleTracker) valid(r *CompletedRegion) bool {
	if r.ROI.Area() < t.lim.MinAreaFraction {
		return false
	}
	wPx := int(r.ROI.W * float64(t.frameW))
	hPx := int(r.ROI.H * float64(t.frameH))
	if wPx < t.lim.MinDimPx || hPx < t.lim.MinDimPx {
		return false
	}
	return r.Duration() >= t.lim.MinDuration
}

// flush force-closes every still-active region against the last known
// history snapshot, in insertion order.
func (t *lifecycleTracker) flush() ([]*CompletedRegion, RegionTimings) {
	var completed []*CompletedRegion
	var timings RegionTimings
	hist := t.lastHistory
	if !t.haveHistory {
		hist = video.HistorySnapshot{}
	}
	for _, id := range append([]RegionID(nil), t.order...) {
		reg := t.active[id]
		if done := t.close(reg, hist, &timings); done != nil {
			completed = append(completed, done)
		}
		t.remove(id)
	}
	return completed, timings
}

// discard releases whatever the tracker still holds. Runs after flush on
// every exit path; a cancelled pipeline leaves no residual regions.
func (t *lifecycleTracker) discard() {
	for _, id := range append([]RegionID(nil), t.order...) {
		if reg := t.active[id]; reg != nil && reg.Frame != nil {
			reg.Frame.Release()
		}
		t.remove(id)
	}
	if t.haveHistory {
		t.lastHistory.Release()
		t.haveHistory = false
	}
}

func (t *lifecycleTracker) remove(id RegionID) {
	delete(t.active, id)
	for i, other := range t.order {
		if other == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *lifecycleTracker) extract(f *video.Frame, roi video.Rect, timings *RegionTimings) (compare.Features, bool) {
	start := time.Now()
	feats, ok := t.cmp.Extract(f, roi)
	timings.ExtractDur += time.Since(start)
	timings.Extractions++
	return feats, ok
}

func (t *lifecycleTracker) compareFeatures(a, b compare.Features, timings *RegionTimings) compare.Verdict {
	start := time.Now()
	v := t.cmp.Compare(a, b)
	timings.CompareDur += time.Since(start)
	timings.Comparisons++
	return v
}

func (t *lifecycleTracker) frameTime(f *video.Frame, fps float64) time.Duration {
	if pts, ok := f.PTS(); ok {
		return pts
	}
	if fps <= 0 {
		fps = fpsFallback
	}
	return time.Duration(float64(f.Index()) / fps * float64(time.Second))
}

func (t *lifecycleTracker) framesSeen() uint64 { return t.frames }
