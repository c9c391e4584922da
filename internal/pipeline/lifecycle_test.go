package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/video"
)

// lifecycleRun drives runLifecycle over hand-built events. scenes maps frame
// index to scene byte ('a', 'b' or ' '); events name the sampled frame
// indices, each optionally carrying the single test unit "u1".
type lifecycleRun struct {
	t       *testing.T
	frames  []*video.Frame
	history *video.FrameHistory
	in      chan eventItem
	out     chan trackedItem
	next    uint64
}

func newLifecycleRun(t *testing.T, scenes string, lim Limits) *lifecycleRun {
	t.Helper()
	r := &lifecycleRun{
		t:       t,
		frames:  sceneFrames(t, scenes),
		history: video.NewFrameHistory(lim.HistoryDepth),
		in:      make(chan eventItem, 16),
		out:     make(chan trackedItem, 16),
	}
	go runLifecycle(context.Background(), r.in, r.out, testComparator(t), lim)
	return r
}

// event advances the history through frame idx and sends one event sampled
// there. withUnit mimics the determiner reporting the full-frame unit "u1".
func (r *lifecycleRun) event(idx uint64, withUnit bool) {
	r.t.Helper()
	var units []RegionUnit
	if withUnit {
		units = []RegionUnit{{ID: "u1", ROI: fullROI, Label: "bottom caption"}}
	}
	r.eventUnits(idx, units)
}

// eventUnits is event with an explicit unit list, for sub-frame ROIs.
func (r *lifecycleRun) eventUnits(idx uint64, units []RegionUnit) {
	r.t.Helper()
	for ; r.next <= idx; r.next++ {
		r.history.Append(r.frames[r.next])
	}
	sample := &DetectionSample{
		Frame:      r.frames[idx].Retain(),
		FrameIndex: idx,
		Time:       time.Duration(idx) * 100 * time.Millisecond,
		FPS:        10,
		FramesSeen: idx + 1,
		History:    r.history.Snapshot(),
	}
	r.in <- eventItem{event: &RegionEvent{Sample: sample, Units: units}}
}

func (r *lifecycleRun) fail(err error) { r.in <- eventItem{err: err} }

// finish closes the input and returns everything the tracker emitted.
func (r *lifecycleRun) finish() []trackedItem {
	r.t.Helper()
	close(r.in)
	items := collect(r.t, r.out)
	r.history.Close()
	return items
}

func completions(items []trackedItem) []*CompletedRegion {
	var all []*CompletedRegion
	for _, item := range items {
		all = append(all, item.completed...)
	}
	return all
}

func releaseCompletions(regions []*CompletedRegion) {
	for _, r := range regions {
		r.Frame.Release()
	}
}

func TestLifecycleSingleRegion(t *testing.T) {
	t.Parallel()

	// Caption 'a' on frames 0..14, blank after. Events at 0 and 10 see it;
	// the event at 20 does not.
	r := newLifecycleRun(t, "aaaaaaaaaaaaaaa      ", fastLimits())
	r.event(0, true)
	r.event(10, true)
	r.event(20, false)
	items := r.finish()

	done := completions(items)
	require.Len(t, done, 1)
	defer releaseCompletions(done)

	reg := done[0]
	assert.Equal(t, RegionID("u1"), reg.ID)
	assert.Equal(t, uint64(0), reg.StartFrame)
	assert.Equal(t, time.Duration(0), reg.StartTime)

	// Forward refinement pushes the end past the last sampled sighting
	// (frame 10) to the last history frame still matching (frame 14).
	assert.Equal(t, uint64(14), reg.EndFrame)
	assert.Equal(t, 1400*time.Millisecond, reg.EndTime)
}

func TestLifecycleBackwardRefinement(t *testing.T) {
	t.Parallel()

	// Caption appears at frame 5 but is first sampled at frame 10.
	r := newLifecycleRun(t, "     aaaaaa          ", fastLimits())
	r.event(2, false)
	r.event(10, true)
	r.event(20, false)
	items := r.finish()

	done := completions(items)
	require.Len(t, done, 1)
	defer releaseCompletions(done)

	reg := done[0]
	assert.Equal(t, uint64(5), reg.StartFrame, "start walks back to the first matching frame")
	assert.Equal(t, 500*time.Millisecond, reg.StartTime)
	assert.Equal(t, uint64(10), reg.EndFrame, "frame 11 is blank, end stays at the sighting")
}

func TestLifecycleAnchorMissPolicy(t *testing.T) {
	t.Parallel()

	lim := fastLimits()
	lim.MaxAnchorMisses = 2

	// Text 'a' through frame 19, then 'b' from frame 20 on, all at the same
	// screen position so the determiner keeps a single identity.
	r := newLifecycleRun(t, "aaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbb", lim)
	r.event(0, true)
	r.event(10, true)
	r.event(20, true) // mismatch 1
	r.event(30, true) // mismatch 2: close and reopen
	items := r.finish()

	done := completions(items)
	require.Len(t, done, 2)
	defer releaseCompletions(done)

	first, second := done[0], done[1]
	assert.Equal(t, uint64(0), first.StartFrame)
	assert.Equal(t, uint64(19), first.EndFrame, "old text's end refined into the history")

	// The mismatching observation opens the successor, back-refined to the
	// first 'b' frame.
	assert.Equal(t, uint64(20), second.StartFrame)
	assert.Equal(t, uint64(30), second.EndFrame, "flush ends at the last snapshot frame")
}

func TestLifecycleMissPolicyDisabled(t *testing.T) {
	t.Parallel()

	lim := fastLimits()
	lim.MaxAnchorMisses = 0

	r := newLifecycleRun(t, "aaaaaaaaaaabbbbbbbbbb", lim)
	r.event(0, true)
	r.event(10, true)
	r.event(12, true) // mismatch, absorbed forever
	r.event(14, true)
	r.event(16, true)
	items := r.finish()

	done := completions(items)
	require.Len(t, done, 1, "zero means the region never times out")
	defer releaseCompletions(done)
	assert.Equal(t, uint64(0), done[0].StartFrame)
}

func TestLifecycleRefinementTimings(t *testing.T) {
	t.Parallel()

	t.Run("event close counts the forward walk", func(t *testing.T) {
		t.Parallel()
		r := newLifecycleRun(t, "aaaaaaaaaaaaaaa      ", fastLimits())
		r.event(0, true)
		r.event(10, true)
		r.event(20, false)
		items := r.finish()

		done := completions(items)
		require.Len(t, done, 1)
		defer releaseCompletions(done)

		// The closing event carries no units, so its counters come from the
		// walk alone: frames 11..14 match, frame 15 stops it.
		var closing *trackedItem
		for i := range items {
			if len(items[i].completed) == 1 {
				closing = &items[i]
			}
		}
		require.NotNil(t, closing)
		assert.Equal(t, 5, closing.timings.Extractions)
		assert.Equal(t, 5, closing.timings.Comparisons)
	})

	t.Run("flush close counts the forward walk", func(t *testing.T) {
		t.Parallel()
		lim := fastLimits()
		lim.MaxAnchorMisses = 0

		// 'b' from frame 15 is absorbed as a miss, so the last confirmed
		// sighting stays at frame 10 while the history advances to 20.
		r := newLifecycleRun(t, "aaaaaaaaaaaaaaabbbbbb", lim)
		r.event(0, true)
		r.event(10, true)
		r.event(20, true)
		items := r.finish()

		done := completions(items)
		require.Len(t, done, 1)
		defer releaseCompletions(done)
		assert.Equal(t, uint64(14), done[0].EndFrame)

		flush := items[len(items)-1]
		require.Len(t, flush.completed, 1)
		assert.Equal(t, 5, flush.timings.Extractions)
		assert.Equal(t, 5, flush.timings.Comparisons)
	})
}

func TestLifecycleValidityDrop(t *testing.T) {
	t.Parallel()

	assertDropped := func(t *testing.T, r *lifecycleRun, reason string) {
		t.Helper()
		items := r.finish()
		assert.Empty(t, completions(items), reason)
		for _, f := range r.frames {
			assert.Equal(t, int32(1), f.Refs(), "dropped region must not leak frame %d", f.Index())
		}
	}

	t.Run("sub-minimum duration", func(t *testing.T) {
		t.Parallel()
		// Caption lasts two frames, well under the 300ms minimum at 10 fps.
		r := newLifecycleRun(t, "aa        ", fastLimits())
		r.event(0, true)
		r.event(5, false)
		assertDropped(t, r, "sub-minimum duration is dropped")
	})

	t.Run("sub-minimum area", func(t *testing.T) {
		t.Parallel()
		lim := fastLimits()
		lim.MinAreaFraction = 0.2
		lim.MinDimPx = 1

		// The box covers an eighth of the frame, clear of the 0.2 floor.
		small := video.Rect{X: 0, Y: 0.25, W: 0.5, H: 0.25}
		r := newLifecycleRun(t, "aaaaaaaaaaaaaaa      ", lim)
		r.eventUnits(0, []RegionUnit{{ID: "u1", ROI: small, Label: "top caption"}})
		r.eventUnits(10, []RegionUnit{{ID: "u1", ROI: small, Label: "top caption"}})
		r.eventUnits(20, nil)
		assertDropped(t, r, "sub-minimum area is dropped")
	})

	t.Run("sub-minimum pixel dims", func(t *testing.T) {
		t.Parallel()
		// Half frame width but only 4 rows tall, under the 8px floor on a
		// 64x32 frame. Area alone clears the default fraction.
		thin := video.Rect{X: 0, Y: 0.25, W: 0.5, H: 0.125}
		r := newLifecycleRun(t, "aaaaaaaaaaaaaaa      ", fastLimits())
		r.eventUnits(0, []RegionUnit{{ID: "u1", ROI: thin, Label: "top caption"}})
		r.eventUnits(10, []RegionUnit{{ID: "u1", ROI: thin, Label: "top caption"}})
		r.eventUnits(20, nil)
		assertDropped(t, r, "sub-minimum pixel dims are dropped")
	})
}

func TestLifecycleFlushOnTermination(t *testing.T) {
	t.Parallel()

	t.Run("clean end flushes active regions", func(t *testing.T) {
		t.Parallel()
		r := newLifecycleRun(t, "aaaaaaaaaaaaaaa", fastLimits())
		r.event(0, true)
		r.event(10, true)
		items := r.finish()

		done := completions(items)
		require.Len(t, done, 1)
		defer releaseCompletions(done)
		assert.Equal(t, uint64(10), done[0].EndFrame, "flush closes at the last confirmed sighting")
	})

	t.Run("decode error flushes before the terminal item", func(t *testing.T) {
		t.Parallel()
		r := newLifecycleRun(t, "aaaaaaaaaaaa", fastLimits())
		r.event(0, true)
		r.event(10, true)
		r.fail(&detect.DetectionError{Op: "detect", Err: assert.AnError})
		items := r.finish()

		require.GreaterOrEqual(t, len(items), 2)
		last := items[len(items)-1]
		require.Error(t, last.err)
		var lifeErr *LifecycleError
		assert.ErrorAs(t, last.err, &lifeErr)
		assert.Empty(t, last.completed, "the terminal item carries only the error")

		done := completions(items[:len(items)-1])
		require.Len(t, done, 1, "the active region is flushed first")
		releaseCompletions(done)
	})
}

func TestLifecycleUnitSkippedOnBadROI(t *testing.T) {
	t.Parallel()

	r := newLifecycleRun(t, "aaaa", fastLimits())
	r.history.Append(r.frames[0])
	r.next = 1
	sample := &DetectionSample{
		Frame:      r.frames[0].Retain(),
		FrameIndex: 0,
		FPS:        10,
		FramesSeen: 1,
		History:    r.history.Snapshot(),
	}
	r.in <- eventItem{event: &RegionEvent{Sample: sample, Units: []RegionUnit{
		{ID: "oob", ROI: video.Rect{X: 0.9, Y: 0.9, W: 0.5, H: 0.5}},
	}}}
	items := r.finish()

	assert.Empty(t, completions(items), "an unextractable unit opens nothing")
}
