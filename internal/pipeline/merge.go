package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/framefish/subsift/internal/video"
)

// merger is stage 8. It owns the cue timeline: recognized regions either
// extend a recent cue (same text, overlapping or near window) or append a
// new one.
// Detector flicker around a stable caption shows up here as a run of
// near-identical recognized regions; merging them is what turns region
// churn into one cue.
type merger struct {
	gap   time.Duration
	cues  []MergedSubtitle
	stats SubtitleStats
}

func runMerge(ctx context.Context, in <-chan recognizedItem, out chan<- mergedItem, lim Limits) {
	defer close(out)

	m := &merger{gap: lim.MergeGap}
	for {
		item, ok := recv(ctx, in)
		if !ok {
			return
		}
		if item.err != nil {
			send(ctx, out, mergedItem{err: item.err, stats: m.stats})
			return
		}

		m.stats.RegionsDropped += int(item.dropped)
		var updates []SubtitleUpdate
		for _, region := range item.regions {
			m.stats.RegionsRecognized++
			updates = append(updates, m.absorb(region))
		}
		m.stats.Cues = len(m.cues)
		m.stats.TotalCueDuration = 0
		for _, cue := range m.cues {
			m.stats.TotalCueDuration += cue.End - cue.Start
		}

		if !send(ctx, out, mergedItem{
			updates: updates,
			stats:   m.stats,
			timings: item.timings,
			frames:  item.frames,
			samples: item.samples,
			fps:     item.fps,
		}) {
			return
		}
	}
}

// mergeScanTail bounds how far back a late-closing region may reach for a
// cue to extend. Regions close out of start order but not by much.
const mergeScanTail = 8

// absorb folds one recognized region into the timeline and returns the
// resulting update. The timeline stays sorted and non-overlapping: an
// extension is capped at its neighbours, a new cue starts no earlier than
// the previous cue's end.
func (m *merger) absorb(region *RecognizedRegion) SubtitleUpdate {
	lines := regionLines(region)
	conf := regionConfidence(region)

	if idx := m.matchCue(region, lines); idx >= 0 {
		// Same caption resurfacing after a short blackout or detector
		// flicker: extend the existing cue instead of duplicating it.
		cue := &m.cues[idx]
		if region.EndTime > cue.End {
			cue.End = region.EndTime
		}
		if region.StartTime < cue.Start {
			cue.Start = region.StartTime
		}
		if idx+1 < len(m.cues) && cue.End > m.cues[idx+1].Start {
			cue.End = m.cues[idx+1].Start
		}
		if idx > 0 && cue.Start < m.cues[idx-1].End {
			cue.Start = m.cues[idx-1].End
		}
		cue.Regions = append(cue.Regions, region.ID)
		if conf > cue.Confidence {
			cue.Confidence = conf
		}
		m.stats.RegionsMerged++
		video.Tracef("merge: extended cue %d through %v (%s)", idx, cue.End, region.ID)
		return SubtitleUpdate{Kind: UpdateUpdated, Index: idx, Cue: *cue}
	}

	start, end := region.StartTime, region.EndTime
	if last := m.lastCue(); last != nil && start < last.End {
		start = last.End
	}
	if end < start {
		end = start
	}
	cue := MergedSubtitle{
		TimedSubtitle: TimedSubtitle{
			Start: start,
			End:   end,
			Lines: lines,
		},
		Regions:    []RegionID{region.ID},
		Confidence: conf,
	}
	m.cues = append(m.cues, cue)
	video.Tracef("merge: new cue %d %v to %v", len(m.cues)-1, cue.Start, cue.End)
	return SubtitleUpdate{Kind: UpdateNew, Index: len(m.cues) - 1, Cue: cue}
}

// matchCue scans the timeline tail newest-first for a cue with the same text
// whose window overlaps the region's or sits within the merge gap of it.
func (m *merger) matchCue(region *RecognizedRegion, lines []string) int {
	lo := len(m.cues) - mergeScanTail
	if lo < 0 {
		lo = 0
	}
	for i := len(m.cues) - 1; i >= lo; i-- {
		cue := &m.cues[i]
		if !sameText(cue.Lines, lines) {
			continue
		}
		if region.StartTime <= cue.End+m.gap && cue.Start <= region.EndTime+m.gap {
			return i
		}
	}
	return -1
}

func (m *merger) lastCue() *MergedSubtitle {
	if len(m.cues) == 0 {
		return nil
	}
	return &m.cues[len(m.cues)-1]
}

// regionLines orders a region's recognized texts top to bottom, then left to
// right, and normalizes whitespace within each line.
func regionLines(region *RecognizedRegion) []string {
	type placed struct {
		y, x float64
		s    string
	}
	var texts []placed
	for _, t := range region.Texts {
		s := strings.Join(strings.Fields(t.Text), " ")
		if s == "" {
			continue
		}
		texts = append(texts, placed{t.ROI.Y, t.ROI.X, s})
	}
	sort.SliceStable(texts, func(i, j int) bool {
		if texts[i].y != texts[j].y {
			return texts[i].y < texts[j].y
		}
		return texts[i].x < texts[j].x
	})
	lines := make([]string, 0, len(texts))
	for _, t := range texts {
		lines = append(lines, t.s)
	}
	return lines
}

func regionConfidence(region *RecognizedRegion) float32 {
	if len(region.Texts) == 0 {
		return 0
	}
	var sum float32
	for _, t := range region.Texts {
		sum += t.Confidence
	}
	return sum / float32(len(region.Texts))
}

// sameText reports whether two cue texts are the same caption, tolerating a
// small OCR variance between passes over the same pixels.
func sameText(a, b []string) bool {
	sa := normalizeText(a)
	sb := normalizeText(b)
	if sa == sb {
		return true
	}
	limit := len(sa)
	if len(sb) > limit {
		limit = len(sb)
	}
	allowed := limit / 10
	if allowed < 1 {
		allowed = 1
	}
	return editDistance(sa, sb) <= allowed
}

func normalizeText(lines []string) string {
	return strings.ToLower(strings.Join(lines, "\n"))
}

// editDistance is plain Levenshtein over bytes with a two-row table.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
