package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/framefish/subsift/internal/video"
)

// Determiner matching thresholds. A box re-uses the previous event's id when
// it overlaps enough or its centre barely moved, which absorbs detector
// jitter of a few pixels without inventing new identities. Identities do not
// survive an event in which the box was absent; temporal continuity is the
// lifecycle tracker's job, judged on content rather than geometry.
const (
	determinerMinIoU        = 0.3
	determinerMaxCentreDist = 0.05
)

// runDeterminer is stage 5: it stabilizes raw per-frame boxes into
// identity-bearing RegionUnits.
func runDeterminer(ctx context.Context, in <-chan sampleItem, out chan<- eventItem) {
	defer close(out)

	var prev []RegionUnit
	var nextSeq uint64

	for {
		item, ok := recv(ctx, in)
		if !ok {
			return
		}
		if item.err != nil {
			send(ctx, out, eventItem{err: item.err})
			return
		}
		sample := item.sample
		w := float64(sample.Frame.Width())
		h := float64(sample.Frame.Height())

		units := make([]RegionUnit, 0, len(sample.Detection.Regions))
		used := make([]bool, len(prev))
		for _, box := range sample.Detection.Regions {
			if box.W <= 0 || box.H <= 0 || w <= 0 || h <= 0 {
				continue
			}
			roi := video.Rect{
				X: float64(box.X) / w,
				Y: float64(box.Y) / h,
				W: float64(box.W) / w,
				H: float64(box.H) / h,
			}

			// Best unused previous unit by IoU, centre distance as the
			// tie-breaking fallback for overlap-free jitter.
			bestIdx := -1
			bestIoU := determinerMinIoU
			for i, p := range prev {
				if used[i] {
					continue
				}
				if iou := roi.IoU(p.ROI); iou >= bestIoU {
					bestIoU = iou
					bestIdx = i
				}
			}
			if bestIdx < 0 {
				for i, p := range prev {
					if used[i] {
						continue
					}
					dx := roi.CenterX() - p.ROI.CenterX()
					dy := roi.CenterY() - p.ROI.CenterY()
					if math.Hypot(dx, dy) <= determinerMaxCentreDist {
						bestIdx = i
						break
					}
				}
			}

			var unit RegionUnit
			if bestIdx >= 0 {
				used[bestIdx] = true
				unit = RegionUnit{ID: prev[bestIdx].ID, Label: prev[bestIdx].Label, ROI: roi}
			} else {
				nextSeq++
				unit = RegionUnit{
					ID:    RegionID(fmt.Sprintf("region_%d", nextSeq)),
					Label: positionLabel(roi),
					ROI:   roi,
				}
			}
			units = append(units, unit)
		}

		prev = units
		if !send(ctx, out, eventItem{event: &RegionEvent{Sample: sample, Units: units}}) {
			sample.History.Release()
			sample.Frame.Release()
			return
		}
	}
}

// positionLabel gives a human label from the region's vertical placement.
func positionLabel(roi video.Rect) string {
	switch cy := roi.CenterY(); {
	case cy >= 0.66:
		return "bottom caption"
	case cy <= 0.33:
		return "top caption"
	default:
		return "mid caption"
	}
}
