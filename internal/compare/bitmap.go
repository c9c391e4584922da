package compare

import (
	"fmt"
	"math/bits"

	"github.com/framefish/subsift/internal/video"
)

// bitmapFeatures is a coarse binarized luma bitmap over a fixed grid. A set
// bit marks a grid cell brighter than the ROI mean by a fixed margin, which
// for light-on-dark captions traces the glyph mass.
type bitmapFeatures struct {
	w, h int
	bits []uint64
	set  int
}

func (*bitmapFeatures) strategy() Strategy { return StrategyBitmap }

// binarizeMargin is how far above the ROI mean a cell must be to count as
// glyph mass. Tolerant of slow background drift since the mean drifts with it.
const binarizeMargin = 24

type bitmapComparator struct {
	cfg Settings
}

func (c *bitmapComparator) Extract(f *video.Frame, roi video.Rect) (Features, bool) {
	x0, y0, x1, y1, ok := roi.PixelBounds(f.Width(), f.Height())
	if !ok {
		return nil, false
	}
	luma := f.Luma()
	stride := f.Stride(0)
	gw, gh := c.cfg.GridW, c.cfg.GridH

	// Mean over the ROI first, then cell means against it.
	var sum, n int64
	for y := y0; y < y1; y++ {
		row := luma[y*stride : y*stride+x1]
		for x := x0; x < x1; x++ {
			sum += int64(row[x])
			n++
		}
	}
	if n == 0 {
		return nil, false
	}
	mean := sum / n

	feat := &bitmapFeatures{
		w:    gw,
		h:    gh,
		bits: make([]uint64, (gw*gh+63)/64),
	}
	roiW := x1 - x0
	roiH := y1 - y0
	for cy := 0; cy < gh; cy++ {
		py0 := y0 + cy*roiH/gh
		py1 := y0 + (cy+1)*roiH/gh
		if py1 == py0 {
			py1 = py0 + 1
		}
		for cx := 0; cx < gw; cx++ {
			px0 := x0 + cx*roiW/gw
			px1 := x0 + (cx+1)*roiW/gw
			if px1 == px0 {
				px1 = px0 + 1
			}
			var cellSum, cellN int64
			for y := py0; y < py1 && y < y1; y++ {
				row := luma[y*stride:]
				for x := px0; x < px1 && x < x1; x++ {
					cellSum += int64(row[x])
					cellN++
				}
			}
			if cellN > 0 && cellSum/cellN > mean+binarizeMargin {
				i := cy*gw + cx
				feat.bits[i/64] |= 1 << (i % 64)
				feat.set++
			}
		}
	}
	return feat, true
}

func (c *bitmapComparator) Compare(a, b Features) Verdict {
	fa, okA := a.(*bitmapFeatures)
	fb, okB := b.(*bitmapFeatures)
	if !okA || !okB || fa.w != fb.w || fa.h != fb.h {
		return Verdict{Details: "incompatible feature blobs"}
	}
	// Two blank bitmaps carry no glyph evidence either way; treat as
	// continuous so captionless ROIs do not flap.
	if fa.set == 0 && fb.set == 0 {
		return Verdict{SameSegment: true, Similarity: 1, Details: "both blank"}
	}
	var inter, union int
	for i := range fa.bits {
		inter += bits.OnesCount64(fa.bits[i] & fb.bits[i])
		union += bits.OnesCount64(fa.bits[i] | fb.bits[i])
	}
	sim := 0.0
	if union > 0 {
		sim = float64(inter) / float64(union)
	}
	return Verdict{
		SameSegment: sim >= c.cfg.SameThreshold,
		Similarity:  sim,
		Details:     fmt.Sprintf("bitmap overlap %d/%d", inter, union),
	}
}
