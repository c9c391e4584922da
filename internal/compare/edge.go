package compare

import (
	"fmt"

	"github.com/framefish/subsift/internal/video"
)

// edgeFeatures is a sparse set of edge points on a fixed grid, extracted
// where the horizontal luma gradient exceeds the threshold. Cheaper to match
// than bitmaps when glyph outlines matter more than fill (outlined fonts,
// translucent boxes).
type edgeFeatures struct {
	w, h   int
	points []edgePoint
}

type edgePoint struct {
	x, y int16
}

func (*edgeFeatures) strategy() Strategy { return StrategyEdge }

type edgeComparator struct {
	cfg Settings
}

func (c *edgeComparator) Extract(f *video.Frame, roi video.Rect) (Features, bool) {
	x0, y0, x1, y1, ok := roi.PixelBounds(f.Width(), f.Height())
	if !ok {
		return nil, false
	}
	luma := f.Luma()
	stride := f.Stride(0)
	gw, gh := c.cfg.GridW, c.cfg.GridH
	roiW := x1 - x0
	roiH := y1 - y0
	thr := int(c.cfg.EdgeThreshold)

	feat := &edgeFeatures{w: gw, h: gh}
	seen := make(map[int32]struct{}, c.cfg.MaxPoints)
	// Stride the scan so dense ROIs still respect MaxPoints without biasing
	// toward the top rows.
	stepY := roiH / (gh * 2)
	if stepY < 1 {
		stepY = 1
	}
	for y := y0; y < y1; y += stepY {
		row := luma[y*stride : y*stride+x1]
		for x := x0; x+1 < x1; x++ {
			d := int(row[x+1]) - int(row[x])
			if d < 0 {
				d = -d
			}
			if d < thr {
				continue
			}
			gx := int16((x - x0) * gw / roiW)
			gy := int16((y - y0) * gh / roiH)
			key := int32(gy)*int32(gw) + int32(gx)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			feat.points = append(feat.points, edgePoint{x: gx, y: gy})
			if len(feat.points) >= c.cfg.MaxPoints {
				return feat, true
			}
		}
	}
	return feat, true
}

func (c *edgeComparator) Compare(a, b Features) Verdict {
	fa, okA := a.(*edgeFeatures)
	fb, okB := b.(*edgeFeatures)
	if !okA || !okB || fa.w != fb.w || fa.h != fb.h {
		return Verdict{Details: "incompatible feature blobs"}
	}
	if len(fa.points) == 0 && len(fb.points) == 0 {
		return Verdict{SameSegment: true, Similarity: 1, Details: "both empty"}
	}
	if len(fa.points) == 0 || len(fb.points) == 0 {
		return Verdict{Similarity: 0, Details: "one side empty"}
	}
	simAB := matchedFraction(fa.points, fb, c.cfg.MatchRadius)
	simBA := matchedFraction(fb.points, fa, c.cfg.MatchRadius)
	sim := simAB
	if simBA < sim {
		sim = simBA
	}
	return Verdict{
		SameSegment: sim >= c.cfg.SameThreshold,
		Similarity:  sim,
		Details:     fmt.Sprintf("edge match a→b %.2f b→a %.2f", simAB, simBA),
	}
}

// matchedFraction returns the fraction of pts with a counterpart in other
// within radius grid cells (Chebyshev distance).
func matchedFraction(pts []edgePoint, other *edgeFeatures, radius int) float64 {
	occupied := make(map[int32]struct{}, len(other.points))
	for _, p := range other.points {
		occupied[int32(p.y)*int32(other.w)+int32(p.x)] = struct{}{}
	}
	matched := 0
	for _, p := range pts {
		if hasNeighbour(occupied, int(p.x), int(p.y), other.w, other.h, radius) {
			matched++
		}
	}
	return float64(matched) / float64(len(pts))
}

func hasNeighbour(occupied map[int32]struct{}, x, y, w, h, radius int) bool {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			if _, ok := occupied[int32(ny)*int32(w)+int32(nx)]; ok {
				return true
			}
		}
	}
	return false
}
