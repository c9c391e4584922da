package detect

import (
	"fmt"

	"github.com/framefish/subsift/internal/video"
)

// lumaBand detects caption candidates by projecting horizontal luma-gradient
// energy onto rows within a configured vertical band. Consecutive energetic
// rows group into candidate boxes; column extents come from the same energy
// map. Cheap enough to run inline on the detection stage's goroutine.
type lumaBand struct {
	cfg Settings
}

func newLumaBand(cfg Settings) *lumaBand {
	if cfg.BandBottom <= cfg.BandTop {
		cfg.BandTop = 0.65
		cfg.BandBottom = 1.0
	}
	if cfg.MaxRegions <= 0 {
		cfg.MaxRegions = 4
	}
	return &lumaBand{cfg: cfg}
}

// rowGapTolerance is how many quiet rows may interrupt a text block before it
// splits into two boxes. Captions have inter-line gaps of a few pixels.
const rowGapTolerance = 3

func (d *lumaBand) Detect(f *video.Frame) (Result, error) {
	if f.Planes() == 0 {
		return Result{}, &DetectionError{Op: "frame", Err: fmt.Errorf("frame has no pixel planes")}
	}
	w, h := f.Width(), f.Height()
	luma := f.Luma()
	stride := f.Stride(0)
	if len(luma) < (h-1)*stride+w {
		return Result{}, &DetectionError{Op: "frame", Err: fmt.Errorf("luma plane short: %d bytes for %dx%d stride %d", len(luma), w, h, stride)}
	}

	y0 := int(d.cfg.BandTop * float64(h))
	y1 := int(d.cfg.BandBottom * float64(h))
	if y1 > h {
		y1 = h
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 <= y0 {
		return Result{}, nil
	}

	thr := int(d.cfg.EdgeThreshold)
	// Per-row energetic-column counts plus a column histogram reused for the
	// horizontal extent of each box.
	rowFill := make([]float64, y1-y0)
	colEnergy := make([][]bool, y1-y0)
	for y := y0; y < y1; y++ {
		row := luma[y*stride : y*stride+w]
		cols := make([]bool, w)
		count := 0
		for x := 0; x+1 < w; x++ {
			d := int(row[x+1]) - int(row[x])
			if d < 0 {
				d = -d
			}
			if d >= thr {
				cols[x] = true
				count++
			}
		}
		rowFill[y-y0] = float64(count) / float64(w)
		colEnergy[y-y0] = cols
	}

	var regions []Box
	blockStart := -1
	quiet := 0
	flush := func(endRow int) {
		if blockStart < 0 {
			return
		}
		box, ok := d.blockToBox(blockStart, endRow, y0, w, rowFill, colEnergy)
		if ok && box.Score >= d.cfg.MinScore {
			regions = append(regions, box)
		}
		blockStart = -1
	}
	for i := 0; i < len(rowFill); i++ {
		if rowFill[i] >= d.cfg.MinRowFill {
			if blockStart < 0 {
				blockStart = i
			}
			quiet = 0
			continue
		}
		if blockStart >= 0 {
			quiet++
			if quiet > rowGapTolerance {
				flush(i - quiet)
				quiet = 0
			}
		}
	}
	flush(len(rowFill) - quiet)

	if len(regions) > d.cfg.MaxRegions {
		regions = regions[:d.cfg.MaxRegions]
	}
	return Result{HasSubtitle: len(regions) > 0, Regions: regions}, nil
}

// blockToBox converts a run of energetic rows into a pixel box with a score
// equal to the mean row fill over the block.
func (d *lumaBand) blockToBox(startRow, endRow, y0, width int, rowFill []float64, colEnergy [][]bool) (Box, bool) {
	if endRow < startRow {
		endRow = startRow
	}
	if endRow >= len(rowFill) {
		endRow = len(rowFill) - 1
	}

	minX, maxX := width, 0
	var fill float64
	for r := startRow; r <= endRow; r++ {
		fill += rowFill[r]
		for x, on := range colEnergy[r] {
			if !on {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
		}
	}
	if maxX <= minX {
		return Box{}, false
	}
	rows := endRow - startRow + 1
	return Box{
		X:     minX,
		Y:     y0 + startRow,
		W:     maxX - minX + 1,
		H:     rows,
		Score: float32(fill / float64(rows)),
	}, true
}
