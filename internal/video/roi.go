package video

// Rect is a normalized region of interest within a frame. All fields are in
// the 0–1 range relative to frame dimensions.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns the normalized area fraction (W*H).
func (r Rect) Area() float64 { return r.W * r.H }

// Empty reports whether the rect has no extent.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// CenterX returns the normalized horizontal centre.
func (r Rect) CenterX() float64 { return r.X + r.W/2 }

// CenterY returns the normalized vertical centre.
func (r Rect) CenterY() float64 { return r.Y + r.H/2 }

// Intersect returns the overlapping rect of r and o (empty if disjoint).
func (r Rect) Intersect(o Rect) Rect {
	x0 := maxf(r.X, o.X)
	y0 := maxf(r.Y, o.Y)
	x1 := minf(r.X+r.W, o.X+o.W)
	y1 := minf(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// IoU returns the intersection-over-union of two rects.
func (r Rect) IoU(o Rect) float64 {
	inter := r.Intersect(o).Area()
	if inter <= 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// PixelBounds converts the normalized rect to pixel coordinates within a
// width×height frame. ok is false when the rect does not lie fully inside the
// frame or degenerates to zero pixels; callers treat that as a soft failure.
func (r Rect) PixelBounds(width, height int) (x0, y0, x1, y1 int, ok bool) {
	if r.X < 0 || r.Y < 0 || r.X+r.W > 1.000001 || r.Y+r.H > 1.000001 {
		return 0, 0, 0, 0, false
	}
	x0 = int(r.X * float64(width))
	y0 = int(r.Y * float64(height))
	x1 = int((r.X + r.W) * float64(width))
	y1 = int((r.Y + r.H) * float64(height))
	if x1 > width {
		x1 = width
	}
	if y1 > height {
		y1 = height
	}
	if x1 <= x0 || y1 <= y0 {
		return 0, 0, 0, 0, false
	}
	return x0, y0, x1, y1, true
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
