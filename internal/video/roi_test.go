package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectIoU(t *testing.T) {
	t.Parallel()

	a := Rect{X: 0.1, Y: 0.7, W: 0.5, H: 0.2}

	t.Run("identical rects", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.0, a.IoU(a), 1e-9)
	})

	t.Run("disjoint rects", func(t *testing.T) {
		t.Parallel()
		b := Rect{X: 0.7, Y: 0.1, W: 0.2, H: 0.2}
		assert.Zero(t, a.IoU(b))
	})

	t.Run("half overlap", func(t *testing.T) {
		t.Parallel()
		a := Rect{X: 0, Y: 0, W: 0.4, H: 0.4}
		b := Rect{X: 0.2, Y: 0, W: 0.4, H: 0.4}
		// Intersection 0.08, union 0.24.
		assert.InDelta(t, 1.0/3.0, a.IoU(b), 1e-9)
	})
}

func TestRectPixelBounds(t *testing.T) {
	t.Parallel()

	t.Run("full frame", func(t *testing.T) {
		t.Parallel()
		x0, y0, x1, y1, ok := (Rect{X: 0, Y: 0, W: 1, H: 1}).PixelBounds(640, 360)
		require.True(t, ok)
		assert.Equal(t, []int{0, 0, 640, 360}, []int{x0, y0, x1, y1})
	})

	t.Run("bottom band", func(t *testing.T) {
		t.Parallel()
		x0, y0, x1, y1, ok := (Rect{X: 0.25, Y: 0.75, W: 0.5, H: 0.25}).PixelBounds(100, 100)
		require.True(t, ok)
		assert.Equal(t, []int{25, 75, 75, 100}, []int{x0, y0, x1, y1})
	})

	t.Run("rect outside frame", func(t *testing.T) {
		t.Parallel()
		_, _, _, _, ok := (Rect{X: 0.8, Y: 0.8, W: 0.4, H: 0.4}).PixelBounds(100, 100)
		assert.False(t, ok)
	})

	t.Run("negative origin", func(t *testing.T) {
		t.Parallel()
		_, _, _, _, ok := (Rect{X: -0.1, Y: 0, W: 0.5, H: 0.5}).PixelBounds(100, 100)
		assert.False(t, ok)
	})

	t.Run("degenerate at pixel scale", func(t *testing.T) {
		t.Parallel()
		_, _, _, _, ok := (Rect{X: 0.5, Y: 0.5, W: 0.001, H: 0.001}).PixelBounds(100, 100)
		assert.False(t, ok)
	})
}

func TestRectGeometry(t *testing.T) {
	t.Parallel()

	r := Rect{X: 0.2, Y: 0.6, W: 0.4, H: 0.2}
	assert.InDelta(t, 0.08, r.Area(), 1e-9)
	assert.InDelta(t, 0.4, r.CenterX(), 1e-9)
	assert.InDelta(t, 0.7, r.CenterY(), 1e-9)
	assert.False(t, r.Empty())
	assert.True(t, Rect{}.Empty())
}
