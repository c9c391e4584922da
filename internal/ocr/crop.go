package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/framefish/subsift/internal/video"
)

// CropGray copies the ROI of a frame's luma plane into a standalone
// image.Gray. This is the one place pixel bytes cross a stage boundary by
// copy: external engines need a self-contained buffer.
func CropGray(f *video.Frame, roi video.Rect) (*image.Gray, error) {
	x0, y0, x1, y1, ok := roi.PixelBounds(f.Width(), f.Height())
	if !ok {
		return nil, fmt.Errorf("roi %+v outside %dx%d frame", roi, f.Width(), f.Height())
	}
	w := x1 - x0
	h := y1 - y0
	img := image.NewGray(image.Rect(0, 0, w, h))
	luma := f.Luma()
	stride := f.Stride(0)
	for y := 0; y < h; y++ {
		src := luma[(y0+y)*stride+x0 : (y0+y)*stride+x1]
		copy(img.Pix[y*img.Stride:y*img.Stride+w], src)
	}
	return img, nil
}

// EncodePNG renders the crop as PNG bytes for external engines.
func EncodePNG(img *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
