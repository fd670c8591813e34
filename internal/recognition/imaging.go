package recognition

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Rotations are tried in this order; the first wins ties
var Rotations = []int{0, 90, 180, 270}

// Grayscale returns a grayscale copy of img
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Downscale shrinks img so its longer side is at most maxSide.
// Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}

	scale := float64(maxSide) / float64(w)
	if h > w {
		scale = float64(maxSide) / float64(h)
	}
	targetW := max(1, int(float64(w)*scale))
	targetH := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Rotate turns a grayscale image clockwise by a multiple of 90 degrees
func Rotate(src *image.Gray, degrees int) (*image.Gray, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	switch degrees {
	case 0:
		dst := image.NewGray(image.Rect(0, 0, w, h))
		copy(dst.Pix, grayPix(src))
		return dst, nil
	case 90:
		dst := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetGray(h-1-y, x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst, nil
	case 180:
		dst := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetGray(w-1-x, h-1-y, src.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst, nil
	case 270:
		dst := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.SetGray(y, w-1-x, src.GrayAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("unsupported rotation: %d", degrees)
}

// grayPix returns src's pixels as a tightly packed slice
func grayPix(src *image.Gray) []byte {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if src.Stride == w && b.Min == (image.Point{}) {
		return src.Pix
	}
	out := make([]byte, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := src.PixOffset(b.Min.X, y)
		out = append(out, src.Pix[off:off+w]...)
	}
	return out
}

// EncodePNG encodes img as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
