//go:build ocr

package recognition

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// renderText draws black text on white and scales it up so Tesseract can read it
func renderText(text string) image.Image {
	small := image.NewGray(image.Rect(0, 0, 8*len(text)+20, 30))
	draw.Draw(small, small.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 20),
	}
	d.DrawString(text)

	big := image.NewGray(image.Rect(0, 0, small.Bounds().Dx()*4, small.Bounds().Dy()*4))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)
	return big
}

func TestTesseractEngineRecognize(t *testing.T) {
	engine, err := NewTesseractEngine("eng")
	if err != nil {
		t.Skipf("tesseract unavailable: %v", err)
	}

	data, err := EncodePNG(renderText("COMMERCIAL INVOICE"))
	if err != nil {
		t.Fatal(err)
	}

	text, err := engine.Recognize(context.Background(), data)
	if err != nil {
		t.Skipf("tesseract could not run: %v", err)
	}
	if !strings.Contains(strings.ToUpper(text), "INVOICE") {
		t.Logf("tesseract output: %q", text)
	}
}
