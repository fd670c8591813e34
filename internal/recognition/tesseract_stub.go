//go:build !ocr

package recognition

import (
	"context"
	"errors"
)

// ErrOCRNotEnabled is returned when the binary was built without Tesseract.
// Rebuild with -tags ocr to enable local OCR.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// TesseractEngine is a stub used when the "ocr" build tag is not set
type TesseractEngine struct{}

// NewTesseractEngine reports that local OCR was not compiled in
func NewTesseractEngine(language string) (*TesseractEngine, error) {
	return nil, ErrOCRNotEnabled
}

func (t *TesseractEngine) Name() string { return "tesseract" }

func (t *TesseractEngine) Recognize(ctx context.Context, png []byte) (string, error) {
	return "", ErrOCRNotEnabled
}
