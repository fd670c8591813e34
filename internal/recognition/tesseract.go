//go:build ocr

package recognition

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine is the local OCR engine backed by Tesseract.
// A fresh gosseract client is created per call since clients are not
// safe for concurrent use.
type TesseractEngine struct {
	language string
}

// NewTesseractEngine creates a Tesseract engine for the given language(s), e.g. "eng" or "eng+fra"
func NewTesseractEngine(language string) (*TesseractEngine, error) {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}, nil
}

func (t *TesseractEngine) Name() string { return "tesseract" }

// Recognize performs OCR on PNG data
func (t *TesseractEngine) Recognize(ctx context.Context, png []byte) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if err := client.SetLanguage(t.language); err != nil {
			done <- result{err: fmt.Errorf("failed to set language: %w", err)}
			return
		}
		if err := client.SetImageFromBytes(png); err != nil {
			done <- result{err: fmt.Errorf("failed to set image: %w", err)}
			return
		}
		text, err := client.Text()
		if err != nil {
			done <- result{err: fmt.Errorf("tesseract OCR failed: %w", err)}
			return
		}
		done <- result{text: text}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}
