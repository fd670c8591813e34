/**
 * Recognition Engines - capability interfaces for page text recovery
 *
 * Three kinds of backend can produce text for a page:
 * - LocalEngine: offline OCR over a rasterized page image
 * - VisionRefiner: a vision-capable language model reading the page image
 * - LayoutAnalyzer: a document-AI service reading the whole source PDF once
 */

package recognition

import "context"

// LocalEngine recognizes text in a PNG-encoded image
type LocalEngine interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (string, error)
}

// VisionRefiner transcribes a PNG-encoded page image with a language model
type VisionRefiner interface {
	Refine(ctx context.Context, png []byte) (string, error)
}

// LayoutAnalyzer returns per-page text for a whole PDF; index 0 is page 1
type LayoutAnalyzer interface {
	AnalyzeDocument(ctx context.Context, pdf []byte) ([]string, error)
}
