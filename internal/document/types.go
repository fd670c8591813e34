/**
 * Document Types - Shared data structures for the page pipeline
 *
 * Used by recognition, classification, grouping and storage
 */

package document

import (
	"fmt"
	"image"
)

// NoTextFound is the authoritative text of a page that no engine could read
const NoTextFound = "NO_TEXT_FOUND"

// SourceEngine identifies which recognition engine supplied a page's text
type SourceEngine string

const (
	SourceLocalOCR   SourceEngine = "local_ocr"
	SourceDocumentAI SourceEngine = "document_ai"
	SourceVisionLLM  SourceEngine = "vision_llm"
	SourceNone       SourceEngine = "none"
)

// LabelOrigin identifies the classification tier that produced a label
type LabelOrigin string

const (
	OriginRule         LabelOrigin = "rule"
	OriginCatalogMatch LabelOrigin = "catalog_match"
	OriginGenerative   LabelOrigin = "generative"
	OriginFallback     LabelOrigin = "fallback"
)

// Unclassified is the label given to pages no tier could name
const Unclassified = "unclassified"

// Page is one single-page unit split from a source document
type Page struct {
	Index    int         // 1-based
	Image    image.Image // set only while the page is recognized; nil when rasterizing failed
	Document []byte      // single-page PDF
}

// Label returns the page's artifact name, e.g. "page_03"
func (p *Page) Label() string {
	return PageLabel(p.Index)
}

// PageLabel formats a 1-based page index as an artifact name
func PageLabel(index int) string {
	return fmt.Sprintf("page_%02d", index)
}

// RecognitionResult is the text the cascade settled on for a page
type RecognitionResult struct {
	Source     SourceEngine
	Text       string
	Confidence float64 // length/validity proxy in [0,1]
	Rotation   int     // degrees applied to the local candidate
}

// Found reports whether any engine produced usable text
func (r RecognitionResult) Found() bool {
	return r.Text != NoTextFound && r.Source != SourceNone
}

// Label is the normalized form-type tag of a page
type Label struct {
	Name     string
	Origin   LabelOrigin
	Score    float64
	HasScore bool
}

// ProcessedPage carries a page through the pipeline once recognized and classified
type ProcessedPage struct {
	Page   *Page
	Result RecognitionResult
	Fields *FieldSet
	Label  Label
}

// FormGroup is the merged bundle of all pages sharing one label
type FormGroup struct {
	Label          string
	Pages          []*ProcessedPage
	MergedText     string
	MergedFields   []*FieldSet
	MergedDocument []byte
}

// PageIndexes lists member page indexes in assignment order
func (g *FormGroup) PageIndexes() []int {
	out := make([]int, 0, len(g.Pages))
	for _, p := range g.Pages {
		out = append(out, p.Page.Index)
	}
	return out
}
