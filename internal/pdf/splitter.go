// Package pdf splits source documents into single-page units, merges units
// back together and renders pages to images.
package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Never read or create a pdfcpu config dir under the user's home.
	api.DisableConfigDir()
}

// Splitter wraps pdfcpu with a relaxed validation configuration
type Splitter struct {
	conf *model.Configuration
}

// NewSplitter creates a Splitter
func NewSplitter() *Splitter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Splitter{conf: conf}
}

// PageCount returns the number of pages in a PDF
func (s *Splitter) PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), s.conf)
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	return n, nil
}

// Split returns one single-page PDF per page, in page order
func (s *Splitter) Split(pdf []byte) ([][]byte, error) {
	n, err := s.PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([][]byte, 0, n)
	for i := 1; i <= n; i++ {
		var buf bytes.Buffer
		if err := api.Trim(bytes.NewReader(pdf), &buf, []string{fmt.Sprint(i)}, s.conf); err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}

// Merge combines PDFs into one document, keeping their order
func (s *Splitter) Merge(docs [][]byte) ([]byte, error) {
	switch len(docs) {
	case 0:
		return nil, fmt.Errorf("nothing to merge")
	case 1:
		return append([]byte(nil), docs[0]...), nil
	}

	readers := make([]io.ReadSeeker, 0, len(docs))
	for _, d := range docs {
		readers = append(readers, bytes.NewReader(d))
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, s.conf); err != nil {
		return nil, fmt.Errorf("merge %d documents: %w", len(docs), err)
	}
	return buf.Bytes(), nil
}
