package recognition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LayoutCache memoizes one document-AI analysis per document. The first
// page that asks triggers the call; every later page reads the stored
// result. A failed call is cached too, so the service is asked at most once.
type LayoutCache struct {
	analyzer LayoutAnalyzer
	pdf      []byte
	timeout  time.Duration

	once  sync.Once
	pages []string
	err   error
	calls atomic.Int32
}

// NewLayoutCache scopes a cache to one document. A nil analyzer yields a
// cache that never has text.
func NewLayoutCache(analyzer LayoutAnalyzer, pdf []byte, timeout time.Duration) *LayoutCache {
	return &LayoutCache{analyzer: analyzer, pdf: pdf, timeout: timeout}
}

// PageText returns the analyzed text of the 1-based page index
func (c *LayoutCache) PageText(ctx context.Context, index int) (string, error) {
	if c == nil || c.analyzer == nil {
		return "", nil
	}

	c.once.Do(func() {
		c.calls.Add(1)
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		c.pages, c.err = c.analyzer.AnalyzeDocument(callCtx, c.pdf)
	})

	if c.err != nil {
		return "", c.err
	}
	if index < 1 || index > len(c.pages) {
		return "", nil
	}
	return c.pages[index-1], nil
}

// Calls reports how many times the backing analysis ran (0 or 1)
func (c *LayoutCache) Calls() int {
	if c == nil {
		return 0
	}
	return int(c.calls.Load())
}
