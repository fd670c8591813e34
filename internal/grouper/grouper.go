/**
 * Grouper - buckets classified pages into merged form bundles
 *
 * Modes:
 * - label: one group per distinct label, pages in assignment order
 * - contiguous: adjacent pages with the same label form a run; a label that
 *   reappears after a different one opens a new group suffixed _2, _3, ...
 *   skipping any suffix another label already owns
 */

package grouper

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// Mode selects the grouping policy
type Mode string

const (
	ModeLabel      Mode = "label"
	ModeContiguous Mode = "contiguous"
)

// TextSeparator joins page texts inside a group
const TextSeparator = "\n\n"

// MergeFunc combines single-page documents into one document
type MergeFunc func(docs [][]byte) ([]byte, error)

// ConcatMerge joins page documents byte-wise
func ConcatMerge(docs [][]byte) ([]byte, error) {
	return bytes.Join(docs, nil), nil
}

// Grouper accumulates pages. Assign is safe for concurrent use but callers
// that care about group order must assign in page order.
type Grouper struct {
	mode   Mode
	merge  MergeFunc
	logger *logging.Logger

	mu        sync.Mutex
	order     []string
	groups    map[string][]*document.ProcessedPage
	lastLabel string
	runs      map[string]int
	current   string
	dirty     bool
	finalized []*document.FormGroup
}

// New creates a Grouper. A nil merge uses ConcatMerge.
func New(mode Mode, merge MergeFunc, logger *logging.Logger) *Grouper {
	if mode == "" {
		mode = ModeLabel
	}
	if merge == nil {
		merge = ConcatMerge
	}
	if logger == nil {
		logger = logging.NewLogger("Grouper")
	}
	return &Grouper{
		mode:   mode,
		merge:  merge,
		logger: logger,
		groups: make(map[string][]*document.ProcessedPage),
		runs:   make(map[string]int),
		dirty:  true,
	}
}

// Assign adds a page to the group its label selects
func (g *Grouper) Assign(page *document.ProcessedPage, label document.Label) {
	g.mu.Lock()
	defer g.mu.Unlock()

	page.Label = label
	key := g.groupKey(label.Name)
	if _, ok := g.groups[key]; !ok {
		g.order = append(g.order, key)
	}
	g.groups[key] = append(g.groups[key], page)
	g.dirty = true
}

// groupKey must be called with mu held
func (g *Grouper) groupKey(name string) string {
	if g.mode != ModeContiguous {
		return name
	}
	if name == g.lastLabel && g.current != "" {
		return g.current
	}

	// a suffixed key may equal a real label; keys holding pages are skipped
	n := g.runs[name]
	key := name
	for {
		n++
		if n > 1 {
			key = fmt.Sprintf("%s_%d", name, n)
		}
		if _, taken := g.groups[key]; !taken {
			break
		}
	}
	g.runs[name] = n
	g.lastLabel, g.current = name, key
	return key
}

// Finalize merges every group. Calling it again without new assignments
// returns equal bundles.
func (g *Grouper) Finalize() []*document.FormGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dirty {
		g.finalized = g.build()
		g.dirty = false
	}
	return snapshot(g.finalized)
}

func (g *Grouper) build() []*document.FormGroup {
	out := make([]*document.FormGroup, 0, len(g.order))
	for _, key := range g.order {
		pages := g.groups[key]

		texts := make([]string, 0, len(pages))
		fields := make([]*document.FieldSet, 0, len(pages))
		docs := make([][]byte, 0, len(pages))
		for _, p := range pages {
			texts = append(texts, p.Result.Text)
			fields = append(fields, p.Fields.Clone())
			docs = append(docs, p.Page.Document)
		}

		merged, err := g.merge(docs)
		if err != nil {
			g.logger.Warn("document merge failed, concatenating", "group", key, "pages", len(pages), "error", err)
			merged, _ = ConcatMerge(docs)
		}

		out = append(out, &document.FormGroup{
			Label:          key,
			Pages:          append([]*document.ProcessedPage(nil), pages...),
			MergedText:     strings.Join(texts, TextSeparator),
			MergedFields:   fields,
			MergedDocument: merged,
		})
	}
	return out
}

// snapshot copies group headers and slices so callers cannot disturb
// the cached bundles
func snapshot(groups []*document.FormGroup) []*document.FormGroup {
	out := make([]*document.FormGroup, len(groups))
	for i, grp := range groups {
		fields := make([]*document.FieldSet, len(grp.MergedFields))
		for j, f := range grp.MergedFields {
			fields[j] = f.Clone()
		}
		out[i] = &document.FormGroup{
			Label:          grp.Label,
			Pages:          append([]*document.ProcessedPage(nil), grp.Pages...),
			MergedText:     grp.MergedText,
			MergedFields:   fields,
			MergedDocument: append([]byte(nil), grp.MergedDocument...),
		}
	}
	return out
}
