package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/xuri/excelize/v2"
)

// DefaultThreshold is the minimum partial-ratio score (0-100) for a catalog match
const DefaultThreshold = 70

// GroupCatalogCutoff is the minimum similarity (0-1) for recording a group
// against a master catalog entry
const GroupCatalogCutoff = 0.6

// CatalogEntry is one document type from the master registry
type CatalogEntry struct {
	ID   string
	Name string
}

// CatalogSource lists the document types known to the registry
type CatalogSource interface {
	Entries(ctx context.Context) ([]CatalogEntry, error)
}

// Names returns the entry names in order
func Names(entries []CatalogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

// StaticCatalog is a fixed in-memory catalog
type StaticCatalog []CatalogEntry

// DefaultCatalog mirrors the document types of the master document set
var DefaultCatalog = StaticCatalog{
	{Name: "SWIFT"},
	{Name: "Letter of Credit"},
	{Name: "Packing List"},
	{Name: "Certificate of Origin"},
	{Name: "Bill of Lading"},
	{Name: "Certificate from Shipping Company"},
	{Name: "Bill of Exchange"},
	{Name: "Invoice"},
	{Name: "Insurance Certificate"},
	{Name: "Mill Certificate"},
	{Name: "Certificate of Weight"},
	{Name: "Air Waybill"},
}

func (s StaticCatalog) Entries(ctx context.Context) ([]CatalogEntry, error) {
	out := make([]CatalogEntry, len(s))
	copy(out, s)
	return out, nil
}

// ExcelCatalog reads document types from a workbook column titled
// "Document name". An optional "Document ID" column supplies IDs.
type ExcelCatalog struct {
	Path  string
	Sheet string // empty means the first sheet
}

func (x ExcelCatalog) Entries(ctx context.Context) ([]CatalogEntry, error) {
	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog workbook: %w", err)
	}
	defer f.Close()

	sheet := x.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read catalog sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	nameCol, idCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "document name":
			nameCol = i
		case "document id":
			idCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("catalog sheet %q has no \"Document name\" column", sheet)
	}

	var out []CatalogEntry
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		entry := CatalogEntry{Name: name}
		if idCol >= 0 && idCol < len(row) {
			entry.ID = strings.TrimSpace(row[idCol])
		}
		out = append(out, entry)
	}
	return out, nil
}

// Matcher finds the catalog name closest to text
type Matcher interface {
	BestMatch(text string, candidates []string) (name string, score float64)
}

// PartialRatioMatcher scores candidates with PartialRatio on lower-cased input
type PartialRatioMatcher struct{}

// BestMatch returns the highest scoring candidate; the first wins ties
func (PartialRatioMatcher) BestMatch(text string, candidates []string) (string, float64) {
	lower := strings.ToLower(text)
	best, bestScore := "", -1.0
	for _, c := range candidates {
		score := PartialRatio(lower, strings.ToLower(c))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < 0 {
		return "", 0
	}
	return best, bestScore
}

// PartialRatio scores (0-100) how well the shorter string matches its best
// aligned window of the longer string.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 100
		}
		return 0
	}

	short := string(ra)
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		s := levenshtein.Similarity(short, string(rb[i:i+len(ra)]), nil)
		if s > best {
			best = s
			if best == 1 {
				break
			}
		}
	}
	return best * 100
}

// MatchCatalogName finds the master entry most similar to a group label.
// Underscores in the label are read as spaces. ok is false when nothing
// reaches cutoff.
func MatchCatalogName(label string, entries []CatalogEntry, cutoff float64) (entry CatalogEntry, score float64, ok bool) {
	target := strings.ToLower(strings.ReplaceAll(label, "_", " "))
	best := -1.0
	for _, e := range entries {
		s := levenshtein.Similarity(target, strings.ToLower(e.Name), nil)
		if s > best {
			best, entry = s, e
		}
	}
	if best < cutoff {
		return CatalogEntry{}, 0, false
	}
	return entry, best, true
}
