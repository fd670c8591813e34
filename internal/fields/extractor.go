/**
 * Field Extractor - key/value pairs from recognized page text
 *
 * Two line patterns are tried in order:
 * 1. "Key: value" (ASCII or full-width colon)
 * 2. "UPPER CASE KEY  TOKEN" for label/value pairs printed without a separator
 */

package fields

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

// MinTextLength is the shortest trimmed text worth running patterns against
const MinTextLength = 10

var (
	colonPattern  = regexp.MustCompile(`^(.{2,60}?)\s*[:：]\s*(.+)$`)
	inlinePattern = regexp.MustCompile(`^([A-Z\s]{3,60})\s+([^\s]{1,80})$`)
)

// Extract pulls fields out of text. It is pure: the same text always yields
// the same FieldSet. Sentinel or too-short text yields an empty set.
func Extract(text string) *document.FieldSet {
	fs := document.NewFieldSet()

	trimmed := strings.TrimSpace(text)
	if trimmed == document.NoTextFound || utf8.RuneCountInString(trimmed) < MinTextLength {
		return fs
	}

	for _, raw := range strings.Split(trimmed, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		key, value, ok := matchLine(line)
		if !ok {
			continue
		}
		fs.Set(key, value)
	}

	return fs
}

func matchLine(line string) (string, string, bool) {
	for _, re := range []*regexp.Regexp{colonPattern, inlinePattern} {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if key == "" || value == "" {
			continue
		}
		return key, value, true
	}
	return "", "", false
}
