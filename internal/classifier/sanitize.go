package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

// MaxLabelLength bounds sanitized label names
const MaxLabelLength = 50

var (
	disallowedChars = regexp.MustCompile(`[^a-z0-9_\- ]`)
	mtCodePattern   = regexp.MustCompile(`(?i)mt\s*(\d{3})`)
	threeDigits     = regexp.MustCompile(`\d{3}`)
)

// reservedLabels are failure tags that never become groups of their own
var reservedLabels = map[string]bool{
	"empty_text":     true,
	"filtered":       true,
	"openai_failure": true,
	"unknown":        true,
}

// Sanitize normalizes a raw label into a group name. Applying it to its own
// output returns the same value.
func Sanitize(raw string) string {
	s := strings.ToLower(raw)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	s = disallowedChars.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "_")
	if len(s) > MaxLabelLength {
		s = s[:MaxLabelLength]
	}
	s = strings.Trim(s, "_-")

	if s == "" || reservedLabels[s] {
		return document.Unclassified
	}
	return s
}

// applySwift rewrites SWIFT labels to carry the MT type found in the page
// text, e.g. "swift_700mt". A label that already names a three-digit type is
// kept when the text has none; otherwise it becomes "swift_unknown".
func applySwift(raw, text string) string {
	if !strings.Contains(strings.ToLower(raw), "swift") {
		return raw
	}
	if m := mtCodePattern.FindStringSubmatch(text); m != nil {
		return "swift_" + m[1] + "mt"
	}
	if threeDigits.MatchString(raw) {
		return raw
	}
	return "swift_unknown"
}
