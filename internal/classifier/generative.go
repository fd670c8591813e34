package classifier

import (
	"context"
	"fmt"
	"strings"
)

// DefaultPrefixChars bounds how much page text is sent to the generator
const DefaultPrefixChars = 3000

// LabelGenerator names a document type from a prompt
type LabelGenerator interface {
	GenerateLabel(ctx context.Context, system, prompt string) (string, error)
}

const generativeSystem = "You are an expert in classifying international trade finance documents."

func buildLabelPrompt(text string, catalogNames []string, prefixChars int) string {
	var b strings.Builder
	b.WriteString("Based on the following extracted text from a scanned trade finance document, identify the type of document.\n")
	if len(catalogNames) > 0 {
		fmt.Fprintf(&b, "Known document types include: %s.\n", strings.Join(catalogNames, ", "))
	}
	b.WriteString("If none of the known types fit, suggest the most meaningful document type name. DO NOT return Unknown.\n")
	b.WriteString("If the document is a SWIFT message, name its MT type, for example 'swift 700mt' or 'swift 799mt'.\n")
	b.WriteString("Return ONLY the document type name in lowercase, with no explanation.\n\n")
	b.WriteString("---\n")
	b.WriteString(prefix(text, prefixChars))
	b.WriteString("\n---\n")
	return b.String()
}

// prefix returns at most n runes of s
func prefix(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
