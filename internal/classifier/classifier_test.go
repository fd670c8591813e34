package classifier

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

type countingMatcher struct {
	inner Matcher
	calls atomic.Int32
}

func (m *countingMatcher) BestMatch(text string, candidates []string) (string, float64) {
	m.calls.Add(1)
	return m.inner.BestMatch(text, candidates)
}

type fakeGenerator struct {
	label      string
	err        error
	calls      atomic.Int32
	lastPrompt string
}

func (g *fakeGenerator) GenerateLabel(ctx context.Context, system, prompt string) (string, error) {
	g.calls.Add(1)
	g.lastPrompt = prompt
	return g.label, g.err
}

func newTestClassifier(gen LabelGenerator) (*Classifier, *countingMatcher) {
	m := &countingMatcher{inner: PartialRatioMatcher{}}
	c := New(Config{Matcher: m, Generator: gen, Logger: logging.Nop()})
	return c, m
}

var catalog = Context{CatalogNames: Names(DefaultCatalog)}

func TestRuleTierDominates(t *testing.T) {
	gen := &fakeGenerator{label: "something else"}
	c, m := newTestClassifier(gen)

	label := c.Classify(context.Background(), "COMMERCIAL INVOICE\nInvoice No: 991", catalog)

	if label.Name != "invoice" || label.Origin != document.OriginRule || !label.HasScore || label.Score != 1 {
		t.Errorf("label = %+v", label)
	}
	if m.calls.Load() != 0 || gen.calls.Load() != 0 {
		t.Errorf("lower tiers called: catalog=%d generative=%d", m.calls.Load(), gen.calls.Load())
	}
}

func TestRuleTableOrder(t *testing.T) {
	c, _ := newTestClassifier(nil)
	tests := []struct {
		text string
		want string
	}{
		{"Packing List attached to invoice 44", "packing_list"},
		{"IRREVOCABLE DOCUMENTARY CREDIT ... commercial invoice in 3 copies", "letter_of_credit"},
		{"{1:F01BANKINBBAXXX0000000000}{2:I700} MT700 issue of a documentary credit", "swift_700mt"},
		{"Mill Test Certificate EN 10204 3.1", "mill_certificate"},
		{"B/L No: MSCU1234 shipped on board", "bill_of_lading"},
	}
	for _, tt := range tests {
		if got := c.Classify(context.Background(), tt.text, catalog); got.Name != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got.Name, tt.want)
		}
	}
}

func TestCatalogTier(t *testing.T) {
	gen := &fakeGenerator{label: "unused"}
	c, m := newTestClassifier(gen)

	label := c.Classify(context.Background(), "SHIPPING ADVICE\nvessel departed 12 March", Context{CatalogNames: []string{"Shipping Advice", "Beneficiary Statement"}})

	if label.Name != "shipping_advice" || label.Origin != document.OriginCatalogMatch {
		t.Errorf("label = %+v", label)
	}
	if label.Score < 0.7 || label.Score > 1 {
		t.Errorf("score = %v", label.Score)
	}
	if m.calls.Load() != 1 || gen.calls.Load() != 0 {
		t.Errorf("calls: catalog=%d generative=%d", m.calls.Load(), gen.calls.Load())
	}
}

func TestGenerativeTier(t *testing.T) {
	gen := &fakeGenerator{label: "  Beneficiary Certificate. "}
	c, _ := newTestClassifier(gen)

	text := strings.Repeat("zq ", 2000)
	label := c.Classify(context.Background(), text, Context{CatalogNames: []string{"Letter of Credit"}})

	if label.Name != "beneficiary_certificate" || label.Origin != document.OriginGenerative || label.HasScore {
		t.Errorf("label = %+v", label)
	}
	if !strings.Contains(gen.lastPrompt, "DO NOT return Unknown") || !strings.Contains(gen.lastPrompt, "Letter of Credit") {
		t.Errorf("prompt missing instructions: %q", gen.lastPrompt[:200])
	}
	if strings.Count(gen.lastPrompt, "zq") > 1000 {
		t.Errorf("page text was not truncated")
	}
}

func TestGenerativeFailuresFallBack(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"error", &fakeGenerator{err: errors.New("429 too many requests")}},
		{"unknown", &fakeGenerator{label: "Unknown"}},
		{"empty", &fakeGenerator{label: "   "}},
		{"failure tag", &fakeGenerator{label: "openai_failure"}},
		{"moderated", &fakeGenerator{label: "[filtered]"}},
		{"moderated bare", &fakeGenerator{label: "filtered"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClassifier(tt.gen)
			label := c.Classify(context.Background(), "qqqq wwww eeee rrrr", Context{})
			if label.Name != document.Unclassified {
				t.Errorf("label = %+v", label)
			}
		})
	}
}

func TestTierFailureLoggedWithCode(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{
		Generator: &fakeGenerator{err: errors.New("429 too many requests")},
		Logger:    logging.NewLoggerWithWriter("Classifier", &buf),
	})

	label := c.Classify(context.Background(), "qqqq wwww eeee rrrr", Context{})

	if label.Name != document.Unclassified {
		t.Errorf("label = %+v", label)
	}
	want := "CLASSIFICATION_FAILED: Classification tier failed: " + string(document.OriginGenerative)
	if !strings.Contains(buf.String(), want) {
		t.Errorf("log missing %q:\n%s", want, buf.String())
	}
}

func TestGenerativeTierSkipsModeratedAnswers(t *testing.T) {
	for _, answer := range []string{"[filtered]", " [filtered] ", "[filtered: safety]"} {
		tier := GenerativeTier{Generator: &fakeGenerator{label: answer}, PrefixChars: DefaultPrefixChars}
		res, ok, err := tier.Resolve(context.Background(), "qqqq wwww", Context{})
		if err != nil || ok {
			t.Errorf("Resolve(%q) = %+v, %v, %v; want no answer", answer, res, ok, err)
		}
	}
}

func TestSentinelAndBlankText(t *testing.T) {
	gen := &fakeGenerator{label: "invoice"}
	c, m := newTestClassifier(gen)

	for _, text := range []string{"", "   \n", document.NoTextFound} {
		label := c.Classify(context.Background(), text, catalog)
		if label.Name != document.Unclassified || label.Origin != document.OriginFallback {
			t.Errorf("Classify(%q) = %+v", text, label)
		}
	}
	if m.calls.Load() != 0 || gen.calls.Load() != 0 {
		t.Errorf("tiers should not run for empty text")
	}
}

func TestSwiftFromGenerativeTier(t *testing.T) {
	tests := []struct {
		raw  string
		text string
		want string
	}{
		{"SWIFT", "Message type MT 799 free format", "swift_799mt"},
		{"swift message", "no code here at all", "swift_unknown"},
		{"swift 760mt", "no code here at all", "swift_760mt"},
	}
	for _, tt := range tests {
		c, _ := newTestClassifier(&fakeGenerator{label: tt.raw})
		got := c.Classify(context.Background(), tt.text, Context{})
		if got.Name != tt.want {
			t.Errorf("raw %q text %q: got %q, want %q", tt.raw, tt.text, got.Name, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Letter of Credit", "letter_of_credit"},
		{"  Bill\tof\nLading ", "bill_of_lading"},
		{"Certificate (Origin) #2", "certificate_origin_2"},
		{"__weird--", "weird"},
		{"!!!", document.Unclassified},
		{"", document.Unclassified},
		{"UNKNOWN", document.Unclassified},
		{"empty_text", document.Unclassified},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"Facture commerciale – copie", "facture_commerciale_copie"},
	}
	for _, tt := range tests {
		got := Sanitize(tt.in)
		if got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := Sanitize(got); again != got {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", tt.in, got, again)
		}
	}
}
