/**
 * Form Classifier - page text to normalized form-type label
 *
 * Tiers, each consulted only when the previous one yields nothing:
 * 1. Keyword rules over lower-cased text
 * 2. Fuzzy partial-ratio match against catalog names
 * 3. Generative labeling by a language model
 *
 * Tier errors are logged and treated as "no answer". The worst outcome is
 * the "unclassified" label, never an error.
 */

package classifier

import (
	"context"
	"strings"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// Context carries per-document classification inputs
type Context struct {
	CatalogNames []string
}

// Resolution is a tier's raw answer before normalization
type Resolution struct {
	Raw      string
	Score    float64
	HasScore bool
}

// Tier is one stage of the classification policy
type Tier interface {
	Origin() document.LabelOrigin
	Resolve(ctx context.Context, text string, cc Context) (Resolution, bool, error)
}

// RuleTier matches the keyword table
type RuleTier struct {
	Rules []Rule
}

func (t RuleTier) Origin() document.LabelOrigin { return document.OriginRule }

func (t RuleTier) Resolve(ctx context.Context, text string, cc Context) (Resolution, bool, error) {
	label, ok := matchRules(t.Rules, strings.ToLower(text))
	if !ok {
		return Resolution{}, false, nil
	}
	return Resolution{Raw: label, Score: 1, HasScore: true}, true, nil
}

// CatalogTier fuzzy-matches the text against catalog names
type CatalogTier struct {
	Matcher   Matcher
	Threshold float64 // 0-100
}

func (t CatalogTier) Origin() document.LabelOrigin { return document.OriginCatalogMatch }

func (t CatalogTier) Resolve(ctx context.Context, text string, cc Context) (Resolution, bool, error) {
	if len(cc.CatalogNames) == 0 {
		return Resolution{}, false, nil
	}
	name, score := t.Matcher.BestMatch(text, cc.CatalogNames)
	if name == "" || score < t.Threshold {
		return Resolution{}, false, nil
	}
	return Resolution{Raw: name, Score: score / 100, HasScore: true}, true, nil
}

// filterMarker prefixes provider answers withheld by content moderation
const filterMarker = "[filtered"

// GenerativeTier asks a language model for a label
type GenerativeTier struct {
	Generator   LabelGenerator
	PrefixChars int
	Timeout     time.Duration
}

func (t GenerativeTier) Origin() document.LabelOrigin { return document.OriginGenerative }

func (t GenerativeTier) Resolve(ctx context.Context, text string, cc Context) (Resolution, bool, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	prompt := buildLabelPrompt(text, cc.CatalogNames, t.PrefixChars)
	raw, err := t.Generator.GenerateLabel(ctx, generativeSystem, prompt)
	if err != nil {
		return Resolution{}, false, err
	}
	raw = strings.Trim(strings.TrimSpace(raw), `"'.`)
	if raw == "" || strings.Contains(raw, filterMarker) {
		return Resolution{}, false, nil
	}
	return Resolution{Raw: raw}, true, nil
}

// Config wires a Classifier
type Config struct {
	Rules       []Rule         // defaults to DefaultRules
	Matcher     Matcher        // defaults to PartialRatioMatcher
	Threshold   int            // defaults to DefaultThreshold
	Generator   LabelGenerator // optional; nil disables the generative tier
	PrefixChars int            // defaults to DefaultPrefixChars
	Timeout     time.Duration  // per generative call
	Logger      *logging.Logger
}

// Classifier resolves page labels through its tiers in order
type Classifier struct {
	tiers  []Tier
	logger *logging.Logger
}

// New builds the rule, catalog and (when a generator is set) generative tiers
func New(cfg Config) *Classifier {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules
	}
	if cfg.Matcher == nil {
		cfg.Matcher = PartialRatioMatcher{}
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.PrefixChars <= 0 {
		cfg.PrefixChars = DefaultPrefixChars
	}

	tiers := []Tier{
		RuleTier{Rules: cfg.Rules},
		CatalogTier{Matcher: cfg.Matcher, Threshold: float64(cfg.Threshold)},
	}
	if cfg.Generator != nil {
		tiers = append(tiers, GenerativeTier{
			Generator:   cfg.Generator,
			PrefixChars: cfg.PrefixChars,
			Timeout:     cfg.Timeout,
		})
	}
	return NewWithTiers(cfg.Logger, tiers...)
}

// NewWithTiers builds a classifier over an explicit tier list
func NewWithTiers(logger *logging.Logger, tiers ...Tier) *Classifier {
	if logger == nil {
		logger = logging.NewLogger("Classifier")
	}
	return &Classifier{tiers: tiers, logger: logger}
}

// Classify maps page text to a label. Blank or sentinel text is
// unclassified without consulting any tier.
func (c *Classifier) Classify(ctx context.Context, text string, cc Context) document.Label {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == document.NoTextFound {
		return fallbackLabel()
	}

	for _, tier := range c.tiers {
		if ctx.Err() != nil {
			break
		}
		res, ok, err := tier.Resolve(ctx, trimmed, cc)
		if err != nil {
			c.logger.Warn("classification tier failed",
				"error", tferrors.NewClassificationFailedError("", string(tier.Origin()), err))
			continue
		}
		if !ok {
			continue
		}

		name := Sanitize(applySwift(res.Raw, trimmed))
		c.logger.Debug("page classified", "tier", tier.Origin(), "raw", res.Raw, "label", name)
		return document.Label{
			Name:     name,
			Origin:   tier.Origin(),
			Score:    res.Score,
			HasScore: res.HasScore,
		}
	}

	return fallbackLabel()
}

func fallbackLabel() document.Label {
	return document.Label{Name: document.Unclassified, Origin: document.OriginFallback}
}
