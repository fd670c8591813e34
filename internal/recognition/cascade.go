/**
 * Recognition Cascade - one authoritative text per page
 *
 * Order of preference:
 * 1. Vision LLM transcription of the page image
 * 2. Document-AI text for the page (one analysis call per document)
 * 3. Best local OCR candidate across four rotations
 * 4. NO_TEXT_FOUND
 *
 * Engine errors and timeouts are logged and treated as "no result".
 */

package recognition

import (
	"context"
	"image"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// MinAcceptedChars is the non-space character floor every tier must reach
const MinAcceptedChars = 10

// filterMarker flags vision output that was blocked by content moderation
const filterMarker = "[filtered"

// CascadeConfig wires the cascade's engines; any engine may be nil
type CascadeConfig struct {
	Local         LocalEngine
	Vision        VisionRefiner
	EngineTimeout time.Duration
	MaxRasterSide int
	Logger        *logging.Logger
}

// Cascade runs the recognition fallback chain for single pages
type Cascade struct {
	local         LocalEngine
	vision        VisionRefiner
	engineTimeout time.Duration
	maxRasterSide int
	logger        *logging.Logger
}

// NewCascade creates a cascade from its engines
func NewCascade(cfg CascadeConfig) *Cascade {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Cascade")
	}
	return &Cascade{
		local:         cfg.Local,
		vision:        cfg.Vision,
		engineTimeout: cfg.EngineTimeout,
		maxRasterSide: cfg.MaxRasterSide,
		logger:        logger,
	}
}

// Recognize settles on a page's text. It never fails: when no engine
// produces acceptable text the result carries the sentinel.
func (c *Cascade) Recognize(ctx context.Context, page *document.Page, layout *LayoutCache) document.RecognitionResult {
	var img image.Image
	if page.Image != nil {
		img = Downscale(page.Image, c.maxRasterSide)
	}

	localText, rotation := c.localCandidate(ctx, page.Index, img)

	if text, ok := c.visionText(ctx, page.Index, img); ok {
		return document.RecognitionResult{
			Source:     document.SourceVisionLLM,
			Text:       text,
			Confidence: confidenceProxy(text, 0.95),
		}
	}

	if layout != nil {
		text, err := layout.PageText(ctx, page.Index)
		if err != nil {
			c.logger.Warn("document-ai analysis failed", "page", page.Index,
				"error", tferrors.NewOCRFailedError("", "document-ai", err))
		} else if text = strings.TrimSpace(text); Acceptable(text) {
			return document.RecognitionResult{
				Source:     document.SourceDocumentAI,
				Text:       text,
				Confidence: confidenceProxy(text, 0.95),
			}
		}
	}

	if Acceptable(localText) {
		return document.RecognitionResult{
			Source:     document.SourceLocalOCR,
			Text:       localText,
			Confidence: confidenceProxy(localText, 0.85),
			Rotation:   rotation,
		}
	}

	c.logger.Warn("no engine produced text", "page", page.Index)
	return document.RecognitionResult{
		Source: document.SourceNone,
		Text:   document.NoTextFound,
	}
}

// localCandidate runs local OCR at every rotation of a grayscale copy and
// keeps the longest output.
func (c *Cascade) localCandidate(ctx context.Context, pageIndex int, img image.Image) (string, int) {
	if c.local == nil || img == nil {
		return "", 0
	}

	gray := Grayscale(img)
	best, bestRotation := "", 0
	for _, deg := range Rotations {
		if ctx.Err() != nil {
			break
		}
		rotated, err := Rotate(gray, deg)
		if err != nil {
			continue
		}
		data, err := EncodePNG(rotated)
		if err != nil {
			c.logger.Warn("encode rotated page failed", "page", pageIndex, "rotation", deg, "error", err)
			continue
		}

		callCtx, cancel := c.withTimeout(ctx)
		text, err := c.local.Recognize(callCtx, data)
		cancel()
		if err != nil {
			c.logger.Debug("local ocr failed", "page", pageIndex, "rotation", deg,
				"error", tferrors.NewOCRFailedError("", c.local.Name(), err))
			continue
		}

		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best, bestRotation = text, deg
		}
	}
	return best, bestRotation
}

func (c *Cascade) visionText(ctx context.Context, pageIndex int, img image.Image) (string, bool) {
	if c.vision == nil || img == nil {
		return "", false
	}

	data, err := EncodePNG(img)
	if err != nil {
		c.logger.Warn("encode page for vision failed", "page", pageIndex, "error", err)
		return "", false
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	text, err := c.vision.Refine(callCtx, data)
	if err != nil {
		c.logger.Warn("vision refine failed", "page", pageIndex,
			"error", tferrors.NewOCRFailedError("", "vision", err))
		return "", false
	}

	text = strings.TrimSpace(text)
	if strings.Contains(strings.ToLower(text), filterMarker) {
		c.logger.Warn("vision output filtered", "page", pageIndex)
		return "", false
	}
	if !Acceptable(text) {
		c.logger.Debug("vision output too short", "page", pageIndex, "chars", len(text))
		return "", false
	}
	return text, true
}

func (c *Cascade) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.engineTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.engineTimeout)
}

// Acceptable reports whether text clears the non-space character floor
func Acceptable(text string) bool {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
			if n >= MinAcceptedChars {
				return true
			}
		}
	}
	return false
}

// confidenceProxy estimates text quality from length, word count and
// character mix, capped per engine.
func confidenceProxy(text string, ceiling float64) float64 {
	confidence := 0.5

	if len(text) > 1000 {
		confidence += 0.1
	}
	if len(text) > 5000 {
		confidence += 0.1
	}

	if len(strings.Fields(text)) > 100 {
		confidence += 0.1
	}

	alphaCount := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alphaCount++
		}
	}
	if len(text) > 0 {
		alphaRatio := float64(alphaCount) / float64(len(text))
		if alphaRatio > 0.5 && alphaRatio < 0.9 {
			confidence += 0.1
		}
	}

	if confidence > ceiling {
		confidence = ceiling
	}
	return confidence
}
