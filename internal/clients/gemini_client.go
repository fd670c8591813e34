/**
 * Gemini Client - vision transcription and label generation
 *
 * Implements both VisionRefiner (page image to text) and LabelGenerator
 * (document-type naming) on top of the Gemini API.
 */

package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

const geminiAttempts = 3

// GeminiClient wraps a genai client bound to one model
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *logging.Logger
}

// NewGeminiClient creates a Gemini client. Close it when done.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = "gemini-1.5-flash"
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{
		client: cl,
		model:  model,
		logger: logging.NewLogger("GeminiClient"),
	}, nil
}

// Close releases the underlying connection
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func (g *GeminiClient) newModel(system string) *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	return m
}

// Refine transcribes a PNG page image
func (g *GeminiClient) Refine(ctx context.Context, png []byte) (string, error) {
	m := g.newModel(VisionPrompt)
	return g.generate(ctx, m,
		genai.Text("Transcribe this page."),
		&genai.Blob{MIMEType: "image/png", Data: png},
	)
}

// GenerateLabel asks the model to name a document type
func (g *GeminiClient) GenerateLabel(ctx context.Context, system, prompt string) (string, error) {
	m := g.newModel(system)
	return g.generate(ctx, m, genai.Text(prompt))
}

func (g *GeminiClient) generate(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= geminiAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			var blocked *genai.BlockedError
			if errors.As(err, &blocked) {
				g.logger.Warn("Gemini response blocked", "model", g.model)
				return FilteredMarker, nil
			}
			lastErr = err
			g.logger.Debug("Gemini call failed", "attempt", attempt, "error", err)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}

		if isSafetyStop(resp) {
			return FilteredMarker, nil
		}
		return strings.TrimSpace(firstText(resp)), nil
	}
	return "", fmt.Errorf("gemini %s: %w", g.model, lastErr)
}

func isSafetyStop(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	for _, c := range resp.Candidates {
		if c.FinishReason == genai.FinishReasonSafety {
			return true
		}
	}
	return false
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
