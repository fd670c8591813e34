/**
 * OpenAI-compatible Chat Client - vision transcription and label generation
 *
 * Talks to either the public OpenAI API (Bearer auth, <base>/chat/completions)
 * or an Azure OpenAI deployment (api-key auth, deployment-scoped URL).
 */

package clients

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// OpenAIConfig configures an OpenAIClient. When AzureEndpoint is set the
// Azure deployment is used and BaseURL/Model are ignored.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string
	Timeout         time.Duration
}

// OpenAIClient calls a chat/completions endpoint
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	logger     *logging.Logger
}

type chatCompletionResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a chat client
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
		logger:     logging.NewLogger("OpenAIClient"),
	}
}

func (c *OpenAIClient) azure() bool {
	return c.cfg.AzureEndpoint != ""
}

func (c *OpenAIClient) endpoint() string {
	if c.azure() {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(c.cfg.AzureEndpoint, "/"), c.cfg.AzureDeployment, c.cfg.AzureAPIVersion)
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
}

func (c *OpenAIClient) headers() map[string]string {
	if c.azure() {
		return map[string]string{"api-key": c.cfg.APIKey}
	}
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Refine transcribes a PNG page image
func (c *OpenAIClient) Refine(ctx context.Context, png []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	messages := []map[string]any{
		{"role": "system", "content": VisionPrompt},
		{"role": "user", "content": []map[string]any{
			{"type": "text", "text": "Transcribe this page."},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}},
	}
	return c.complete(ctx, "vision", messages)
}

// GenerateLabel asks the model to name a document type
func (c *OpenAIClient) GenerateLabel(ctx context.Context, system, prompt string) (string, error) {
	messages := []map[string]any{
		{"role": "system", "content": system},
		{"role": "user", "content": prompt},
	}
	return c.complete(ctx, "label", messages)
}

func (c *OpenAIClient) complete(ctx context.Context, purpose string, messages []map[string]any) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"temperature": 0,
		"messages":    messages,
	}
	if !c.azure() {
		body["model"] = c.cfg.Model
	}

	var cc chatCompletionResponse
	if _, err := postJSON(ctx, c.httpClient, c.endpoint(), c.headers(), body, &cc); err != nil {
		c.logger.Warn("chat completion failed", "req_id", rid, "purpose", purpose, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("openai %s: %w", purpose, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("openai %s: no choices in response", purpose)
	}

	choice := cc.Choices[0]
	if choice.FinishReason == "content_filter" {
		c.logger.Warn("chat completion filtered", "req_id", rid, "purpose", purpose)
		return FilteredMarker, nil
	}

	c.logger.Debug("chat completion ok", "req_id", rid, "purpose", purpose,
		"chars", len(choice.Message.Content), "elapsed_ms", time.Since(start).Milliseconds())
	return strings.TrimSpace(choice.Message.Content), nil
}
