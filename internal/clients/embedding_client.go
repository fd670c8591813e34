/**
 * Embedding Client - VoyageAI voyage-3 embeddings (1024 dimensions)
 *
 * Used to index merged group text in Qdrant.
 */

package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// EmbeddingDimensions is the vector size produced by voyage-3
const EmbeddingDimensions = 1024

const (
	voyageURL      = "https://api.voyageai.com/v1/embeddings"
	voyageModel    = "voyage-3"
	voyageMaxChars = 16000 // Approximate token limit
)

// EmbeddingClient handles VoyageAI embedding generation
type EmbeddingClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// VoyageEmbeddingRequest represents the request to VoyageAI API
type VoyageEmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// VoyageEmbeddingResponse represents the response from VoyageAI API
type VoyageEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(apiKey string) (*EmbeddingClient, error) {
	return NewEmbeddingClientWithURL(apiKey, voyageURL)
}

// NewEmbeddingClientWithURL targets a non-default embeddings endpoint
func NewEmbeddingClientWithURL(apiKey, url string) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("VoyageAI API key is required")
	}
	return &EmbeddingClient{
		apiKey:     apiKey,
		baseURL:    url,
		httpClient: newHTTPClient(30 * time.Second),
		logger:     logging.NewLogger("EmbeddingClient"),
	}, nil
}

// GenerateEmbedding generates a 1024-dimensional embedding for the given text
func (e *EmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	if n := len([]rune(text)); n > voyageMaxChars {
		e.logger.Warn("Text too long, truncating", "chars", n, "max", voyageMaxChars)
		text = truncate(text, voyageMaxChars)
	}

	req := VoyageEmbeddingRequest{Input: []string{text}, Model: voyageModel}
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}

	start := time.Now()
	var voyageResp VoyageEmbeddingResponse
	if _, err := postJSON(ctx, e.httpClient, e.baseURL, headers, req, &voyageResp); err != nil {
		return nil, fmt.Errorf("VoyageAI embeddings: %w", err)
	}

	if len(voyageResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}
	embedding := voyageResp.Data[0].Embedding
	if len(embedding) != EmbeddingDimensions {
		return nil, fmt.Errorf("unexpected embedding dimensions: got %d, expected %d", len(embedding), EmbeddingDimensions)
	}

	e.logger.Debug("Embedding generated",
		"dimensions", len(embedding),
		"tokens", voyageResp.Usage.TotalTokens,
		"duration", time.Since(start))

	return embedding, nil
}
