/**
 * Azure Document Intelligence Client - whole-document layout analysis
 *
 * Submits the PDF once to the prebuilt layout model, polls the long-running
 * operation and returns one text block per page built from its lines.
 */

package clients

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

const azureDocIntelAPIVersion = "2024-11-30"

// AzureDocIntelClient analyzes documents with Azure Document Intelligence
type AzureDocIntelClient struct {
	endpoint     string
	apiKey       string
	modelID      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *logging.Logger
}

// AzureDocumentResult represents the operation result returned while polling
type AzureDocumentResult struct {
	Status        string             `json:"status"` // notStarted, running, succeeded, failed
	AnalyzeResult AzureAnalyzeResult `json:"analyzeResult"`
	Error         *AzureError        `json:"error,omitempty"`
}

// AzureAnalyzeResult is the analysis payload of a succeeded operation
type AzureAnalyzeResult struct {
	ModelID string      `json:"modelId"`
	Content string      `json:"content"`
	Pages   []AzurePage `json:"pages"`
}

// AzurePage represents a single page in the document
type AzurePage struct {
	PageNumber int         `json:"pageNumber"`
	Angle      float64     `json:"angle"`
	Lines      []AzureLine `json:"lines"`
}

// AzureLine represents a line of text
type AzureLine struct {
	Content string `json:"content"`
}

// AzureError describes a failed request or operation
type AzureError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAzureDocIntelClient creates a client for the given resource endpoint
func NewAzureDocIntelClient(endpoint, apiKey, modelID string) *AzureDocIntelClient {
	if modelID == "" {
		modelID = "prebuilt-layout"
	}
	return &AzureDocIntelClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		modelID:      modelID,
		pollInterval: 2 * time.Second,
		httpClient:   newHTTPClient(60 * time.Second),
		logger:       logging.NewLogger("AzureDocIntelClient"),
	}
}

func (c *AzureDocIntelClient) authHeaders() map[string]string {
	return map[string]string{"Ocp-Apim-Subscription-Key": c.apiKey}
}

// AnalyzeDocument returns per-page text for a PDF; index 0 is page 1
func (c *AzureDocIntelClient) AnalyzeDocument(ctx context.Context, pdf []byte) ([]string, error) {
	endpoint := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.endpoint, c.modelID, azureDocIntelAPIVersion)

	body := map[string]string{"base64Source": base64.StdEncoding.EncodeToString(pdf)}
	headers, err := postJSON(ctx, c.httpClient, endpoint, c.authHeaders(), body, nil)
	if err != nil {
		return nil, fmt.Errorf("azure analyze submit: %w", err)
	}

	opURL := headers.Get("Operation-Location")
	if opURL == "" {
		return nil, fmt.Errorf("azure analyze: response has no Operation-Location header")
	}

	c.logger.Debug("Layout analysis submitted", "model", c.modelID, "bytes", len(pdf))

	result, err := c.waitForResult(ctx, opURL)
	if err != nil {
		return nil, err
	}
	return pageTexts(result.AnalyzeResult.Pages), nil
}

// waitForResult polls the operation until it succeeds, fails or ctx ends
func (c *AzureDocIntelClient) waitForResult(ctx context.Context, opURL string) (*AzureDocumentResult, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var result AzureDocumentResult
		if _, err := getJSON(ctx, c.httpClient, opURL, c.authHeaders(), &result); err != nil {
			return nil, fmt.Errorf("azure analyze poll: %w", err)
		}

		switch strings.ToLower(result.Status) {
		case "succeeded":
			c.logger.Info("Layout analysis complete", "pages", len(result.AnalyzeResult.Pages))
			return &result, nil
		case "failed", "canceled":
			msg := result.Status
			if result.Error != nil {
				msg = fmt.Sprintf("%s: %s", result.Error.Code, result.Error.Message)
			}
			return nil, fmt.Errorf("azure analyze failed: %s", msg)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled while waiting for analysis: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func pageTexts(pages []AzurePage) []string {
	count := 0
	for _, p := range pages {
		if p.PageNumber > count {
			count = p.PageNumber
		}
	}

	out := make([]string, count)
	for _, p := range pages {
		if p.PageNumber < 1 {
			continue
		}
		lines := make([]string, 0, len(p.Lines))
		for _, l := range p.Lines {
			lines = append(lines, l.Content)
		}
		out[p.PageNumber-1] = strings.Join(lines, "\n")
	}
	return out
}
