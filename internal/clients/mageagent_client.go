/**
 * MageAgent Client - vision transcription and whole-document analysis
 *
 * Serves two cascade roles:
 * - VisionRefiner via /api/internal/vision/extract-text (one page image)
 * - LayoutAnalyzer via /api/internal/file-process (whole PDF, per-page text)
 */

package clients

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// MageAgentClient handles communication with MageAgent service
type MageAgentClient struct {
	baseURL    string
	httpClient *http.Client
	fileClient *http.Client
	language   string
	logger     *logging.Logger
}

// VisionOCRRequest represents a request to extract text from an image
type VisionOCRRequest struct {
	Image          string                 `json:"image"`          // Base64 encoded image
	Format         string                 `json:"format"`         // "base64", "url", or "buffer"
	PreferAccuracy bool                   `json:"preferAccuracy"` // true = use highest accuracy models
	Language       string                 `json:"language"`
	Prompt         string                 `json:"prompt,omitempty"`
	Metadata       map[string]interface{} `json:"metadata"`
	JobID          string                 `json:"jobId,omitempty"`
}

// VisionOCRResponse represents a synchronous response from MageAgent vision endpoint
type VisionOCRResponse struct {
	Success bool          `json:"success"`
	Data    VisionOCRData `json:"data"`
	Message string        `json:"message"`
}

// VisionOCRData contains the extracted text and metadata
type VisionOCRData struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
	Filtered       bool    `json:"filtered,omitempty"`
}

// FileProcessRequest represents a request to process a whole document
type FileProcessRequest struct {
	FileBuffer []byte             `json:"fileBuffer"` // base64 on the wire
	Filename   string             `json:"filename"`
	MimeType   string             `json:"mimeType"`
	Operations []string           `json:"operations"`
	Options    FileProcessOptions `json:"options"`
}

// FileProcessOptions contains options for file processing
type FileProcessOptions struct {
	EnableOCR     bool `json:"enableOcr"`
	ExtractTables bool `json:"extractTables"`
}

// FileProcessResponse represents the response from /file-process endpoint
type FileProcessResponse struct {
	Success bool            `json:"success"`
	Data    FileProcessData `json:"data"`
	Message string          `json:"message"`
}

// FileProcessData contains the extracted document content
type FileProcessData struct {
	Text           string            `json:"text"`
	Pages          []FileProcessPage `json:"pages"`
	PageCount      int               `json:"pageCount"`
	Confidence     float64           `json:"confidence"`
	ModelUsed      string            `json:"modelUsed"`
	ProcessingTime int64             `json:"processingTime"`
}

// FileProcessPage represents a single page's content
type FileProcessPage struct {
	PageNumber int     `json:"pageNumber"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewMageAgentClient creates a new MageAgent client
func NewMageAgentClient(baseURL string) *MageAgentClient {
	return &MageAgentClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(120 * time.Second), // Vision tasks can take time
		fileClient: newHTTPClient(300 * time.Second), // 5 minutes for large documents
		language:   "multi",
		logger:     logging.NewLogger("MageAgentClient"),
	}
}

func (c *MageAgentClient) headers(prefix string) map[string]string {
	return map[string]string{
		"X-Source":     "tf-page-worker",
		"X-Request-ID": fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()),
	}
}

// ExtractText extracts text from an image using MageAgent's vision model selection
func (c *MageAgentClient) ExtractText(ctx context.Context, req *VisionOCRRequest) (*VisionOCRResponse, error) {
	endpoint := c.baseURL + "/api/internal/vision/extract-text"

	var ocrResp VisionOCRResponse
	if _, err := postJSON(ctx, c.httpClient, endpoint, c.headers("ocr"), req, &ocrResp); err != nil {
		return nil, fmt.Errorf("MageAgent vision: %w", err)
	}
	if !ocrResp.Success {
		return nil, fmt.Errorf("MageAgent operation failed: %s", ocrResp.Message)
	}

	c.logger.Debug("Text extraction complete",
		"modelUsed", ocrResp.Data.ModelUsed,
		"confidence", ocrResp.Data.Confidence,
		"processingTime", ocrResp.Data.ProcessingTime,
		"textLength", len(ocrResp.Data.Text))

	return &ocrResp, nil
}

// Refine transcribes a page image. Moderated output is returned as a
// "[filtered]" marker so the cascade rejects it.
func (c *MageAgentClient) Refine(ctx context.Context, png []byte) (string, error) {
	resp, err := c.ExtractText(ctx, &VisionOCRRequest{
		Image:          base64.StdEncoding.EncodeToString(png),
		Format:         "base64",
		PreferAccuracy: true,
		Language:       c.language,
		Prompt:         VisionPrompt,
		Metadata: map[string]interface{}{
			"source":    "tf-page-worker",
			"timestamp": time.Now().Unix(),
		},
	})
	if err != nil {
		return "", err
	}
	if resp.Data.Filtered {
		return FilteredMarker, nil
	}
	return resp.Data.Text, nil
}

// ProcessFile processes a whole document using MageAgent's /file-process endpoint
func (c *MageAgentClient) ProcessFile(ctx context.Context, req *FileProcessRequest) (*FileProcessResponse, error) {
	c.logger.Info("Processing file via MageAgent /file-process",
		"filename", req.Filename,
		"operations", req.Operations,
		"fileSize", len(req.FileBuffer))

	endpoint := c.baseURL + "/api/internal/file-process"

	var fileResp FileProcessResponse
	if _, err := postJSON(ctx, c.fileClient, endpoint, c.headers("file-process"), req, &fileResp); err != nil {
		return nil, fmt.Errorf("MageAgent /file-process: %w", err)
	}
	if !fileResp.Success {
		return nil, fmt.Errorf("MageAgent /file-process failed: %s", fileResp.Message)
	}

	c.logger.Info("File processing complete",
		"modelUsed", fileResp.Data.ModelUsed,
		"pageCount", fileResp.Data.PageCount,
		"processingTime", fileResp.Data.ProcessingTime)

	return &fileResp, nil
}

// AnalyzeDocument returns per-page text for a PDF, ordered by page number.
// Pages missing from the response come back as empty strings.
func (c *MageAgentClient) AnalyzeDocument(ctx context.Context, pdf []byte) ([]string, error) {
	resp, err := c.ProcessFile(ctx, &FileProcessRequest{
		FileBuffer: pdf,
		Filename:   "document.pdf",
		MimeType:   "application/pdf",
		Operations: []string{"extract_content"},
		Options:    FileProcessOptions{EnableOCR: true},
	})
	if err != nil {
		return nil, err
	}

	pages := append([]FileProcessPage(nil), resp.Data.Pages...)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })

	count := resp.Data.PageCount
	for _, p := range pages {
		if p.PageNumber > count {
			count = p.PageNumber
		}
	}

	out := make([]string, count)
	for _, p := range pages {
		if p.PageNumber >= 1 {
			out[p.PageNumber-1] = p.Text
		}
	}
	return out, nil
}

// HealthCheck verifies MageAgent service is available
func (c *MageAgentClient) HealthCheck(ctx context.Context) error {
	return checkHealth(ctx, c.httpClient, c.baseURL+"/api/health")
}
