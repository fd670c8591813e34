package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
)

const mimePDF = "application/pdf"

// maxDownloadBackoff caps the wait between download attempts
const maxDownloadBackoff = 32 * time.Second

// loadFile loads the document from buffer, local path or URL, in that order
func (p *DocumentProcessor) loadFile(ctx context.Context, r *run) ([]byte, error) {
	req := r.req
	if len(req.FileBuffer) > 0 {
		r.logger.Debug("using file buffer", "bytes", len(req.FileBuffer))
		return req.FileBuffer, nil
	}

	if req.FilePath != "" {
		info, err := os.Stat(req.FilePath)
		if err != nil {
			return nil, tferrors.NewInvalidInputError(req.JobID, fmt.Sprintf("cannot read %s: %v", req.FilePath, err))
		}
		if p.config.MaxFileSize > 0 && info.Size() > p.config.MaxFileSize {
			return nil, tferrors.NewInvalidInputError(req.JobID,
				fmt.Sprintf("file size exceeds maximum: %d > %d bytes", info.Size(), p.config.MaxFileSize))
		}
		data, err := os.ReadFile(req.FilePath)
		if err != nil {
			return nil, tferrors.NewInvalidInputError(req.JobID, fmt.Sprintf("cannot read %s: %v", req.FilePath, err))
		}
		return data, nil
	}

	if req.FileURL != "" {
		data, err := p.downloadFileFromURL(ctx, r, req.FileURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", err)
		}
		r.logger.Info("file downloaded", "bytes", len(data))
		return data, nil
	}

	return nil, tferrors.NewInvalidInputError(req.JobID, "no file source provided (buffer, path or URL)")
}

// downloadFileFromURL downloads with exponential backoff and a size cap
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, r *run, fileURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= p.downloadAttempts; attempt++ {
		data, retry, err := p.downloadOnce(ctx, fileURL)
		if err == nil {
			return data, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		r.logger.Warn("download attempt failed", "attempt", attempt, "max_attempts", p.downloadAttempts, "error", err)

		if attempt < p.downloadAttempts {
			backoff := p.downloadBackoff << (attempt - 1)
			if backoff > maxDownloadBackoff {
				backoff = maxDownloadBackoff
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("failed to download file after %d attempts: %w", p.downloadAttempts, lastErr)
}

// downloadOnce reports whether a failure is worth retrying
func (p *DocumentProcessor) downloadOnce(ctx context.Context, fileURL string) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, tferrors.NewInvalidInputError("", fmt.Sprintf("invalid file URL: %v", err))
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		// only 5xx and 429 are retried
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, err
	}

	limit := p.config.MaxFileSize
	if limit > 0 && resp.ContentLength > limit {
		return nil, false, tferrors.NewInvalidInputError("", fmt.Sprintf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, limit))
	}
	if limit <= 0 {
		limit = 10 * 1024 * 1024 * 1024
	}

	// read one byte past the limit to detect oversize bodies without Content-Length
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(data)) > limit {
		return nil, false, tferrors.NewInvalidInputError("", fmt.Sprintf("file size exceeds maximum: more than %d bytes", limit))
	}
	return data, false, nil
}

// detectMimeTypeFromMagicBytes names the input type for error reports
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return mimePDF
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}):
		// DOCX, XLSX and plain ZIP share this header
		return "application/zip"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}):
		return "application/msword"
	}
	return ""
}
