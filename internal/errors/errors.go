package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Coded errors for the TF page pipeline
 *
 * Engine and classifier failures are recovered inside the pipeline and only
 * logged; these types carry the failures that reach job status records.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Processing errors
	ErrorProcessingTimeout    ErrorCode = "PROCESSING_TIMEOUT"
	ErrorOCRFailed            ErrorCode = "OCR_FAILED"
	ErrorUnsupportedFormat    ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
	ErrorInvalidInput         ErrorCode = "INVALID_INPUT"

	// Storage errors
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"

	// Network errors
	ErrorNetworkTimeout ErrorCode = "NETWORK_TIMEOUT"
	ErrorAPICallFailed  ErrorCode = "API_CALL_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewOCRFailedError(jobID string, engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("Recognition failed in engine: %s", engine),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

// NewUnsupportedFormatError marks a document that cannot be opened at all.
// Together with invalid input it aborts a run.
func NewUnsupportedFormatError(jobID string, detected string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Document cannot be opened as PDF (detected: %s)", detected),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"detected_type": detected,
		},
		Cause: cause,
	}
}

func NewClassificationFailedError(jobID string, tier string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorClassificationFailed,
		Message:   fmt.Sprintf("Classification tier failed: %s", tier),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"tier": tier,
		},
		Cause: cause,
	}
}

func NewInvalidInputError(jobID string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidInput,
		Message:   reason,
		JobID:     jobID,
		Timestamp: time.Now(),
		Details:   map[string]interface{}{},
	}
}

func NewStorageFailedError(jobID string, operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   fmt.Sprintf("Storage operation failed: %s", operation),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

func NewDatabaseFailedError(operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDatabaseFailed,
		Message:   fmt.Sprintf("Database operation failed: %s", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

func NewNetworkTimeoutError(service string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNetworkTimeout,
		Message:   fmt.Sprintf("Request to %s timed out", service),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"service": service,
		},
		Cause: cause,
	}
}

func NewAPICallFailedError(service string, statusCode int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorAPICallFailed,
		Message:   fmt.Sprintf("Call to %s failed", service),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"service":     service,
			"status_code": statusCode,
		},
		Cause: cause,
	}
}

// IsFatal reports whether err must abort a run instead of degrading it
func IsFatal(err error) bool {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code == ErrorUnsupportedFormat || pe.Code == ErrorInvalidInput
	}
	return false
}

// CodeOf returns the code of the first ProcessingError in err's chain
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ToMap converts error to map for JSON serialization
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"code":      string(e.Code),
		"message":   e.Message,
		"jobId":     e.JobID,
		"timestamp": e.Timestamp.Format(time.RFC3339),
	}

	if e.Details != nil {
		result["details"] = e.Details
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	// "error" mirrors the message so status updaters that read only that key still see it
	result["error"] = e.Error()

	return result
}
