package queue

import (
	"context"
	"errors"
	"time"

	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/processor"
	"github.com/SandySenthilHub/TF-Phase1/internal/storage"
)

// defaultProcessingTimeout applies when no timeout is configured (30 minutes)
const defaultProcessingTimeout = 1800000 * time.Millisecond

// jobRunner runs one payload through the processor and mirrors its
// lifecycle into the processor's status recorder. Both consumers share it.
type jobRunner struct {
	processor processor.DocumentProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.DocumentProcessorInterface, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{processor: proc, timeout: timeout, logger: logger}
}

// run processes the payload under the processing timeout. A timeout is
// reported as a PROCESSING_TIMEOUT error.
func (r *jobRunner) run(ctx context.Context, payload *JobPayload) (*processor.ProcessResult, error) {
	startTime := time.Now()
	log := r.logger.With("job_id", payload.JobID)

	req := payload.Request()
	r.updateStatus(ctx, &storage.JobUpdate{
		JobID:      payload.JobID,
		SessionID:  req.SessionID,
		DocumentID: req.DocumentID,
		Filename:   payload.Filename,
		Status:     storage.JobStatusProcessing,
		Metadata: map[string]interface{}{
			"mimeType": payload.MimeType,
			"fileSize": payload.FileSize,
		},
	})

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log.Info("processing document", "filename", payload.Filename, "size", payload.FileSize, "timeout", r.timeout)
	result, err := r.processor.ProcessDocument(processCtx, req)
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(processCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			log.Error("processing timed out", "duration", duration, "timeout", r.timeout)
			err = tferrors.NewProcessingTimeoutError(payload.JobID, r.timeout, err)
		} else {
			log.Error("processing failed", "duration", duration, "error", err)
		}
		return nil, err
	}

	log.Info("processing completed",
		"duration", duration,
		"pages", result.PageCount,
		"groups", len(result.Groups),
		"sentinel_pages", result.SentinelPages)
	return result, nil
}

// completed records a successful run
func (r *jobRunner) completed(ctx context.Context, payload *JobPayload, result *processor.ProcessResult) {
	groups := make([]string, 0, len(result.Groups))
	for _, g := range result.Groups {
		groups = append(groups, g.Label)
	}
	r.updateStatus(ctx, &storage.JobUpdate{
		JobID:            payload.JobID,
		SessionID:        result.SessionID,
		DocumentID:       result.DocumentID,
		Filename:         payload.Filename,
		Status:           storage.JobStatusCompleted,
		PageCount:        result.PageCount,
		GroupCount:       len(result.Groups),
		ProcessingTimeMs: result.ProcessingTimeMs,
		Metadata: map[string]interface{}{
			"runId":               result.RunID,
			"groups":              groups,
			"engineCounts":        result.EngineCounts,
			"sentinelPages":       result.SentinelPages,
			"persistenceFailures": result.PersistenceFailures,
		},
	})
}

// failed records a run that will not be retried
func (r *jobRunner) failed(ctx context.Context, payload *JobPayload, attempts int, cause error) {
	update := &storage.JobUpdate{
		JobID:        payload.JobID,
		SessionID:    payload.Request().SessionID,
		DocumentID:   payload.DocumentID,
		Filename:     payload.Filename,
		Status:       storage.JobStatusFailed,
		ErrorCode:    string(tferrors.CodeOf(cause)),
		ErrorMessage: cause.Error(),
		Metadata:     map[string]interface{}{"attempts": attempts},
	}
	r.updateStatus(ctx, update)
}

func (r *jobRunner) updateStatus(ctx context.Context, update *storage.JobUpdate) {
	if err := r.processor.UpdateJobStatus(ctx, update); err != nil {
		r.logger.Warn("failed to update job status",
			"job_id", update.JobID, "status", update.Status, "error", err)
	}
}

// errorInfo is the body stored in the errors hash and sent with failure events
func errorInfo(err error, attempts int) map[string]interface{} {
	info := map[string]interface{}{
		"error":    err.Error(),
		"attempts": attempts,
	}
	var pe *tferrors.ProcessingError
	if errors.As(err, &pe) {
		for k, v := range pe.ToMap() {
			info[k] = v
		}
	}
	return info
}

// retryable reports whether a failed attempt may run again
func retryable(err error) bool {
	return !tferrors.IsFatal(err) && !errors.Is(err, context.Canceled)
}
