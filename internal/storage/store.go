/**
 * Store - Persistence checkpoints of the page pipeline
 *
 * Every backend (filesystem, PostgreSQL, Qdrant group index) implements Store.
 * Calls are best-effort from the pipeline's point of view: a failed save is
 * logged and counted, never fatal.
 */

package storage

import (
	"context"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

// Store receives the artifacts of one document run
type Store interface {
	SaveRawDocument(ctx context.Context, sessionID, documentID, name string, data []byte) error
	SavePageDocument(ctx context.Context, sessionID, documentID, pageLabel string, data []byte) error
	SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error
	SavePageFields(ctx context.Context, sessionID, documentID, pageLabel string, fields *document.FieldSet) error
	SaveGroupDocument(ctx context.Context, sessionID, documentID, formLabel string, data []byte) error
	SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error
	SaveGroupFields(ctx context.Context, sessionID, documentID, formLabel string, fields []*document.FieldSet) error
}

// CatalogRecord links a finalized group to its closest master catalog entry.
// MatchedName and MatchedID are empty when nothing reached the cutoff.
type CatalogRecord struct {
	SessionID   string
	DocumentID  string
	GroupLabel  string
	MatchedName string
	MatchedID   string
	Score       float64
}

// CatalogRecorder is implemented by stores that keep group catalog matches
type CatalogRecorder interface {
	RecordGroupCatalog(ctx context.Context, rec *CatalogRecord) error
}

// Job states
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	SessionID        string
	DocumentID       string
	Filename         string
	Status           string
	PageCount        int
	GroupCount       int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
	UpdatedAt        time.Time
}

// StatusRecorder persists job lifecycle transitions
type StatusRecorder interface {
	UpdateJobStatus(ctx context.Context, update *JobUpdate) error
}
