/**
 * PostgreSQL Store for the TF page pipeline
 *
 * Persists ingestion checkpoints (raw, cleaned page PDF/OCR, field deltas,
 * merged groups), group catalog matches and job status. Also serves the
 * master document set as a classification catalog.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/SandySenthilHub/TF-Phase1/internal/classifier"
	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
	"github.com/SandySenthilHub/TF-Phase1/internal/fields"
)

// PostgresStore handles database operations
type PostgresStore struct {
	db *sql.DB
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tf_ingestion_rawdocument (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size BIGINT NOT NULL,
		file_data BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_ingestion_cleanedpdf (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		form_type TEXT NOT NULL,
		file_data BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_ingestion_cleanedocr (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		form_type TEXT NOT NULL,
		ocr_text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_fields_delta (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		form_type TEXT NOT NULL,
		field_key TEXT NOT NULL,
		extracted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_fields_keyvaluepair (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		form_type TEXT NOT NULL,
		field_key TEXT NOT NULL,
		field_value TEXT NOT NULL,
		extracted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_ingestion_mgroupspdf (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		form_type TEXT NOT NULL,
		file_data BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_ingestion_mgroupsocr (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		form_type TEXT NOT NULL,
		ocr_text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_ingestion_mgroupsfields (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		form_type TEXT NOT NULL,
		fields_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_master_documentset (
		document_id TEXT PRIMARY KEY,
		document_name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS tf_mdocs_mgroups (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		grouped_form_type TEXT NOT NULL,
		matched_document_name TEXT,
		matched_document_id TEXT,
		confidence_score NUMERIC(5,4) NOT NULL DEFAULT 0,
		cataloged_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tf_processing_jobs (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		document_id TEXT,
		filename TEXT,
		status TEXT NOT NULL,
		page_count INTEGER,
		group_count INTEGER,
		processing_time_ms BIGINT,
		error_code TEXT,
		error_message TEXT,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// NewPostgresStore opens and pings the database
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := NewPostgresStoreFromDB(db)
	if err := p.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return p, nil
}

// NewPostgresStoreFromDB wraps an existing handle
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the pipeline tables when missing
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) SaveRawDocument(ctx context.Context, sessionID, documentID, name string, data []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tf_ingestion_rawdocument (session_id, document_id, file_name, file_size, file_data, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		sessionID, documentID, sanitizeText(name), len(data), data)
	if err != nil {
		return fmt.Errorf("failed to save raw document: %w", err)
	}
	return nil
}

func (p *PostgresStore) SavePageDocument(ctx context.Context, sessionID, documentID, pageLabel string, data []byte) error {
	return p.insertBlob(ctx, "tf_ingestion_cleanedpdf", sessionID, documentID, pageLabel, data)
}

func (p *PostgresStore) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	return p.insertText(ctx, "tf_ingestion_cleanedocr", sessionID, documentID, pageLabel, text)
}

// SavePageFields writes keys to tf_fields_delta and pairs to
// tf_fields_keyvaluepair in one transaction
func (p *PostgresStore) SavePageFields(ctx context.Context, sessionID, documentID, pageLabel string, fs *document.FieldSet) error {
	keys := fs.Keys()
	if len(keys) == 0 {
		return nil
	}
	values := make([]string, len(keys))
	for i, k := range keys {
		v, _ := fs.Get(k)
		keys[i] = sanitizeText(k)
		values[i] = sanitizeText(v)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return tferrors.NewDatabaseFailedError("begin fields transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tf_fields_delta (session_id, document_id, form_type, field_key, extracted_at)
		SELECT $1, $2, $3, k, NOW() FROM unnest($4::text[]) AS k`,
		sessionID, documentID, pageLabel, pq.Array(keys)); err != nil {
		return tferrors.NewDatabaseFailedError("save field keys", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tf_fields_keyvaluepair (session_id, document_id, form_type, field_key, field_value, extracted_at)
		SELECT $1, $2, $3, kv.k, kv.v, NOW() FROM unnest($4::text[], $5::text[]) AS kv(k, v)`,
		sessionID, documentID, pageLabel, pq.Array(keys), pq.Array(values)); err != nil {
		return tferrors.NewDatabaseFailedError("save field values", err)
	}

	if err := tx.Commit(); err != nil {
		return tferrors.NewDatabaseFailedError("commit fields", err)
	}
	return nil
}

func (p *PostgresStore) SaveGroupDocument(ctx context.Context, sessionID, documentID, formLabel string, data []byte) error {
	return p.insertBlob(ctx, "tf_ingestion_mgroupspdf", sessionID, documentID, formLabel, data)
}

func (p *PostgresStore) SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error {
	return p.insertText(ctx, "tf_ingestion_mgroupsocr", sessionID, documentID, formLabel, text)
}

func (p *PostgresStore) SaveGroupFields(ctx context.Context, sessionID, documentID, formLabel string, sets []*document.FieldSet) error {
	data, err := fields.MarshalGroup(sets)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO tf_ingestion_mgroupsfields (session_id, document_id, form_type, fields_json, created_at)
		VALUES ($1, $2, $3, $4::jsonb, NOW())`,
		sessionID, documentID, formLabel, sanitizeJSONForPostgres(data))
	if err != nil {
		return fmt.Errorf("failed to save group fields: %w", err)
	}
	return nil
}

// insertBlob and insertText only ever receive table names from this file
func (p *PostgresStore) insertBlob(ctx context.Context, table, sessionID, documentID, label string, data []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (session_id, document_id, form_type, file_data, created_at)
		VALUES ($1, $2, $3, $4, NOW())`, table)
	if _, err := p.db.ExecContext(ctx, query, sessionID, documentID, label, data); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func (p *PostgresStore) insertText(ctx context.Context, table, sessionID, documentID, label, text string) error {
	query := fmt.Sprintf(`INSERT INTO %s (session_id, document_id, form_type, ocr_text, created_at)
		VALUES ($1, $2, $3, $4, NOW())`, table)
	if _, err := p.db.ExecContext(ctx, query, sessionID, documentID, label, sanitizeText(text)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// Entries lists the active master document set
func (p *PostgresStore) Entries(ctx context.Context) ([]classifier.CatalogEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT document_id, document_name
		FROM tf_master_documentset
		WHERE is_active
		ORDER BY document_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query master document set: %w", err)
	}
	defer rows.Close()

	var entries []classifier.CatalogEntry
	for rows.Next() {
		var e classifier.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("failed to scan master document: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read master document set: %w", err)
	}
	return entries, nil
}

// RecordGroupCatalog inserts into tf_mdocs_mgroups
func (p *PostgresStore) RecordGroupCatalog(ctx context.Context, rec *CatalogRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tf_mdocs_mgroups (
			session_id, document_id, grouped_form_type,
			matched_document_name, matched_document_id,
			confidence_score, cataloged_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6::NUMERIC(5,4), NOW())`,
		rec.SessionID, rec.DocumentID, rec.GroupLabel,
		rec.MatchedName, rec.MatchedID, sanitizeScore(rec.Score))
	if err != nil {
		return fmt.Errorf("failed to record catalog match for %s: %w", rec.GroupLabel, err)
	}
	return nil
}

// UpdateJobStatus upserts the job row so the worker can create it on first update
func (p *PostgresStore) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON := []byte("{}")
	if update.Metadata != nil {
		b, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sanitizeJSONForPostgres(b)
	}

	query := `
		INSERT INTO tf_processing_jobs (
			id, session_id, document_id, filename, status,
			page_count, group_count, processing_time_ms,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5,
			NULLIF($6, 0), NULLIF($7, 0), NULLIF($8, 0),
			NULLIF($9, ''), NULLIF($10, ''), $11::jsonb, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			session_id = COALESCE(EXCLUDED.session_id, tf_processing_jobs.session_id),
			document_id = COALESCE(EXCLUDED.document_id, tf_processing_jobs.document_id),
			filename = COALESCE(EXCLUDED.filename, tf_processing_jobs.filename),
			page_count = COALESCE(EXCLUDED.page_count, tf_processing_jobs.page_count),
			group_count = COALESCE(EXCLUDED.group_count, tf_processing_jobs.group_count),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, tf_processing_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = tf_processing_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id`

	var returnedID string
	err := p.db.QueryRowContext(ctx, query,
		update.JobID,
		update.SessionID,
		update.DocumentID,
		sanitizeText(update.Filename),
		update.Status,
		update.PageCount,
		update.GroupCount,
		update.ProcessingTimeMs,
		update.ErrorCode,
		sanitizeText(update.ErrorMessage),
		metadataJSON,
	).Scan(&returnedID)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}
	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresStore) GetJobByID(ctx context.Context, jobID string) (*JobUpdate, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	var (
		job                             JobUpdate
		sessionID, documentID, filename sql.NullString
		pageCount, groupCount           sql.NullInt64
		processingTimeMs                sql.NullInt64
		errorCode, errorMessage         sql.NullString
		metadataJSON                    []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, session_id, document_id, filename, status,
			page_count, group_count, processing_time_ms,
			error_code, error_message, metadata, updated_at
		FROM tf_processing_jobs
		WHERE id = $1`, jobID).Scan(
		&job.JobID, &sessionID, &documentID, &filename, &job.Status,
		&pageCount, &groupCount, &processingTimeMs,
		&errorCode, &errorMessage, &metadataJSON, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.SessionID = sessionID.String
	job.DocumentID = documentID.String
	job.Filename = filename.String
	job.PageCount = int(pageCount.Int64)
	job.GroupCount = int(groupCount.Int64)
	job.ProcessingTimeMs = processingTimeMs.Int64
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &job, nil
}

// Ping checks database connectivity
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresStore) GetStats() sql.DBStats {
	return p.db.Stats()
}

// sanitizeScore clamps to [0,1] and rounds to 4 decimals to fit NUMERIC(5,4)
func sanitizeScore(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return float64(int(score*10000+0.5)) / 10000
}

// sanitizeText drops NUL bytes, which PostgreSQL TEXT rejects
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

var (
	jsonNullEscape    = regexp.MustCompile(`\\u0000`)
	jsonControlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes \u0000 escapes, which JSONB rejects, and
// blanks other control escapes
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := jsonNullEscape.ReplaceAll(jsonBytes, []byte{})
	return jsonControlEscape.ReplaceAll(result, []byte(" "))
}
