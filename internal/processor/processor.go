/**
 * Document Processor for the TF page pipeline
 *
 * Runs one trade-finance document end to end:
 * - load (buffer, path or URL) and reject non-PDF input
 * - split into single-page PDFs, rasterizing each one while it is recognized
 * - recognize each page through the cascade (one document-AI call per run)
 * - extract key/value fields and classify the page
 * - persist page artifacts, then group by label and persist group bundles
 * - record each group's closest master catalog entry
 *
 * Only unreadable input and cancellation abort a run. Engine, classifier
 * and store failures are logged and counted.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SandySenthilHub/TF-Phase1/internal/classifier"
	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
	"github.com/SandySenthilHub/TF-Phase1/internal/fields"
	"github.com/SandySenthilHub/TF-Phase1/internal/grouper"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/recognition"
	"github.com/SandySenthilHub/TF-Phase1/internal/storage"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// Splitter cuts a PDF into single-page PDFs and joins them back
type Splitter interface {
	Split(pdf []byte) ([][]byte, error)
	Merge(docs [][]byte) ([]byte, error)
}

// Rasterizer renders one 1-based page of a PDF
type Rasterizer interface {
	RenderPage(ctx context.Context, pdf []byte, page int) (image.Image, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Splitter        Splitter   // required
	Rasterizer      Rasterizer // nil leaves pages without images
	Cascade         *recognition.Cascade
	LayoutAnalyzer  recognition.LayoutAnalyzer // nil disables document-AI
	LayoutTimeout   time.Duration
	Classifier      *classifier.Classifier
	Catalog         classifier.CatalogSource // names for the catalog tier and group cataloging
	Store           storage.Store            // required
	StatusRecorder  storage.StatusRecorder   // optional
	GroupingMode    grouper.Mode
	PageConcurrency int
	MaxFileSize     int64
	HTTPClient      *http.Client
	Logger          *logging.Logger
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	SessionID  string
	DocumentID string // generated when empty
	Filename   string
	FileSize   int64
	FileURL    string
	FilePath   string
	FileBuffer []byte
	Metadata   map[string]interface{}
}

// GroupSummary describes one persisted form group
type GroupSummary struct {
	Label       string  `json:"label"`
	Pages       []int   `json:"pages"`
	MatchedName string  `json:"matchedName,omitempty"`
	MatchedID   string  `json:"matchedId,omitempty"`
	MatchScore  float64 `json:"matchScore,omitempty"`
}

// PageSummary describes how one page was read and labeled
type PageSummary struct {
	Index      int                   `json:"index"`
	Source     document.SourceEngine `json:"source"`
	Confidence float64               `json:"confidence"`
	Label      string                `json:"label"`
	Origin     document.LabelOrigin  `json:"origin"`
	FieldCount int                   `json:"fieldCount"`
}

// ProcessResult represents the processing result
type ProcessResult struct {
	RunID               string                        `json:"runId"`
	SessionID           string                        `json:"sessionId"`
	DocumentID          string                        `json:"documentId"`
	PageCount           int                           `json:"pageCount"`
	EngineCounts        map[document.SourceEngine]int `json:"engineCounts"`
	SentinelPages       int                           `json:"sentinelPages"`
	Pages               []PageSummary                 `json:"pages"`
	Groups              []GroupSummary                `json:"groups"`
	PersistenceFailures int                           `json:"persistenceFailures"`
	ProcessingTimeMs    int64                         `json:"processingTimeMs"`
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config     *ProcessorConfig
	splitter   Splitter
	rasterizer Rasterizer
	cascade    *recognition.Cascade
	classifier *classifier.Classifier
	store      storage.Store
	status     storage.StatusRecorder
	httpClient *http.Client
	logger     *logging.Logger

	downloadAttempts int
	downloadBackoff  time.Duration
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Processor")
	}
	if cfg.PageConcurrency < 1 {
		cfg.PageConcurrency = 1
	}
	if cfg.Catalog == nil {
		cfg.Catalog = classifier.DefaultCatalog
	}

	cascade := cfg.Cascade
	if cascade == nil {
		cascade = recognition.NewCascade(recognition.CascadeConfig{Logger: logger})
	}
	cls := cfg.Classifier
	if cls == nil {
		cls = classifier.New(classifier.Config{Logger: logger})
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	return &DocumentProcessor{
		config:           cfg,
		splitter:         cfg.Splitter,
		rasterizer:       cfg.Rasterizer,
		cascade:          cascade,
		classifier:       cls,
		store:            cfg.Store,
		status:           cfg.StatusRecorder,
		httpClient:       httpClient,
		logger:           logger,
		downloadAttempts: 5,
		downloadBackoff:  time.Second,
	}, nil
}

// run is the per-document state of one ProcessDocument call
type run struct {
	req      *ProcessRequest
	logger   *logging.Logger
	failures atomic.Int32
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	if req == nil {
		return nil, tferrors.NewInvalidInputError("", "request is required")
	}
	if req.SessionID == "" {
		return nil, tferrors.NewInvalidInputError(req.JobID, "session ID is required")
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	result := &ProcessResult{
		RunID:        uuid.NewString(),
		SessionID:    req.SessionID,
		DocumentID:   req.DocumentID,
		EngineCounts: make(map[document.SourceEngine]int),
	}
	r := &run{
		req: req,
		logger: p.logger.With("job_id", req.JobID, "run_id", result.RunID,
			"session_id", req.SessionID, "document_id", req.DocumentID),
	}
	r.logger.Info("starting document run", "filename", req.Filename)

	// Step 1: load and check the input
	data, err := p.loadFile(ctx, r)
	if err != nil {
		return nil, err
	}
	if p.config.MaxFileSize > 0 && int64(len(data)) > p.config.MaxFileSize {
		return nil, tferrors.NewInvalidInputError(req.JobID,
			fmt.Sprintf("file size exceeds maximum: %d > %d bytes", len(data), p.config.MaxFileSize))
	}
	if detected := detectMimeTypeFromMagicBytes(data); detected != mimePDF {
		if detected == "" {
			detected = "unknown"
		}
		return nil, tferrors.NewUnsupportedFormatError(req.JobID, detected, nil)
	}

	// Step 2: split into page units; a document that cannot be split is fatal
	units, err := p.splitter.Split(data)
	if err != nil {
		return nil, tferrors.NewUnsupportedFormatError(req.JobID, mimePDF, err)
	}
	if len(units) == 0 {
		return nil, tferrors.NewUnsupportedFormatError(req.JobID, mimePDF, fmt.Errorf("document has no pages"))
	}
	result.PageCount = len(units)
	r.logger.Info("document split", "pages", len(units))

	// Step 3: page images are rendered lazily, one per in-flight page
	pages := make([]*document.Page, len(units))
	for i, unit := range units {
		pages[i] = &document.Page{Index: i + 1, Document: unit}
	}

	name := req.Filename
	if name == "" {
		name = "original.pdf"
	}
	p.persist(r, "save_raw_document", func() error {
		return p.store.SaveRawDocument(ctx, req.SessionID, req.DocumentID, name, data)
	})

	// Step 4: catalog names are read once per run
	entries, err := p.config.Catalog.Entries(ctx)
	if err != nil {
		r.logger.Warn("catalog unavailable, catalog tier disabled", "error", err)
		entries = nil
	}
	cc := classifier.Context{CatalogNames: classifier.Names(entries)}

	// Step 5: per-page recognition, extraction, classification and persistence
	layout := recognition.NewLayoutCache(p.config.LayoutAnalyzer, data, p.config.LayoutTimeout)
	processed, err := p.processPages(ctx, r, pages, layout, cc)
	if err != nil {
		return nil, err
	}

	// Step 6: group in page order and persist bundles
	grp := grouper.New(p.config.GroupingMode, p.splitter.Merge, r.logger)
	for _, pp := range processed {
		grp.Assign(pp, pp.Label)

		result.EngineCounts[pp.Result.Source]++
		if !pp.Result.Found() {
			result.SentinelPages++
		}
		result.Pages = append(result.Pages, PageSummary{
			Index:      pp.Page.Index,
			Source:     pp.Result.Source,
			Confidence: pp.Result.Confidence,
			Label:      pp.Label.Name,
			Origin:     pp.Label.Origin,
			FieldCount: pp.Fields.Len(),
		})
	}

	for _, g := range grp.Finalize() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Groups = append(result.Groups, p.saveGroup(ctx, r, g, entries))
	}

	result.PersistenceFailures = int(r.failures.Load())
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	r.logger.Info("document run complete",
		"pages", result.PageCount,
		"groups", len(result.Groups),
		"sentinel_pages", result.SentinelPages,
		"persistence_failures", result.PersistenceFailures,
		"duration_ms", result.ProcessingTimeMs)
	return result, nil
}

// processPages runs pages with bounded concurrency and returns them in page order
func (p *DocumentProcessor) processPages(ctx context.Context, r *run, pages []*document.Page, layout *recognition.LayoutCache, cc classifier.Context) ([]*document.ProcessedPage, error) {
	out := make([]*document.ProcessedPage, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.PageConcurrency)
	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.processPage(gctx, r, page, layout, cc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *DocumentProcessor) processPage(ctx context.Context, r *run, page *document.Page, layout *recognition.LayoutCache, cc classifier.Context) *document.ProcessedPage {
	if page.Image == nil {
		page.Image = p.renderPage(ctx, r, page)
	}
	res := p.cascade.Recognize(ctx, page, layout)
	page.Image = nil

	fs := document.NewFieldSet()
	if res.Found() {
		fs = fields.Extract(res.Text)
	}
	label := p.classifier.Classify(ctx, res.Text, cc)

	pageLabel := page.Label()
	r.logger.Info("page processed",
		"page", pageLabel,
		"source", res.Source,
		"confidence", res.Confidence,
		"label", label.Name,
		"origin", label.Origin,
		"fields", fs.Len())

	sid, did := r.req.SessionID, r.req.DocumentID
	p.persist(r, "save_page_document", func() error {
		return p.store.SavePageDocument(ctx, sid, did, pageLabel, page.Document)
	})
	p.persist(r, "save_page_text", func() error {
		return p.store.SavePageText(ctx, sid, did, pageLabel, res.Text)
	})
	p.persist(r, "save_page_fields", func() error {
		return p.store.SavePageFields(ctx, sid, did, pageLabel, fs)
	})

	return &document.ProcessedPage{Page: page, Result: res, Fields: fs, Label: label}
}

func (p *DocumentProcessor) saveGroup(ctx context.Context, r *run, g *document.FormGroup, entries []classifier.CatalogEntry) GroupSummary {
	sid, did := r.req.SessionID, r.req.DocumentID
	summary := GroupSummary{Label: g.Label, Pages: g.PageIndexes()}

	p.persist(r, "save_group_document", func() error {
		return p.store.SaveGroupDocument(ctx, sid, did, g.Label, g.MergedDocument)
	})
	p.persist(r, "save_group_text", func() error {
		return p.store.SaveGroupText(ctx, sid, did, g.Label, g.MergedText)
	})
	p.persist(r, "save_group_fields", func() error {
		return p.store.SaveGroupFields(ctx, sid, did, g.Label, g.MergedFields)
	})

	rec := &storage.CatalogRecord{SessionID: sid, DocumentID: did, GroupLabel: g.Label}
	if entry, score, ok := classifier.MatchCatalogName(g.Label, entries, classifier.GroupCatalogCutoff); ok {
		rec.MatchedName, rec.MatchedID, rec.Score = entry.Name, entry.ID, score
		summary.MatchedName, summary.MatchedID, summary.MatchScore = entry.Name, entry.ID, score
	}
	r.logger.Info("group cataloged",
		"label", g.Label, "pages", summary.Pages, "matched", rec.MatchedName, "score", rec.Score)

	if cr, ok := p.store.(storage.CatalogRecorder); ok {
		p.persist(r, "record_group_catalog", func() error {
			return cr.RecordGroupCatalog(ctx, rec)
		})
	}
	return summary
}

// persist runs one best-effort store call
func (p *DocumentProcessor) persist(r *run, op string, fn func() error) {
	if err := fn(); err != nil {
		r.failures.Add(1)
		perr := tferrors.NewStorageFailedError(r.req.JobID, op, err)
		r.logger.Error("persistence failed", "op", op, "error", perr)
	}
}

// renderPage rasterizes the page's own single-page PDF. A nil image only
// disables image-based engines for that page.
func (p *DocumentProcessor) renderPage(ctx context.Context, r *run, page *document.Page) image.Image {
	if p.rasterizer == nil {
		return nil
	}
	img, err := p.rasterizer.RenderPage(ctx, page.Document, 1)
	if err != nil {
		r.logger.Warn("rasterizing page failed, image engines disabled for it", "page", page.Index, "error", err)
		return nil
	}
	return img
}

// UpdateJobStatus records a job transition when a status recorder is configured
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	if p.status == nil {
		return nil
	}
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now()
	}
	return p.status.UpdateJobStatus(ctx, update)
}
