package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/classifier"
	"github.com/SandySenthilHub/TF-Phase1/internal/clients"
	"github.com/SandySenthilHub/TF-Phase1/internal/config"
	"github.com/SandySenthilHub/TF-Phase1/internal/grouper"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/pdf"
	"github.com/SandySenthilHub/TF-Phase1/internal/recognition"
	"github.com/SandySenthilHub/TF-Phase1/internal/storage"
)

// Runtime bundles a processor with the connections it holds open
type Runtime struct {
	Processor  *DocumentProcessor
	Storage    *storage.StorageManager
	Postgres   *storage.PostgresStore // nil without DATABASE_URL
	GroupIndex *storage.GroupIndex    // nil without Qdrant
	closers    []io.Closer
}

// Close releases every client and store connection
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Storage != nil {
		if err := rt.Storage.Close(); err != nil {
			errs = append(errs, err)
		}
	} else {
		// Build failed before the manager took ownership
		if rt.Postgres != nil {
			errs = append(errs, rt.Postgres.Close())
		}
		if rt.GroupIndex != nil {
			errs = append(errs, rt.GroupIndex.Close())
		}
	}
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildOptions adjusts Build for a caller
type BuildOptions struct {
	// ExtraStores are appended to the configured backends
	ExtraStores []storage.Backend
	// SkipFileStore leaves OUTPUT_DIR untouched
	SkipFileStore bool
}

// Build wires a processor and its backends from configuration
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Runtime, error) {
	logger := logging.NewLogger("Processor")
	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	// Storage backends
	policy := storage.RetryPolicy{
		MaxAttempts:    cfg.StoreMaxAttempts,
		InitialBackoff: cfg.StoreInitialBackoff,
		MaxBackoff:     cfg.StoreMaxBackoff,
	}
	storeLogger := logging.NewLogger("Storage")
	var backends []storage.Backend

	if !opts.SkipFileStore {
		fs, err := storage.NewFileStore(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		backends = append(backends, storage.Backend{Name: "filesystem", Store: storage.NewRetryingStore(fs, "filesystem", policy, storeLogger)})
	}

	if cfg.PostgresEnabled() {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
		}
		rt.Postgres = pg
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		backends = append(backends, storage.Backend{Name: "postgres", Store: storage.NewRetryingStore(pg, "postgres", policy, storeLogger)})
	}

	if cfg.VectorIndexEnabled() {
		emb, err := clients.NewEmbeddingClient(cfg.VoyageAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		gi, err := storage.NewGroupIndex(ctx, cfg.QdrantURL, cfg.QdrantCollection, emb, clients.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Qdrant group index: %w", err)
		}
		rt.GroupIndex = gi
		backends = append(backends, storage.Backend{Name: "qdrant", Store: storage.NewRetryingStore(gi, "qdrant", policy, storeLogger)})
	}

	backends = append(backends, opts.ExtraStores...)
	rt.Storage = storage.NewStorageManager(backends...)

	// Recognition engines
	var local recognition.LocalEngine
	if te, err := recognition.NewTesseractEngine(cfg.TesseractLanguage); err != nil {
		logger.Warn("local OCR unavailable", "error", err)
	} else {
		local = te
	}

	vision, err := rt.visionRefiner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	layout := layoutAnalyzer(cfg)
	labels, err := rt.labelGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.VisionProvider == "mageagent" || cfg.DocAIProvider == "mageagent" {
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := clients.NewMageAgentClient(cfg.MageAgentURL).HealthCheck(hctx); err != nil {
			logger.Warn("MageAgent health check failed, remote tiers will degrade", "url", cfg.MageAgentURL, "error", err)
		}
		cancel()
	}
	logger.Info("providers configured",
		"doc_ai", cfg.DocAIProvider, "vision", cfg.VisionProvider, "labels", cfg.LabelProvider,
		"local_ocr", local != nil)

	// Catalog
	var catalog classifier.CatalogSource
	switch cfg.CatalogSource {
	case "postgres":
		if rt.Postgres == nil {
			return nil, fmt.Errorf("CATALOG_SOURCE=postgres requires DATABASE_URL")
		}
		catalog = rt.Postgres
	case "excel":
		catalog = classifier.ExcelCatalog{Path: cfg.CatalogXLSXPath, Sheet: cfg.CatalogSheet}
	default:
		catalog = classifier.DefaultCatalog
	}

	var status storage.StatusRecorder
	if rt.Postgres != nil {
		status = rt.Postgres
	}

	proc, err := NewDocumentProcessor(&ProcessorConfig{
		Splitter: pdf.NewSplitter(),
		Rasterizer: pdf.NewRasterizer(pdf.ExecRunner{Logger: logging.NewLogger("Rasterizer")},
			cfg.PdftoppmPath, cfg.RasterDPI, cfg.TempDir),
		Cascade: recognition.NewCascade(recognition.CascadeConfig{
			Local:         local,
			Vision:        vision,
			EngineTimeout: cfg.EngineTimeout,
			MaxRasterSide: cfg.MaxRasterSide,
			Logger:        logging.NewLogger("Cascade"),
		}),
		LayoutAnalyzer: layout,
		LayoutTimeout:  cfg.LayoutTimeout,
		Classifier: classifier.New(classifier.Config{
			Threshold:   cfg.CatalogThreshold,
			Generator:   labels,
			PrefixChars: cfg.GenerativePrefixChars,
			Timeout:     cfg.EngineTimeout,
			Logger:      logging.NewLogger("Classifier"),
		}),
		Catalog:         catalog,
		Store:           rt.Storage,
		StatusRecorder:  status,
		GroupingMode:    grouper.Mode(cfg.GroupingMode),
		PageConcurrency: cfg.PageConcurrency,
		MaxFileSize:     cfg.MaxFileSize,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	rt.Processor = proc
	ok = true
	return rt, nil
}

func (rt *Runtime) gemini(ctx context.Context, cfg *config.Config) (*clients.GeminiClient, error) {
	for _, c := range rt.closers {
		if g, ok := c.(*clients.GeminiClient); ok {
			return g, nil
		}
	}
	g, err := clients.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	rt.closers = append(rt.closers, g)
	return g, nil
}

func openAIClient(cfg *config.Config) *clients.OpenAIClient {
	return clients.NewOpenAIClient(clients.OpenAIConfig{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		Model:           cfg.OpenAIModel,
		AzureEndpoint:   cfg.AzureOpenAIEndpoint,
		AzureDeployment: cfg.AzureOpenAIDeployment,
		AzureAPIVersion: cfg.AzureOpenAIAPIVersion,
		Timeout:         cfg.EngineTimeout + 30*time.Second,
	})
}

func (rt *Runtime) visionRefiner(ctx context.Context, cfg *config.Config) (recognition.VisionRefiner, error) {
	switch cfg.VisionProvider {
	case "gemini":
		return rt.gemini(ctx, cfg)
	case "openai":
		return openAIClient(cfg), nil
	case "mageagent":
		return clients.NewMageAgentClient(cfg.MageAgentURL), nil
	}
	return nil, nil
}

func (rt *Runtime) labelGenerator(ctx context.Context, cfg *config.Config) (classifier.LabelGenerator, error) {
	switch cfg.LabelProvider {
	case "gemini":
		return rt.gemini(ctx, cfg)
	case "openai":
		return openAIClient(cfg), nil
	}
	return nil, nil
}

func layoutAnalyzer(cfg *config.Config) recognition.LayoutAnalyzer {
	switch cfg.DocAIProvider {
	case "azure":
		return clients.NewAzureDocIntelClient(cfg.AzureDocIntelEndpoint, cfg.AzureDocIntelKey, cfg.AzureDocIntelModel)
	case "mageagent":
		return clients.NewMageAgentClient(cfg.MageAgentURL)
	}
	return nil
}
