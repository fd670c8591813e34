/**
 * Configuration for the TF page pipeline
 *
 * Loads configuration from environment variables (optionally seeded from .env)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds pipeline and worker configuration
type Config struct {
	// Redis / queue configuration
	RedisURL     string
	QueueBackend string // "redis" (list protocol) or "asynq"
	QueueName    string

	// PostgreSQL configuration (optional)
	DatabaseURL string

	// Qdrant vector index for merged group text (optional)
	QdrantURL        string
	QdrantCollection string
	VoyageAPIKey     string

	// Recognition providers
	DocAIProvider  string // "azure", "mageagent" or "none"
	VisionProvider string // "gemini", "openai", "mageagent" or "none"
	LabelProvider  string // "gemini", "openai" or "none"

	MageAgentURL string

	AzureDocIntelEndpoint string
	AzureDocIntelKey      string
	AzureDocIntelModel    string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	AzureOpenAIEndpoint   string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string

	// Local OCR and rasterizing
	TesseractLanguage string
	PdftoppmPath      string
	RasterDPI         int
	MaxRasterSide     int

	// Timeouts
	EngineTimeout     time.Duration
	LayoutTimeout     time.Duration
	ProcessingTimeout int // milliseconds, per queued job

	// Classification
	CatalogSource         string // "postgres", "excel" or "static"
	CatalogXLSXPath       string
	CatalogSheet          string
	CatalogThreshold      int
	GenerativePrefixChars int

	// Grouping
	GroupingMode string // "label" or "contiguous"

	// Output and persistence
	OutputDir           string
	StoreMaxAttempts    int
	StoreInitialBackoff time.Duration
	StoreMaxBackoff     time.Duration

	// Worker configuration
	WorkerConcurrency int
	PageConcurrency   int
	MaxFileSize       int64
	TempDir           string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:     getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueBackend: strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", "redis")),
		QueueName:    getEnvOrDefault("QUEUE_NAME", "tf:jobs"),

		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),

		QdrantURL:        getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection: getEnvOrDefault("QDRANT_COLLECTION", "tf_group_text"),
		VoyageAPIKey:     getEnvOrDefault("VOYAGE_API_KEY", ""),

		DocAIProvider:  strings.ToLower(getEnvOrDefault("DOC_AI_PROVIDER", "none")),
		VisionProvider: strings.ToLower(getEnvOrDefault("VISION_PROVIDER", "none")),
		LabelProvider:  strings.ToLower(getEnvOrDefault("LABEL_PROVIDER", "none")),

		MageAgentURL: getEnvOrDefault("MAGEAGENT_URL", "http://nexus-mageagent:8080"),

		AzureDocIntelEndpoint: getEnvOrDefault("AZURE_DOCINTEL_ENDPOINT", ""),
		AzureDocIntelKey:      getEnvOrDefault("AZURE_DOCINTEL_KEY", ""),
		AzureDocIntelModel:    getEnvOrDefault("AZURE_DOCINTEL_MODEL", "prebuilt-layout"),

		GeminiAPIKey: getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),

		OpenAIAPIKey:          getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:           getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		AzureOpenAIEndpoint:   getEnvOrDefault("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIDeployment: getEnvOrDefault("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
		AzureOpenAIAPIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-10-21"),

		TesseractLanguage: getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		PdftoppmPath:      getEnvOrDefault("PDFTOPPM_PATH", "pdftoppm"),
		RasterDPI:         getEnvAsIntOrDefault("RASTER_DPI", 200),
		MaxRasterSide:     getEnvAsIntOrDefault("MAX_RASTER_SIDE", 4000),

		EngineTimeout:     getEnvAsDurationOrDefault("ENGINE_TIMEOUT", 60*time.Second),
		LayoutTimeout:     getEnvAsDurationOrDefault("LAYOUT_TIMEOUT", 5*time.Minute),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 1800000), // 30 minutes

		CatalogSource:         strings.ToLower(getEnvOrDefault("CATALOG_SOURCE", "static")),
		CatalogXLSXPath:       getEnvOrDefault("CATALOG_XLSX_PATH", "Format.xlsx"),
		CatalogSheet:          getEnvOrDefault("CATALOG_SHEET", ""),
		CatalogThreshold:      getEnvAsIntOrDefault("CATALOG_THRESHOLD", 70),
		GenerativePrefixChars: getEnvAsIntOrDefault("GENERATIVE_PREFIX_CHARS", 3000),

		GroupingMode: strings.ToLower(getEnvOrDefault("GROUPING_MODE", "label")),

		OutputDir:           getEnvOrDefault("OUTPUT_DIR", "./outputs"),
		StoreMaxAttempts:    getEnvAsIntOrDefault("STORE_MAX_ATTEMPTS", 3),
		StoreInitialBackoff: getEnvAsDurationOrDefault("STORE_INITIAL_BACKOFF", 500*time.Millisecond),
		StoreMaxBackoff:     getEnvAsDurationOrDefault("STORE_MAX_BACKOFF", 8*time.Second),

		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 2),
		PageConcurrency:   getEnvAsIntOrDefault("PAGE_CONCURRENCY", 1),
		MaxFileSize:       getEnvAsInt64OrDefault("MAX_FILE_SIZE", 268435456), // 256MB
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case "redis", "asynq":
	default:
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	switch c.DocAIProvider {
	case "none":
	case "mageagent":
		if c.MageAgentURL == "" {
			return fmt.Errorf("MAGEAGENT_URL is required when DOC_AI_PROVIDER=mageagent")
		}
	case "azure":
		if c.AzureDocIntelEndpoint == "" || c.AzureDocIntelKey == "" {
			return fmt.Errorf("AZURE_DOCINTEL_ENDPOINT and AZURE_DOCINTEL_KEY are required when DOC_AI_PROVIDER=azure")
		}
	default:
		return fmt.Errorf("DOC_AI_PROVIDER must be azure, mageagent or none, got %q", c.DocAIProvider)
	}

	if err := c.validateLLMProvider("VISION_PROVIDER", c.VisionProvider, true); err != nil {
		return err
	}
	if err := c.validateLLMProvider("LABEL_PROVIDER", c.LabelProvider, false); err != nil {
		return err
	}

	switch c.CatalogSource {
	case "static", "excel":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when CATALOG_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("CATALOG_SOURCE must be postgres, excel or static, got %q", c.CatalogSource)
	}

	if c.GroupingMode != "label" && c.GroupingMode != "contiguous" {
		return fmt.Errorf("GROUPING_MODE must be label or contiguous, got %q", c.GroupingMode)
	}

	if c.CatalogThreshold < 0 || c.CatalogThreshold > 100 {
		return fmt.Errorf("CATALOG_THRESHOLD must be between 0 and 100, got %d", c.CatalogThreshold)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.PageConcurrency < 1 || c.PageConcurrency > 32 {
		return fmt.Errorf("PAGE_CONCURRENCY must be between 1 and 32, got %d", c.PageConcurrency)
	}

	if c.StoreMaxAttempts < 1 {
		return fmt.Errorf("STORE_MAX_ATTEMPTS must be at least 1, got %d", c.StoreMaxAttempts)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if c.EngineTimeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT must be positive")
	}

	return nil
}

func (c *Config) validateLLMProvider(key, provider string, allowMageAgent bool) error {
	switch provider {
	case "none":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when %s=gemini", key)
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when %s=openai", key)
		}
	case "mageagent":
		if !allowMageAgent {
			return fmt.Errorf("%s does not support mageagent", key)
		}
		if c.MageAgentURL == "" {
			return fmt.Errorf("MAGEAGENT_URL is required when %s=mageagent", key)
		}
	default:
		return fmt.Errorf("%s has unknown provider %q", key, provider)
	}
	return nil
}

// PostgresEnabled reports whether a database is configured
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// VectorIndexEnabled reports whether group text should be embedded into Qdrant
func (c *Config) VectorIndexEnabled() bool {
	return c.QdrantURL != "" && c.VoyageAPIKey != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or bare milliseconds ("90000")
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	return defaultValue
}
