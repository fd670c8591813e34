package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"QUEUE_BACKEND", "GROUPING_MODE", "CATALOG_SOURCE", "ENGINE_TIMEOUT", "CATALOG_THRESHOLD", "DOC_AI_PROVIDER", "VISION_PROVIDER", "LABEL_PROVIDER"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.GroupingMode != "label" {
		t.Errorf("GroupingMode = %q, want label", cfg.GroupingMode)
	}
	if cfg.CatalogThreshold != 70 {
		t.Errorf("CatalogThreshold = %d, want 70", cfg.CatalogThreshold)
	}
	if cfg.GenerativePrefixChars != 3000 {
		t.Errorf("GenerativePrefixChars = %d, want 3000", cfg.GenerativePrefixChars)
	}
	if cfg.EngineTimeout != 60*time.Second {
		t.Errorf("EngineTimeout = %v, want 60s", cfg.EngineTimeout)
	}
	if cfg.PostgresEnabled() {
		t.Errorf("postgres should be disabled without DATABASE_URL")
	}
}

func TestLoadConfigDurations(t *testing.T) {
	t.Setenv("ENGINE_TIMEOUT", "90s")
	t.Setenv("LAYOUT_TIMEOUT", "1500")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.EngineTimeout != 90*time.Second {
		t.Errorf("EngineTimeout = %v", cfg.EngineTimeout)
	}
	if cfg.LayoutTimeout != 1500*time.Millisecond {
		t.Errorf("LayoutTimeout = %v", cfg.LayoutTimeout)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"grouping mode", map[string]string{"GROUPING_MODE": "pages"}, "GROUPING_MODE"},
		{"azure without key", map[string]string{"DOC_AI_PROVIDER": "azure", "AZURE_DOCINTEL_ENDPOINT": "https://x"}, "AZURE_DOCINTEL_KEY"},
		{"gemini without key", map[string]string{"VISION_PROVIDER": "gemini", "GEMINI_API_KEY": ""}, "GEMINI_API_KEY"},
		{"mageagent labels", map[string]string{"LABEL_PROVIDER": "mageagent"}, "LABEL_PROVIDER"},
		{"postgres catalog", map[string]string{"CATALOG_SOURCE": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"threshold", map[string]string{"CATALOG_THRESHOLD": "150"}, "CATALOG_THRESHOLD"},
		{"queue", map[string]string{"QUEUE_BACKEND": "kafka"}, "QUEUE_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}
