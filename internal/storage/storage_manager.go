/**
 * Storage Manager for the TF page pipeline
 *
 * Fans every checkpoint out to the configured backends (filesystem,
 * PostgreSQL, Qdrant). A failing backend does not stop the others; the
 * combined error reports every failure.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

// Backend is one named store
type Backend struct {
	Name  string
	Store Store
}

// StorageManager coordinates the configured backends
type StorageManager struct {
	backends []Backend
}

// NewStorageManager fans out to backends in order
func NewStorageManager(backends ...Backend) *StorageManager {
	return &StorageManager{backends: backends}
}

// Backends returns the configured backends
func (sm *StorageManager) Backends() []Backend {
	return sm.backends
}

func (sm *StorageManager) each(fn func(Store) error) error {
	var errs []error
	for _, b := range sm.backends {
		if err := fn(b.Store); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (sm *StorageManager) SaveRawDocument(ctx context.Context, sessionID, documentID, name string, data []byte) error {
	return sm.each(func(s Store) error { return s.SaveRawDocument(ctx, sessionID, documentID, name, data) })
}

func (sm *StorageManager) SavePageDocument(ctx context.Context, sessionID, documentID, pageLabel string, data []byte) error {
	return sm.each(func(s Store) error { return s.SavePageDocument(ctx, sessionID, documentID, pageLabel, data) })
}

func (sm *StorageManager) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	return sm.each(func(s Store) error { return s.SavePageText(ctx, sessionID, documentID, pageLabel, text) })
}

func (sm *StorageManager) SavePageFields(ctx context.Context, sessionID, documentID, pageLabel string, fs *document.FieldSet) error {
	return sm.each(func(s Store) error { return s.SavePageFields(ctx, sessionID, documentID, pageLabel, fs) })
}

func (sm *StorageManager) SaveGroupDocument(ctx context.Context, sessionID, documentID, formLabel string, data []byte) error {
	return sm.each(func(s Store) error { return s.SaveGroupDocument(ctx, sessionID, documentID, formLabel, data) })
}

func (sm *StorageManager) SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error {
	return sm.each(func(s Store) error { return s.SaveGroupText(ctx, sessionID, documentID, formLabel, text) })
}

func (sm *StorageManager) SaveGroupFields(ctx context.Context, sessionID, documentID, formLabel string, sets []*document.FieldSet) error {
	return sm.each(func(s Store) error { return s.SaveGroupFields(ctx, sessionID, documentID, formLabel, sets) })
}

// RecordGroupCatalog forwards to every backend that keeps catalog matches
func (sm *StorageManager) RecordGroupCatalog(ctx context.Context, rec *CatalogRecord) error {
	return sm.each(func(s Store) error {
		if cr, ok := s.(CatalogRecorder); ok {
			return cr.RecordGroupCatalog(ctx, rec)
		}
		return nil
	})
}

// GetStats returns statistics from the backends that expose them
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	for _, b := range sm.backends {
		switch s := unwrap(b.Store).(type) {
		case *PostgresStore:
			pg := s.GetStats()
			stats[b.Name] = map[string]interface{}{
				"max_open_connections": pg.MaxOpenConnections,
				"open_connections":     pg.OpenConnections,
				"in_use":               pg.InUse,
				"idle":                 pg.Idle,
				"wait_count":           pg.WaitCount,
				"wait_duration":        pg.WaitDuration.String(),
			}
		case *GroupIndex:
			info, err := s.GetCollectionInfo(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get %s stats: %w", b.Name, err)
			}
			stats[b.Name] = info
		}
	}
	return stats, nil
}

// Close closes every backend that holds a connection
func (sm *StorageManager) Close() error {
	var errs []error
	for _, b := range sm.backends {
		if c, ok := unwrap(b.Store).(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s: %w", b.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func unwrap(s Store) Store {
	if r, ok := s.(*RetryingStore); ok {
		return r.inner
	}
	return s
}
