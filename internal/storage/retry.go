package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// RetryPolicy bounds the attempts of one store call
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Backoff returns the wait before attempt n+1 (n starts at 1)
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// RetryingStore retries every call of the wrapped store with exponential backoff
type RetryingStore struct {
	inner  Store
	name   string
	policy RetryPolicy
	logger *logging.Logger
}

// NewRetryingStore wraps inner. name tags log lines.
func NewRetryingStore(inner Store, name string, policy RetryPolicy, logger *logging.Logger) *RetryingStore {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RetryingStore{inner: inner, name: name, policy: policy, logger: logger}
}

func (r *RetryingStore) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		wait := r.policy.Backoff(attempt)
		r.logger.Warn("store call failed, retrying",
			"store", r.name, "op", op, "attempt", attempt, "backoff", wait.String(), "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", r.name, op, r.policy.MaxAttempts, err)
}

func (r *RetryingStore) SaveRawDocument(ctx context.Context, sessionID, documentID, name string, data []byte) error {
	return r.do(ctx, "save_raw_document", func(ctx context.Context) error {
		return r.inner.SaveRawDocument(ctx, sessionID, documentID, name, data)
	})
}

func (r *RetryingStore) SavePageDocument(ctx context.Context, sessionID, documentID, pageLabel string, data []byte) error {
	return r.do(ctx, "save_page_document", func(ctx context.Context) error {
		return r.inner.SavePageDocument(ctx, sessionID, documentID, pageLabel, data)
	})
}

func (r *RetryingStore) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	return r.do(ctx, "save_page_text", func(ctx context.Context) error {
		return r.inner.SavePageText(ctx, sessionID, documentID, pageLabel, text)
	})
}

func (r *RetryingStore) SavePageFields(ctx context.Context, sessionID, documentID, pageLabel string, fs *document.FieldSet) error {
	return r.do(ctx, "save_page_fields", func(ctx context.Context) error {
		return r.inner.SavePageFields(ctx, sessionID, documentID, pageLabel, fs)
	})
}

func (r *RetryingStore) SaveGroupDocument(ctx context.Context, sessionID, documentID, formLabel string, data []byte) error {
	return r.do(ctx, "save_group_document", func(ctx context.Context) error {
		return r.inner.SaveGroupDocument(ctx, sessionID, documentID, formLabel, data)
	})
}

func (r *RetryingStore) SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error {
	return r.do(ctx, "save_group_text", func(ctx context.Context) error {
		return r.inner.SaveGroupText(ctx, sessionID, documentID, formLabel, text)
	})
}

func (r *RetryingStore) SaveGroupFields(ctx context.Context, sessionID, documentID, formLabel string, sets []*document.FieldSet) error {
	return r.do(ctx, "save_group_fields", func(ctx context.Context) error {
		return r.inner.SaveGroupFields(ctx, sessionID, documentID, formLabel, sets)
	})
}

// RecordGroupCatalog is a no-op when the wrapped store keeps no catalog
func (r *RetryingStore) RecordGroupCatalog(ctx context.Context, rec *CatalogRecord) error {
	cr, ok := r.inner.(CatalogRecorder)
	if !ok {
		return nil
	}
	return r.do(ctx, "record_group_catalog", func(ctx context.Context) error {
		return cr.RecordGroupCatalog(ctx, rec)
	})
}
