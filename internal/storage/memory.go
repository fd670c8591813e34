package storage

import (
	"context"
	"sync"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

// MemoryStore keeps artifacts in maps keyed by "<session>/<document>/<label>".
// It backs dry runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	Raw         map[string][]byte
	PageDocs    map[string][]byte
	PageTexts   map[string]string
	PageFields  map[string]*document.FieldSet
	GroupDocs   map[string][]byte
	GroupTexts  map[string]string
	GroupFields map[string][]*document.FieldSet
	CatalogRecs []CatalogRecord
	JobUpdates  []JobUpdate
	calls       int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Raw:         make(map[string][]byte),
		PageDocs:    make(map[string][]byte),
		PageTexts:   make(map[string]string),
		PageFields:  make(map[string]*document.FieldSet),
		GroupDocs:   make(map[string][]byte),
		GroupTexts:  make(map[string]string),
		GroupFields: make(map[string][]*document.FieldSet),
	}
}

// Key builds the map key used by MemoryStore
func Key(sessionID, documentID, label string) string {
	return sessionID + "/" + documentID + "/" + label
}

func (m *MemoryStore) SaveRawDocument(ctx context.Context, sessionID, documentID, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.Raw[Key(sessionID, documentID, name)] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) SavePageDocument(ctx context.Context, sessionID, documentID, pageLabel string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.PageDocs[Key(sessionID, documentID, pageLabel)] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.PageTexts[Key(sessionID, documentID, pageLabel)] = text
	return nil
}

func (m *MemoryStore) SavePageFields(ctx context.Context, sessionID, documentID, pageLabel string, fs *document.FieldSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.PageFields[Key(sessionID, documentID, pageLabel)] = fs.Clone()
	return nil
}

func (m *MemoryStore) SaveGroupDocument(ctx context.Context, sessionID, documentID, formLabel string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.GroupDocs[Key(sessionID, documentID, formLabel)] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.GroupTexts[Key(sessionID, documentID, formLabel)] = text
	return nil
}

func (m *MemoryStore) SaveGroupFields(ctx context.Context, sessionID, documentID, formLabel string, sets []*document.FieldSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	cloned := make([]*document.FieldSet, len(sets))
	for i, s := range sets {
		cloned[i] = s.Clone()
	}
	m.GroupFields[Key(sessionID, documentID, formLabel)] = cloned
	return nil
}

func (m *MemoryStore) RecordGroupCatalog(ctx context.Context, rec *CatalogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CatalogRecs = append(m.CatalogRecs, *rec)
	return nil
}

func (m *MemoryStore) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.JobUpdates = append(m.JobUpdates, *update)
	return nil
}

// Calls counts Save* invocations
func (m *MemoryStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
