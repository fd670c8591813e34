package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/recognition"
	"github.com/SandySenthilHub/TF-Phase1/internal/storage"
)

// fakeSplitter treats form feeds after the header as page breaks
type fakeSplitter struct {
	merges atomic.Int32
}

func (f *fakeSplitter) Split(data []byte) ([][]byte, error) {
	if bytes.Contains(data, []byte("corrupt")) {
		return nil, errors.New("malformed xref")
	}
	parts := bytes.Split(data, []byte("\f"))
	return parts[1:], nil
}

func (f *fakeSplitter) Merge(docs [][]byte) ([]byte, error) {
	f.merges.Add(1)
	return bytes.Join(docs, []byte("|")), nil
}

func fakePDF(pages int) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.7 fake")
	for i := 1; i <= pages; i++ {
		fmt.Fprintf(&b, "\fpage-%d", i)
	}
	return []byte(b.String())
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	pages []string
	calls int
}

func (f *fakeAnalyzer) AnalyzeDocument(ctx context.Context, pdf []byte) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pages, nil
}

func newTestProcessor(t *testing.T, store storage.Store, analyzer recognition.LayoutAnalyzer, concurrency int) (*DocumentProcessor, *fakeSplitter) {
	t.Helper()
	sp := &fakeSplitter{}
	p, err := NewDocumentProcessor(&ProcessorConfig{
		Splitter:        sp,
		LayoutAnalyzer:  analyzer,
		Store:           store,
		PageConcurrency: concurrency,
		MaxFileSize:     1 << 20,
		Logger:          logging.Nop(),
	})
	if err != nil {
		t.Fatalf("NewDocumentProcessor() error = %v", err)
	}
	p.cascade = recognition.NewCascade(recognition.CascadeConfig{Logger: logging.Nop()})
	p.downloadBackoff = time.Millisecond
	return p, sp
}

func TestProcessDocumentGroupsByLabel(t *testing.T) {
	store := storage.NewMemoryStore()
	analyzer := &fakeAnalyzer{pages: []string{
		"Commercial Invoice\nInvoice No: INV-2024-001\nDate: 2024-01-15",
		"Packing List\nCartons: 12\nGross Weight: 240 kg",
		"Invoice continuation\nTotal Amount: USD 12,000",
	}}
	p, sp := newTestProcessor(t, store, analyzer, 1)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		JobID: "job-1", SessionID: "s1", DocumentID: "d1", Filename: "lc.pdf", FileBuffer: fakePDF(3),
	})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}

	if res.PageCount != 3 || res.EngineCounts[document.SourceDocumentAI] != 3 {
		t.Errorf("result = %+v", res)
	}
	if analyzer.calls != 1 {
		t.Errorf("document-ai calls = %d, want 1", analyzer.calls)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("groups = %+v, want 2", res.Groups)
	}
	inv, pl := res.Groups[0], res.Groups[1]
	if inv.Label != "invoice" || len(inv.Pages) != 2 || inv.Pages[0] != 1 || inv.Pages[1] != 3 {
		t.Errorf("invoice group = %+v", inv)
	}
	if pl.Label != "packing_list" || len(pl.Pages) != 1 || pl.Pages[0] != 2 {
		t.Errorf("packing list group = %+v", pl)
	}
	if inv.MatchedName != "Invoice" || pl.MatchedName != "Packing List" {
		t.Errorf("catalog matches = %q, %q", inv.MatchedName, pl.MatchedName)
	}

	wantText := analyzer.pages[0] + "\n\n" + analyzer.pages[2]
	if got := store.GroupTexts[storage.Key("s1", "d1", "invoice")]; got != wantText {
		t.Errorf("invoice group text = %q, want %q", got, wantText)
	}
	if got := string(store.GroupDocs[storage.Key("s1", "d1", "invoice")]); got != "page-1|page-3" {
		t.Errorf("invoice group document = %q", got)
	}
	if sp.merges.Load() != 2 {
		t.Errorf("merges = %d, want 2", sp.merges.Load())
	}
	if n := len(store.GroupFields[storage.Key("s1", "d1", "invoice")]); n != 2 {
		t.Errorf("invoice field bundle len = %d, want 2", n)
	}

	fs := store.PageFields[storage.Key("s1", "d1", "page_01")]
	if v, _ := fs.Get("Invoice No"); v != "INV-2024-001" {
		t.Errorf("page_01 Invoice No = %q", v)
	}
	if keys := fs.Keys(); len(keys) < 2 || keys[0] != "Invoice No" || keys[1] != "Date" {
		t.Errorf("page_01 keys = %v", keys)
	}
	if _, ok := store.Raw[storage.Key("s1", "d1", "lc.pdf")]; !ok {
		t.Errorf("raw document not saved")
	}
	if len(store.CatalogRecs) != 2 {
		t.Errorf("catalog records = %d, want 2", len(store.CatalogRecs))
	}
}

// fakeRasterizer renders a blank image per page unit and fails on units
// listed in fail
type fakeRasterizer struct {
	mu       sync.Mutex
	rendered []string
	fail     map[string]bool
	inFlight atomic.Int32
	maxLive  atomic.Int32
}

func (f *fakeRasterizer) RenderPage(ctx context.Context, pdf []byte, page int) (image.Image, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if n > f.maxLive.Load() {
		f.maxLive.Store(n)
	}

	f.mu.Lock()
	f.rendered = append(f.rendered, fmt.Sprintf("%s#%d", pdf, page))
	f.mu.Unlock()
	if f.fail[string(pdf)] {
		return nil, errors.New("pdftoppm: Syntax Error")
	}
	return image.NewGray(image.Rect(0, 0, 8, 8)), nil
}

type fixedVision struct{ text string }

func (v fixedVision) Refine(ctx context.Context, png []byte) (string, error) { return v.text, nil }

func TestProcessDocumentRendersEachPageOnDemand(t *testing.T) {
	store := storage.NewMemoryStore()
	analyzer := &fakeAnalyzer{pages: []string{"", "BILL OF LADING No 7781", ""}}
	p, _ := newTestProcessor(t, store, analyzer, 1)
	raster := &fakeRasterizer{fail: map[string]bool{"page-2": true}}
	p.rasterizer = raster
	p.cascade = recognition.NewCascade(recognition.CascadeConfig{
		Vision: fixedVision{text: "COMMERCIAL INVOICE No 42"},
		Logger: logging.Nop(),
	})

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		SessionID: "s1", DocumentID: "d1", FileBuffer: fakePDF(3),
	})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}

	want := []string{"page-1#1", "page-2#1", "page-3#1"}
	if strings.Join(raster.rendered, ",") != strings.Join(want, ",") {
		t.Errorf("rendered = %v, want %v", raster.rendered, want)
	}
	if raster.maxLive.Load() != 1 {
		t.Errorf("max concurrent renders = %d, want 1", raster.maxLive.Load())
	}
	if res.EngineCounts[document.SourceVisionLLM] != 2 || res.EngineCounts[document.SourceDocumentAI] != 1 {
		t.Errorf("engine counts = %v", res.EngineCounts)
	}
	if res.Pages[1].Source != document.SourceDocumentAI {
		t.Errorf("page 2 source = %s, want document_ai after render failure", res.Pages[1].Source)
	}
}

func TestProcessDocumentUnreadablePage(t *testing.T) {
	store := storage.NewMemoryStore()
	analyzer := &fakeAnalyzer{pages: []string{"Commercial Invoice No: 77", "   "}}
	p, _ := newTestProcessor(t, store, analyzer, 1)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		SessionID: "s1", DocumentID: "d1", FileBuffer: fakePDF(2),
	})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if res.SentinelPages != 1 || res.EngineCounts[document.SourceNone] != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := store.PageTexts[storage.Key("s1", "d1", "page_02")]; got != document.NoTextFound {
		t.Errorf("page_02 text = %q", got)
	}
	if fs := store.PageFields[storage.Key("s1", "d1", "page_02")]; fs.Len() != 0 {
		t.Errorf("page_02 fields = %v", fs.Keys())
	}
	page2 := res.Pages[1]
	if page2.Label != document.Unclassified || page2.Origin != document.OriginFallback {
		t.Errorf("page_02 summary = %+v", page2)
	}
}

func TestProcessDocumentRejectsNonPDF(t *testing.T) {
	store := storage.NewMemoryStore()
	p, _ := newTestProcessor(t, store, nil, 1)

	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{SessionID: "s", FileBuffer: png})
	if !tferrors.IsFatal(err) || tferrors.CodeOf(err) != tferrors.ErrorUnsupportedFormat {
		t.Fatalf("error = %v, want fatal UNSUPPORTED_FORMAT", err)
	}
	if store.Calls() != 0 {
		t.Errorf("store calls = %d, want 0", store.Calls())
	}
}

func TestProcessDocumentSplitFailureIsFatal(t *testing.T) {
	p, _ := newTestProcessor(t, storage.NewMemoryStore(), nil, 1)
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		SessionID: "s", FileBuffer: []byte("%PDF-1.4 corrupt"),
	})
	if tferrors.CodeOf(err) != tferrors.ErrorUnsupportedFormat {
		t.Fatalf("error = %v, want UNSUPPORTED_FORMAT", err)
	}
}

func TestProcessDocumentInvalidInput(t *testing.T) {
	p, _ := newTestProcessor(t, storage.NewMemoryStore(), nil, 1)
	tests := []struct {
		name string
		req  *ProcessRequest
	}{
		{"no session", &ProcessRequest{FileBuffer: fakePDF(1)}},
		{"no source", &ProcessRequest{SessionID: "s"}},
		{"too large", &ProcessRequest{SessionID: "s", FileBuffer: append([]byte("%PDF"), make([]byte, 2<<20)...)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ProcessDocument(context.Background(), tt.req)
			if tferrors.CodeOf(err) != tferrors.ErrorInvalidInput {
				t.Errorf("error = %v, want INVALID_INPUT", err)
			}
		})
	}
}

type brokenTextStore struct {
	*storage.MemoryStore
}

func (brokenTextStore) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	return errors.New("connection refused")
}

func TestProcessDocumentContinuesPastStoreFailures(t *testing.T) {
	store := brokenTextStore{storage.NewMemoryStore()}
	analyzer := &fakeAnalyzer{pages: []string{"Packing List carton 1", "Packing List carton 2"}}
	p, _ := newTestProcessor(t, store, analyzer, 1)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{SessionID: "s", DocumentID: "d", FileBuffer: fakePDF(2)})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if res.PersistenceFailures != 2 {
		t.Errorf("persistence failures = %d, want 2", res.PersistenceFailures)
	}
	if _, ok := store.GroupTexts[storage.Key("s", "d", "packing_list")]; !ok {
		t.Errorf("group text not saved after page failures")
	}
}

func TestProcessDocumentConcurrentPagesKeepOrder(t *testing.T) {
	labels := []string{"Commercial Invoice A1", "Packing List B1", "Commercial Invoice A2", "Bill of Lading C1",
		"Packing List B2", "Commercial Invoice A3", "Bill of Lading C2", "Packing List B3"}
	store := storage.NewMemoryStore()
	analyzer := &fakeAnalyzer{pages: labels}
	p, _ := newTestProcessor(t, store, analyzer, 4)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{SessionID: "s", DocumentID: "d", FileBuffer: fakePDF(len(labels))})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if analyzer.calls != 1 {
		t.Errorf("document-ai calls = %d, want 1", analyzer.calls)
	}

	want := map[string][]int{"invoice": {1, 3, 6}, "packing_list": {2, 5, 8}, "bill_of_lading": {4, 7}}
	order := []string{"invoice", "packing_list", "bill_of_lading"}
	for i, g := range res.Groups {
		if g.Label != order[i] {
			t.Errorf("group %d = %s, want %s", i, g.Label, order[i])
		}
		if fmt.Sprint(g.Pages) != fmt.Sprint(want[g.Label]) {
			t.Errorf("%s pages = %v, want %v", g.Label, g.Pages, want[g.Label])
		}
	}
	wantText := "Commercial Invoice A1\n\nCommercial Invoice A2\n\nCommercial Invoice A3"
	if got := store.GroupTexts[storage.Key("s", "d", "invoice")]; got != wantText {
		t.Errorf("invoice text = %q", got)
	}
}

func TestProcessDocumentFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.pdf")
	if err := os.WriteFile(path, fakePDF(1), 0o644); err != nil {
		t.Fatal(err)
	}
	p, _ := newTestProcessor(t, storage.NewMemoryStore(), &fakeAnalyzer{pages: []string{"Certificate of Origin No: 5"}}, 1)

	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{SessionID: "s", FilePath: path})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if res.DocumentID == "" {
		t.Errorf("document ID not generated")
	}
	if len(res.Groups) != 1 || res.Groups[0].Label != "certificate_of_origin" {
		t.Errorf("groups = %+v", res.Groups)
	}
}

func TestProcessDocumentDownloadRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(fakePDF(1))
	}))
	defer srv.Close()

	p, _ := newTestProcessor(t, storage.NewMemoryStore(), &fakeAnalyzer{pages: []string{"Bill of Exchange for USD 500"}}, 1)
	res, err := p.ProcessDocument(context.Background(), &ProcessRequest{SessionID: "s", FileURL: srv.URL})
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
	if res.Groups[0].Label != "bill_of_exchange" {
		t.Errorf("label = %s", res.Groups[0].Label)
	}
}

func TestProcessDocumentDownloadNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p, _ := newTestProcessor(t, storage.NewMemoryStore(), nil, 1)
	if _, err := p.ProcessDocument(context.Background(), &ProcessRequest{SessionID: "s", FileURL: srv.URL}); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestProcessDocumentCancelled(t *testing.T) {
	p, _ := newTestProcessor(t, storage.NewMemoryStore(), &fakeAnalyzer{pages: []string{"Invoice 1234567890"}}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessDocument(ctx, &ProcessRequest{SessionID: "s", FileBuffer: fakePDF(1)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestUpdateJobStatusWithoutRecorder(t *testing.T) {
	p, _ := newTestProcessor(t, storage.NewMemoryStore(), nil, 1)
	if err := p.UpdateJobStatus(context.Background(), &storage.JobUpdate{JobID: "j", Status: storage.JobStatusCompleted}); err != nil {
		t.Errorf("UpdateJobStatus() error = %v", err)
	}

	rec := storage.NewMemoryStore()
	p.status = rec
	if err := p.UpdateJobStatus(context.Background(), &storage.JobUpdate{JobID: "j", Status: storage.JobStatusFailed}); err != nil {
		t.Fatal(err)
	}
	if len(rec.JobUpdates) != 1 || rec.JobUpdates[0].UpdatedAt.IsZero() {
		t.Errorf("job updates = %+v", rec.JobUpdates)
	}
}

func TestDetectMimeTypeFromMagicBytes(t *testing.T) {
	tests := map[string][]byte{
		"application/pdf": []byte("%PDF-1.7"),
		"image/jpeg":      {0xFF, 0xD8, 0xFF, 0xE0},
		"application/zip": {0x50, 0x4B, 0x03, 0x04, 0x00},
		"":                []byte("hello world"),
	}
	for want, data := range tests {
		if got := detectMimeTypeFromMagicBytes(data); got != want {
			t.Errorf("detect(%q) = %q, want %q", data, got, want)
		}
	}
}
