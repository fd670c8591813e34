package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

func sampleFields() *document.FieldSet {
	fs := document.NewFieldSet()
	fs.Set("Invoice No", "INV-001")
	fs.Set("Date", "2024-01-15")
	return fs
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	fsStore, err := NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	steps := []error{
		fsStore.SaveRawDocument(ctx, "s1", "d1", "upload.PDF", []byte("%PDF-raw")),
		fsStore.SavePageDocument(ctx, "s1", "d1", "page_01", []byte("%PDF-1")),
		fsStore.SavePageText(ctx, "s1", "d1", "page_01", "Commercial Invoice"),
		fsStore.SavePageFields(ctx, "s1", "d1", "page_01", sampleFields()),
		fsStore.SaveGroupDocument(ctx, "s1", "d1", "invoice", []byte("%PDF-g")),
		fsStore.SaveGroupText(ctx, "s1", "d1", "invoice", "a\n\nb"),
		fsStore.SaveGroupFields(ctx, "s1", "d1", "invoice", []*document.FieldSet{sampleFields(), document.NewFieldSet()}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
	}

	dir := filepath.Join(root, "s1", "d1")
	for _, name := range []string{
		"original.pdf",
		"page_01.pdf",
		"page_01.txt",
		"page_01.fields.json",
		filepath.Join("invoice", "document.pdf"),
		filepath.Join("invoice", "text.txt"),
		filepath.Join("invoice", "fields.json"),
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	b, err := os.ReadFile(filepath.Join(dir, "page_01.fields.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got document.FieldSet
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("page fields not JSON: %v", err)
	}
	if v, _ := got.Get("Invoice No"); v != "INV-001" {
		t.Errorf("Invoice No = %q", v)
	}

	b, err = os.ReadFile(filepath.Join(dir, "invoice", "fields.json"))
	if err != nil {
		t.Fatal(err)
	}
	var bundle []json.RawMessage
	if err := json.Unmarshal(b, &bundle); err != nil {
		t.Fatalf("group fields not a JSON array: %v", err)
	}
	if len(bundle) != 2 {
		t.Errorf("group fields len = %d, want 2", len(bundle))
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreRejectsEscapingSegments(t *testing.T) {
	fsStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := fsStore.SavePageText(ctx, "..", "d1", "page_01", "x"); err == nil {
		t.Errorf("expected error for .. session")
	}
	if err := fsStore.SaveGroupText(ctx, "s1", "d1", "a/b", "x"); err == nil {
		t.Errorf("expected error for label with separator")
	}
}

type flakyStore struct {
	*MemoryStore
	failures int
	attempts int
}

func (f *flakyStore) SavePageText(ctx context.Context, sessionID, documentID, pageLabel, text string) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("connection reset")
	}
	return f.MemoryStore.SavePageText(ctx, sessionID, documentID, pageLabel, text)
}

func TestRetryingStoreRecovers(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	rs := NewRetryingStore(inner, "flaky", RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, nil)

	if err := rs.SavePageText(context.Background(), "s", "d", "page_01", "hello"); err != nil {
		t.Fatalf("SavePageText() error = %v", err)
	}
	if inner.attempts != 3 {
		t.Errorf("attempts = %d, want 3", inner.attempts)
	}
	if inner.PageTexts[Key("s", "d", "page_01")] != "hello" {
		t.Errorf("text not stored")
	}
}

func TestRetryingStoreGivesUp(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10}
	rs := NewRetryingStore(inner, "flaky", RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}, nil)

	err := rs.SavePageText(context.Background(), "s", "d", "page_01", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.attempts != 2 {
		t.Errorf("attempts = %d, want 2", inner.attempts)
	}
}

func TestRetryingStoreStopsOnCancel(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10}
	rs := NewRetryingStore(inner, "flaky", RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := rs.SavePageText(ctx, "s", "d", "page_01", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 500 * time.Millisecond, MaxBackoff: 3 * time.Second}
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) SaveGroupText(ctx context.Context, sessionID, documentID, formLabel, text string) error {
	return errors.New("disk full")
}

func TestStorageManagerFansOutPastFailures(t *testing.T) {
	good := NewMemoryStore()
	bad := failingStore{NewMemoryStore()}
	sm := NewStorageManager(Backend{Name: "bad", Store: bad}, Backend{Name: "good", Store: good})

	err := sm.SaveGroupText(context.Background(), "s", "d", "invoice", "text")
	if err == nil || !strings.Contains(err.Error(), "bad: disk full") {
		t.Errorf("error = %v, want bad backend failure", err)
	}
	if good.GroupTexts[Key("s", "d", "invoice")] != "text" {
		t.Errorf("good backend did not receive the call")
	}

	rec := &CatalogRecord{SessionID: "s", DocumentID: "d", GroupLabel: "invoice", MatchedName: "Invoice", Score: 1}
	if err := sm.RecordGroupCatalog(context.Background(), rec); err != nil {
		t.Fatalf("RecordGroupCatalog() error = %v", err)
	}
	if len(good.CatalogRecs) != 1 || len(bad.CatalogRecs) != 1 {
		t.Errorf("catalog records = %d/%d, want 1/1", len(good.CatalogRecs), len(bad.CatalogRecs))
	}
}

type fakeEmbedder struct {
	dims  int
	texts []string
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	v := make([]float32, f.dims)
	v[0] = 1
	return v, nil
}

type fakePoints struct {
	qdrant.PointsClient
	upserts  []*qdrant.UpsertPoints
	searches []*qdrant.SearchPoints
}

func (f *fakePoints) Upsert(ctx context.Context, in *qdrant.UpsertPoints, opts ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(ctx context.Context, in *qdrant.SearchPoints, opts ...grpc.CallOption) (*qdrant.SearchResponse, error) {
	f.searches = append(f.searches, in)
	return &qdrant.SearchResponse{Result: []*qdrant.ScoredPoint{{
		Id:    &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: "p1"}},
		Score: 0.91,
		Payload: map[string]*qdrant.Value{
			"session_id":  stringValue("s"),
			"document_id": stringValue("d"),
			"form_label":  stringValue("invoice"),
		},
	}}}, nil
}

func TestGroupIndexUpsertAndSearch(t *testing.T) {
	points := &fakePoints{}
	emb := &fakeEmbedder{dims: 4}
	gi, err := newGroupIndex(points, nil, "tf_group_text", emb, 4)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := gi.SaveGroupText(ctx, "s", "d", "invoice", "Commercial Invoice No: 1"); err != nil {
		t.Fatalf("SaveGroupText() error = %v", err)
	}
	if err := gi.SaveGroupText(ctx, "s", "d", "unclassified", document.NoTextFound); err != nil {
		t.Fatal(err)
	}
	if len(points.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1 (sentinel text is skipped)", len(points.upserts))
	}
	p := points.upserts[0].Points[0]
	if p.Id.GetUuid() != GroupPointID("s", "d", "invoice") {
		t.Errorf("point id = %s", p.Id.GetUuid())
	}
	if p.Payload["form_label"].GetStringValue() != "invoice" {
		t.Errorf("payload = %v", p.Payload)
	}

	matches, err := gi.SearchSimilarGroups(ctx, "invoice", 0)
	if err != nil {
		t.Fatalf("SearchSimilarGroups() error = %v", err)
	}
	if points.searches[0].Limit != 10 {
		t.Errorf("default limit = %d", points.searches[0].Limit)
	}
	if len(matches) != 1 || matches[0].FormLabel != "invoice" || matches[0].Score != 0.91 {
		t.Errorf("matches = %+v", matches)
	}
}

func TestGroupIndexRejectsWrongDimensions(t *testing.T) {
	gi, err := newGroupIndex(&fakePoints{}, nil, "c", &fakeEmbedder{dims: 3}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := gi.SaveGroupText(context.Background(), "s", "d", "x", "some text"); err == nil {
		t.Errorf("expected dimension error")
	}
}

func TestGroupPointIDStable(t *testing.T) {
	a := GroupPointID("s", "d", "invoice")
	if a != GroupPointID("s", "d", "invoice") {
		t.Errorf("point id not stable")
	}
	if a == GroupPointID("s", "d", "packing_list") {
		t.Errorf("point ids collide")
	}
}

func TestSanitizers(t *testing.T) {
	if got := sanitizeScore(0.9632000000000001); got != 0.9632 {
		t.Errorf("sanitizeScore = %v", got)
	}
	if got := sanitizeScore(1.7); got != 1 {
		t.Errorf("sanitizeScore clamp = %v", got)
	}
	if got := sanitizeText("a\x00b"); got != "ab" {
		t.Errorf("sanitizeText = %q", got)
	}
	if got := string(sanitizeJSONForPostgres([]byte(`{"a":"x\u0000y\u001b"}`))); got != `{"a":"xy "}` {
		t.Errorf("sanitizeJSONForPostgres = %s", got)
	}
}
