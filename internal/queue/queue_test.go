package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	tferrors "github.com/SandySenthilHub/TF-Phase1/internal/errors"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/processor"
	"github.com/SandySenthilHub/TF-Phase1/internal/storage"
)

type fakeProcessor struct {
	mu      sync.Mutex
	err     error
	reqs    []*processor.ProcessRequest
	updates []storage.JobUpdate
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &processor.ProcessResult{
		RunID:      "run-1",
		SessionID:  req.SessionID,
		DocumentID: "doc-1",
		PageCount:  3,
		Groups:     []processor.GroupSummary{{Label: "invoice", Pages: []int{1, 3}}, {Label: "packing_list", Pages: []int{2}}},
	}, nil
}

func (f *fakeProcessor) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, *update)
	return nil
}

func (f *fakeProcessor) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, u := range f.updates {
		out = append(out, u.Status)
	}
	return out
}

type fakeQueue struct {
	pushed     []RedisJobData
	processing []string
	completed  map[string]interface{}
	failed     map[string]interface{}
	events     []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{completed: map[string]interface{}{}, failed: map[string]interface{}{}}
}

func (q *fakeQueue) Next(ctx context.Context, wait time.Duration) (*RedisJobData, error) {
	if len(q.pushed) == 0 {
		return nil, errNoJob
	}
	job := q.pushed[0]
	q.pushed = q.pushed[1:]
	return &job, nil
}

func (q *fakeQueue) Push(ctx context.Context, job *RedisJobData) error {
	q.pushed = append(q.pushed, *job)
	return nil
}

func (q *fakeQueue) MarkProcessing(ctx context.Context, jobID string) error {
	q.processing = append(q.processing, jobID)
	return nil
}

func (q *fakeQueue) MarkCompleted(ctx context.Context, jobID string, result interface{}) error {
	q.completed[jobID] = result
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, jobID string, info interface{}) error {
	q.failed[jobID] = info
	return nil
}

func (q *fakeQueue) Publish(ctx context.Context, status, jobID string) error {
	q.events = append(q.events, "job:"+status)
	return nil
}

func (q *fakeQueue) Stats(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{"waiting": int64(len(q.pushed))}, nil
}

func newTestConsumer(t *testing.T, proc *fakeProcessor, q *fakeQueue) *RedisConsumer {
	t.Helper()
	c, err := newRedisConsumer(&RedisConsumerConfig{Processor: proc, Logger: logging.Nop()}, q)
	if err != nil {
		t.Fatalf("newRedisConsumer() error = %v", err)
	}
	return c
}

func TestJobPayloadFileBufferFormats(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"base64", `{"jobId":"j","fileBuffer":"JVBERi0="}`, "%PDF-", false},
		{"node buffer", `{"jobId":"j","fileBuffer":{"type":"Buffer","data":[37,80,68,70]}}`, "%PDF", false},
		{"absent", `{"jobId":"j","fileUrl":"http://x/a.pdf"}`, "", false},
		{"bad base64", `{"fileBuffer":"%%%"}`, "", true},
		{"wrong object", `{"fileBuffer":{"type":"Blob","data":[1]}}`, "", true},
		{"byte overflow", `{"fileBuffer":{"type":"Buffer","data":[256]}}`, "", true},
		{"number", `{"fileBuffer":12}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p JobPayload
			err := json.Unmarshal([]byte(tt.body), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(p.FileBuffer) != tt.want {
				t.Errorf("FileBuffer = %q, want %q", p.FileBuffer, tt.want)
			}
		})
	}
}

func TestJobPayloadSurvivesRequeue(t *testing.T) {
	job := RedisJobData{ID: "j1", Payload: JobPayload{JobID: "j1", Filename: "a.pdf", FileBuffer: []byte("%PDF-1.7")}, MaxRetries: 2}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	var back RedisJobData
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if string(back.Payload.FileBuffer) != "%PDF-1.7" || back.Payload.Filename != "a.pdf" || back.MaxRetries != 2 {
		t.Errorf("round trip = %+v", back)
	}
}

func TestJobPayloadRequestDefaultsSession(t *testing.T) {
	p := JobPayload{JobID: "job-9", Filename: "lc.pdf"}
	if got := p.Request().SessionID; got != "job-9" {
		t.Errorf("SessionID = %q, want job-9", got)
	}
	p.SessionID = "s-1"
	if got := p.Request().SessionID; got != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got)
	}
}

func TestRedisConsumerCompletesJob(t *testing.T) {
	proc := &fakeProcessor{}
	q := newFakeQueue()
	c := newTestConsumer(t, proc, q)

	q.Push(context.Background(), &RedisJobData{ID: "j1", Payload: JobPayload{JobID: "j1", FileBuffer: []byte("%PDF")}})
	if err := c.processNextJob(context.Background()); err != nil {
		t.Fatalf("processNextJob() error = %v", err)
	}

	if _, ok := q.completed["j1"]; !ok {
		t.Errorf("job not marked completed")
	}
	if got := proc.statuses(); len(got) != 2 || got[0] != storage.JobStatusProcessing || got[1] != storage.JobStatusCompleted {
		t.Errorf("statuses = %v", got)
	}
	if last := proc.updates[1]; last.PageCount != 3 || last.GroupCount != 2 {
		t.Errorf("completed update = %+v", last)
	}
	if len(q.events) != 2 || q.events[1] != "job:completed" {
		t.Errorf("events = %v", q.events)
	}
}

func TestRedisConsumerRetriesTransientFailures(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("document-ai unreachable")}
	q := newFakeQueue()
	c := newTestConsumer(t, proc, q)

	q.Push(context.Background(), &RedisJobData{ID: "j2", Payload: JobPayload{JobID: "j2"}, MaxRetries: 2})

	c.processNextJob(context.Background())
	if len(q.pushed) != 1 || q.pushed[0].Attempts != 1 {
		t.Fatalf("after first failure pushed = %+v", q.pushed)
	}
	if len(q.failed) != 0 {
		t.Errorf("job failed before retries were spent")
	}

	c.processNextJob(context.Background())
	if len(q.pushed) != 0 {
		t.Errorf("job re-queued after last attempt")
	}
	info, ok := q.failed["j2"].(map[string]interface{})
	if !ok || info["attempts"] != 2 {
		t.Errorf("failed info = %v", q.failed["j2"])
	}
	if got := proc.statuses(); got[len(got)-1] != storage.JobStatusFailed {
		t.Errorf("statuses = %v", got)
	}
}

func TestRedisConsumerFatalErrorsAreNotRetried(t *testing.T) {
	proc := &fakeProcessor{err: tferrors.NewUnsupportedFormatError("j3", "image/png", nil)}
	q := newFakeQueue()
	c := newTestConsumer(t, proc, q)

	q.Push(context.Background(), &RedisJobData{ID: "j3", Payload: JobPayload{JobID: "j3"}, MaxRetries: 5})
	c.processNextJob(context.Background())

	if len(q.pushed) != 0 {
		t.Errorf("fatal job re-queued")
	}
	info := q.failed["j3"].(map[string]interface{})
	if info["code"] != string(tferrors.ErrorUnsupportedFormat) {
		t.Errorf("failed info = %v", info)
	}
	last := proc.updates[len(proc.updates)-1]
	if last.ErrorCode != string(tferrors.ErrorUnsupportedFormat) {
		t.Errorf("job update = %+v", last)
	}
}

func TestRedisConsumerNoJob(t *testing.T) {
	c := newTestConsumer(t, &fakeProcessor{}, newFakeQueue())
	if err := c.processNextJob(context.Background()); !errors.Is(err, errNoJob) {
		t.Errorf("processNextJob() error = %v, want errNoJob", err)
	}
}

func TestEnqueueListPublishesQueued(t *testing.T) {
	q := newFakeQueue()
	if err := enqueueList(context.Background(), q, &JobPayload{JobID: "j4"}, 3); err != nil {
		t.Fatal(err)
	}
	if len(q.pushed) != 1 || q.pushed[0].Type != JobTypeProcessDocument || q.pushed[0].MaxRetries != 3 {
		t.Errorf("pushed = %+v", q.pushed)
	}
	if len(q.events) != 1 || q.events[0] != "job:queued" {
		t.Errorf("events = %v", q.events)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 60 * time.Second},
		{30, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.n, nil, nil); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func newTestAsynqConsumer(proc *fakeProcessor) *Consumer {
	return &Consumer{
		runner: newJobRunner(proc, 0, logging.Nop()),
		config: &ConsumerConfig{QueueName: DefaultQueueName},
		logger: logging.Nop(),
	}
}

func TestAsynqHandlerSkipsRetryOnFatalErrors(t *testing.T) {
	proc := &fakeProcessor{err: tferrors.NewInvalidInputError("j5", "session ID is required")}
	c := newTestAsynqConsumer(proc)

	task := asynq.NewTask(TaskTypeProcessDocument, []byte(`{"jobId":"j5"}`))
	err := c.handleProcessDocument(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("error = %v, want SkipRetry", err)
	}
	if tferrors.CodeOf(err) != tferrors.ErrorInvalidInput {
		t.Errorf("code = %q", tferrors.CodeOf(err))
	}
}

func TestAsynqHandlerReturnsTransientErrors(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("timeout talking to vision model")}
	c := newTestAsynqConsumer(proc)

	err := c.handleProcessDocument(context.Background(), asynq.NewTask(TaskTypeProcessDocument, []byte(`{"jobId":"j6"}`)))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Errorf("error = %v, want retryable error", err)
	}
}

func TestAsynqHandlerMalformedPayload(t *testing.T) {
	c := newTestAsynqConsumer(&fakeProcessor{})
	err := c.handleProcessDocument(context.Background(), asynq.NewTask(TaskTypeProcessDocument, []byte(`{not json`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("error = %v, want SkipRetry", err)
	}
}

func TestAsynqHandlerCompletes(t *testing.T) {
	proc := &fakeProcessor{}
	c := newTestAsynqConsumer(proc)
	body, _ := json.Marshal(&JobPayload{JobID: "j7", SessionID: "s", FileBuffer: []byte("%PDF")})

	if err := c.handleProcessDocument(context.Background(), asynq.NewTask(TaskTypeProcessDocument, body)); err != nil {
		t.Fatalf("handleProcessDocument() error = %v", err)
	}
	if string(proc.reqs[0].FileBuffer) != "%PDF" || proc.reqs[0].SessionID != "s" {
		t.Errorf("request = %+v", proc.reqs[0])
	}
	if got := proc.statuses(); got[len(got)-1] != storage.JobStatusCompleted {
		t.Errorf("statuses = %v", got)
	}
}
