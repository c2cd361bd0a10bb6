package documents

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	putErr  error
	puts    int
	objects map[string][]byte
	removed []string
}

func (s *fakeStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return "", s.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	key := "1700000000000-" + strings.ReplaceAll(name, " ", "-")
	s.objects[key] = body
	return key, nil
}

func (s *fakeStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, key)
	delete(s.objects, key)
	return nil
}

type recordingRepo struct {
	*MemoryRepo
	mu        sync.Mutex
	createErr error
	creates   int
	saves     int
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{MemoryRepo: NewMemoryRepo()}
}

func (r *recordingRepo) Create(ctx context.Context, doc Document) (Document, error) {
	r.mu.Lock()
	r.creates++
	err := r.createErr
	r.mu.Unlock()
	if err != nil {
		return Document{}, err
	}
	return r.MemoryRepo.Create(ctx, doc)
}

func (r *recordingRepo) Save(ctx context.Context, doc Document) (Document, error) {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return r.MemoryRepo.Save(ctx, doc)
}

type stubLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	block    chan struct{}
	started  chan struct{}
}

func (l *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.mu.Unlock()
	if l.started != nil {
		l.started <- struct{}{}
	}
	if l.block != nil {
		<-l.block
	}
	return l.response, l.err
}

func (l *stubLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

type fakeLocker struct {
	held     bool
	err      error
	unlocked int
	keys     []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	return func() { l.unlocked++ }, true, nil
}

type fakeQueue struct {
	err error
	ids []string
}

func (q *fakeQueue) EnqueueAnalysis(ctx context.Context, id string) error {
	q.ids = append(q.ids, id)
	return q.err
}

const fencedInvoice = "```json\n{\"summary\":\"Invoice for $50\",\"type\":\"invoice\",\"attributes\":{\"amount\":\"50\"}}\n```"

func newTestService(store *fakeStore, repo *recordingRepo, client *stubLLM) *Service {
	svc := NewService(store, repo, client)
	svc.Extract = func(ctx context.Context, mimeType string, data []byte) (string, error) {
		return string(data), nil
	}
	svc.NewID = func() string { return "doc-1" }
	svc.Now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }
	return svc
}

func seed(t *testing.T, repo *recordingRepo, text string) Document {
	t.Helper()
	doc := Document{ID: "doc-1", FileName: "a.pdf", StorageKey: "1-a.pdf", MimeType: "application/pdf", ExtractedText: text, Status: StatusPending, CreatedAt: time.Now()}
	if _, err := repo.MemoryRepo.Create(context.Background(), doc); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return doc
}

func TestIngestPersistsPendingDocument(t *testing.T) {
	store, repo, queue := &fakeStore{}, newRecordingRepo(), &fakeQueue{}
	svc := newTestService(store, repo, &stubLLM{})
	svc.Queue = queue

	doc, err := svc.Ingest(context.Background(), IngestInput{FileName: "My Invoice.pdf", MimeType: "application/pdf", Data: []byte("Invoice #123")})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.ID != "doc-1" || doc.Status != StatusPending || doc.AIMetadata != nil {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.StorageKey != "1700000000000-My-Invoice.pdf" || doc.FileName != "My Invoice.pdf" {
		t.Fatalf("unexpected naming key=%s filename=%s", doc.StorageKey, doc.FileName)
	}
	if doc.ExtractedText != "Invoice #123" {
		t.Fatalf("unexpected text %q", doc.ExtractedText)
	}
	if doc.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC creation time, got %s", doc.CreatedAt.Location())
	}
	if string(store.objects[doc.StorageKey]) != "Invoice #123" {
		t.Fatalf("expected raw bytes uploaded")
	}
	stored, err := repo.FindByID(context.Background(), doc.ID)
	if err != nil || stored.Status != StatusPending {
		t.Fatalf("expected stored pending document, got %+v, %v", stored, err)
	}
	if len(queue.ids) != 1 || queue.ids[0] != doc.ID {
		t.Fatalf("expected analysis enqueued, got %v", queue.ids)
	}
}

func TestIngestExtractionFailureStoresNothing(t *testing.T) {
	store, repo := &fakeStore{}, newRecordingRepo()
	svc := newTestService(store, repo, &stubLLM{})
	svc.Extract = func(ctx context.Context, mimeType string, data []byte) (string, error) {
		return "", errors.New("malformed pdf")
	}

	_, err := svc.Ingest(context.Background(), IngestInput{FileName: "bad.pdf", MimeType: "application/pdf", Data: []byte("junk")})
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if store.puts != 0 {
		t.Fatalf("expected no upload, got %d", store.puts)
	}
	if repo.creates != 0 {
		t.Fatalf("expected no repository call, got %d", repo.creates)
	}
}

func TestIngestCancelledContextIsNotExtractionError(t *testing.T) {
	store, repo := &fakeStore{}, newRecordingRepo()
	svc := NewService(store, repo, &stubLLM{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ingest(ctx, IngestInput{FileName: "a.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) {
		t.Fatalf("cancellation reported as extraction failure: %v", err)
	}
	if store.puts != 0 || repo.creates != 0 {
		t.Fatalf("expected nothing stored, got puts=%d creates=%d", store.puts, repo.creates)
	}
}

func TestIngestStorageFailurePersistsNothing(t *testing.T) {
	store, repo := &fakeStore{putErr: errors.New("access denied")}, newRecordingRepo()
	svc := newTestService(store, repo, &stubLLM{})

	_, err := svc.Ingest(context.Background(), IngestInput{FileName: "a.pdf", MimeType: "application/pdf", Data: []byte("text")})
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected cause in message, got %v", err)
	}
	if repo.creates != 0 {
		t.Fatalf("expected no repository call, got %d", repo.creates)
	}
}

func TestIngestPersistFailureRemovesBlob(t *testing.T) {
	store, repo := &fakeStore{}, newRecordingRepo()
	repo.createErr = errors.New("connection reset")
	svc := newTestService(store, repo, &stubLLM{})

	if _, err := svc.Ingest(context.Background(), IngestInput{FileName: "a.pdf", MimeType: "application/pdf", Data: []byte("text")}); err == nil {
		t.Fatalf("expected persist error")
	}
	if len(store.removed) != 1 || len(store.objects) != 0 {
		t.Fatalf("expected orphan blob removed, removed=%v objects=%d", store.removed, len(store.objects))
	}
}

func TestIngestEnqueueFailureIsNotFatal(t *testing.T) {
	store, repo := &fakeStore{}, newRecordingRepo()
	svc := newTestService(store, repo, &stubLLM{})
	svc.Queue = &fakeQueue{err: errors.New("redis down")}

	if _, err := svc.Ingest(context.Background(), IngestInput{FileName: "a.pdf", MimeType: "application/pdf", Data: []byte("text")}); err != nil {
		t.Fatalf("expected ingest to succeed, got %v", err)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected document persisted")
	}
}

func TestIngestUnsupportedTypeYieldsEmptyText(t *testing.T) {
	store, repo := &fakeStore{}, newRecordingRepo()
	svc := NewService(store, repo, &stubLLM{})

	doc, err := svc.Ingest(context.Background(), IngestInput{FileName: "notes.txt", MimeType: "text/plain", Data: []byte("hello")})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.ExtractedText != "" || doc.Status != StatusPending {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestAnalyzeEmptyTextIsNoop(t *testing.T) {
	repo, client := newRecordingRepo(), &stubLLM{response: fencedInvoice}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, "")

	doc, err := svc.Analyze(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if doc.Status != StatusPending || doc.AIMetadata != nil {
		t.Fatalf("expected unchanged document, got %+v", doc)
	}
	if client.calls() != 0 {
		t.Fatalf("expected no LLM call, got %d", client.calls())
	}
	if repo.saves != 0 {
		t.Fatalf("expected no save, got %d", repo.saves)
	}
}

func TestAnalyzeWhitespaceTextCallsModel(t *testing.T) {
	repo, client := newRecordingRepo(), &stubLLM{response: fencedInvoice}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, " \n\t ")

	doc, err := svc.Analyze(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if doc.Status != StatusAnalyzed || client.calls() != 1 {
		t.Fatalf("expected one model call and analyzed status, got status=%s calls=%d", doc.Status, client.calls())
	}
}

func TestAnalyzeStripsFencesAndMarksAnalyzed(t *testing.T) {
	repo, client := newRecordingRepo(), &stubLLM{response: fencedInvoice}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, "Invoice #123\nTotal: $50")

	doc, err := svc.Analyze(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if doc.Status != StatusAnalyzed || doc.AIMetadata == nil {
		t.Fatalf("expected analyzed document, got %+v", doc)
	}
	if doc.AIMetadata.Summary != "Invoice for $50" || doc.AIMetadata.Type != "invoice" || doc.AIMetadata.Attributes["amount"] != "50" {
		t.Fatalf("unexpected metadata %+v", doc.AIMetadata)
	}
	stored, _ := repo.FindByID(context.Background(), "doc-1")
	if stored.Status != StatusAnalyzed || stored.AIMetadata.Type != "invoice" {
		t.Fatalf("expected persisted analysis, got %+v", stored)
	}
	if !strings.Contains(client.prompts[0], "Invoice #123") {
		t.Fatalf("expected document text in prompt")
	}
}

func TestAnalyzeParseFailureLeavesDocumentUnchanged(t *testing.T) {
	repo, client := newRecordingRepo(), &stubLLM{response: "Sorry, I cannot help with that."}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, "some text")

	_, err := svc.Analyze(context.Background(), "doc-1")
	var parseErr *AnalysisParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected AnalysisParseError, got %v", err)
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Fatalf("parse failure must not be reported as a service error")
	}
	stored, _ := repo.FindByID(context.Background(), "doc-1")
	if stored.Status != StatusPending || stored.AIMetadata != nil || repo.saves != 0 {
		t.Fatalf("expected unchanged document, got %+v saves=%d", stored, repo.saves)
	}
}

func TestAnalyzeServiceFailureLeavesDocumentUnchanged(t *testing.T) {
	repo, client := newRecordingRepo(), &stubLLM{err: errors.New("quota exhausted")}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, "some text")

	_, err := svc.Analyze(context.Background(), "doc-1")
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), "doc-1")
	if stored.Status != StatusPending || stored.AIMetadata != nil {
		t.Fatalf("expected unchanged document, got %+v", stored)
	}
}

func TestAnalyzePromptIsBounded(t *testing.T) {
	repo, client := newRecordingRepo(), &stubLLM{response: `{"summary":"s","type":"t","attributes":{}}`}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, strings.Repeat("a", MaxPromptChars)+strings.Repeat("Z", 2*MaxPromptChars))

	if _, err := svc.Analyze(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if strings.Contains(client.prompts[0], "Z") {
		t.Fatalf("prompt contains text past the limit")
	}
}

func TestAnalyzeAndGetUnknownID(t *testing.T) {
	client := &stubLLM{}
	svc := newTestService(&fakeStore{}, newRecordingRepo(), client)

	if _, err := svc.Analyze(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Analyze, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
	if client.calls() != 0 {
		t.Fatalf("expected no LLM call")
	}
}

func TestAnalyzeHonorsLock(t *testing.T) {
	repo, client := newRecordingRepo(), &stubLLM{response: fencedInvoice}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, "text")

	locker := &fakeLocker{held: true}
	svc.Locker = locker
	if _, err := svc.Analyze(context.Background(), "doc-1"); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}
	if client.calls() != 0 {
		t.Fatalf("expected no LLM call while locked")
	}

	locker.held = false
	if _, err := svc.Analyze(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if locker.unlocked != 1 || locker.keys[1] != "document:analyze:doc-1" {
		t.Fatalf("expected lock released once, unlocked=%d keys=%v", locker.unlocked, locker.keys)
	}

	locker.err = errors.New("redis down")
	if _, err := svc.Analyze(context.Background(), "doc-1"); err == nil || errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("expected lock backend error, got %v", err)
	}
}

func TestAnalyzeDeduplicatesConcurrentCalls(t *testing.T) {
	repo := newRecordingRepo()
	client := &stubLLM{response: fencedInvoice, block: make(chan struct{}), started: make(chan struct{}, 2)}
	svc := newTestService(&fakeStore{}, repo, client)
	seed(t, repo, "text")

	var wg sync.WaitGroup
	results := make([]Document, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Analyze(context.Background(), "doc-1")
	}()
	<-client.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = svc.Analyze(context.Background(), "doc-1")
	}()
	time.Sleep(50 * time.Millisecond)
	close(client.block)
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("Analyze[%d]: %v", i, errs[i])
		}
		if results[i].Status != StatusAnalyzed {
			t.Fatalf("expected analyzed result, got %+v", results[i])
		}
	}
	if client.calls() != 1 {
		t.Fatalf("expected one LLM call, got %d", client.calls())
	}
}
