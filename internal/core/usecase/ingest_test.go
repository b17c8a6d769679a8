package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/repository/memory"
)

type dispatcherFake struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *dispatcherFake) Dispatch(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, documentID)
	return nil
}

type createFailRepo struct {
	*memory.Store
}

func (createFailRepo) Create(context.Context, *domain.Document, domain.AuditEntry) error {
	return errors.New("insert failed")
}

var alice = domain.Principal{ID: "user-1", Name: "alice"}

func TestIngestUploadSuccess(t *testing.T) {
	store := memory.NewStore()
	storage := newStorageFake()
	dispatcher := &dispatcherFake{}
	uc := NewIngestDocumentUseCase(store, storage, dispatcher, nil)

	doc, err := uc.Upload(context.Background(), alice, "my report.pdf", "application/pdf", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("status = %s, want UPLOADED", doc.Status)
	}
	if doc.SizeBytes != int64(len("payload")) {
		t.Fatalf("size = %d", doc.SizeBytes)
	}
	if doc.OwnerID != "user-1" || doc.OwnerName != "alice" {
		t.Fatalf("owner = %s/%s", doc.OwnerID, doc.OwnerName)
	}
	if !strings.HasPrefix(doc.StorageKey, doc.ID+"_") || !strings.HasSuffix(doc.StorageKey, "my_report.pdf") {
		t.Fatalf("storage key = %q", doc.StorageKey)
	}
	if string(storage.objects[doc.StorageKey]) != "payload" {
		t.Fatalf("stored bytes = %q", storage.objects[doc.StorageKey])
	}
	if len(dispatcher.ids) != 1 || dispatcher.ids[0] != doc.ID {
		t.Fatalf("dispatched = %v", dispatcher.ids)
	}

	entries, _ := store.ListByDocument(context.Background(), doc.ID)
	if len(entries) != 1 || entries[0].Action != domain.AuditUploaded || entries[0].Actor != "alice" {
		t.Fatalf("audit = %+v", entries)
	}
	if doc.ExtractedText != "" {
		t.Fatal("uploaded document must not carry extracted text")
	}
}

func TestIngestUploadDefaultsContentType(t *testing.T) {
	uc := NewIngestDocumentUseCase(memory.NewStore(), newStorageFake(), &dispatcherFake{}, nil)
	doc, err := uc.Upload(context.Background(), alice, "a.bin", "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ContentType != "application/octet-stream" {
		t.Fatalf("content type = %q", doc.ContentType)
	}
}

func TestIngestUploadRejectsEmptyFilename(t *testing.T) {
	uc := NewIngestDocumentUseCase(memory.NewStore(), newStorageFake(), &dispatcherFake{}, nil)
	_, err := uc.Upload(context.Background(), alice, "  ", "text/plain", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIngestUploadStorageError(t *testing.T) {
	storage := newStorageFake()
	storage.saveErr = errors.New("disk full")
	dispatcher := &dispatcherFake{}
	uc := NewIngestDocumentUseCase(memory.NewStore(), storage, dispatcher, nil)

	if _, err := uc.Upload(context.Background(), alice, "a.txt", "text/plain", strings.NewReader("x")); err == nil {
		t.Fatal("expected error")
	}
	if len(dispatcher.ids) != 0 {
		t.Fatal("nothing should be dispatched")
	}
}

func TestIngestUploadCreateFailureRemovesBytes(t *testing.T) {
	storage := newStorageFake()
	dispatcher := &dispatcherFake{}
	uc := NewIngestDocumentUseCase(createFailRepo{memory.NewStore()}, storage, dispatcher, nil)

	if _, err := uc.Upload(context.Background(), alice, "a.txt", "text/plain", strings.NewReader("x")); err == nil {
		t.Fatal("expected error")
	}
	if len(storage.deleted) != 1 || len(storage.objects) != 0 {
		t.Fatalf("orphan bytes left: deleted=%v objects=%d", storage.deleted, len(storage.objects))
	}
	if len(dispatcher.ids) != 0 {
		t.Fatal("nothing should be dispatched")
	}
}

func TestIngestUploadDispatchError(t *testing.T) {
	store := memory.NewStore()
	uc := NewIngestDocumentUseCase(store, newStorageFake(), &dispatcherFake{err: errors.New("queue down")}, nil)

	_, err := uc.Upload(context.Background(), alice, "a.txt", "text/plain", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}

	page, _ := store.Search(context.Background(), domain.SearchQuery{Scope: domain.AllDocuments()})
	if page.Total != 1 || page.Items[0].Status != domain.StatusUploaded {
		t.Fatalf("record should stay UPLOADED for a later trigger: %+v", page)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"my report.pdf":    "my_report.pdf",
		"../../etc/passwd": "passwd",
		"счёт.txt":         "____.txt",
		"":                 "document.bin",
		"a-b_c.1.docx":     "a-b_c.1.docx",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
