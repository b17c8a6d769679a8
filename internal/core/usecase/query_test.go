package usecase

import (
	"context"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/repository/memory"
)

func newQuery(store *memory.Store) *QueryUseCase {
	return NewQueryUseCase(store, store, store, newStorageFake())
}

func TestQueryGetScope(t *testing.T) {
	store := memory.NewStore()
	seedOwned(t, store, "doc-1", alice.ID, domain.StatusUploaded)
	uc := newQuery(store)

	if _, err := uc.Get(context.Background(), alice, "doc-1"); err != nil {
		t.Fatalf("owner Get() error = %v", err)
	}
	if _, err := uc.Get(context.Background(), admin, "doc-1"); err != nil {
		t.Fatalf("admin Get() error = %v", err)
	}
	if _, err := uc.Get(context.Background(), bob, "doc-1"); !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if _, err := uc.Get(context.Background(), alice, ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestQueryOpenStreamsStoredBytes(t *testing.T) {
	store := memory.NewStore()
	seedOwned(t, store, "doc-1", alice.ID, domain.StatusProcessed)
	storage := newStorageFake()
	storage.objects["doc-1_f.txt"] = []byte("invoice body")
	uc := NewQueryUseCase(store, store, store, storage)

	doc, body, err := uc.Open(context.Background(), alice, "doc-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer body.Close()
	raw, _ := io.ReadAll(body)
	if doc.ID != "doc-1" || string(raw) != "invoice body" {
		t.Fatalf("Open() = %s %q", doc.ID, raw)
	}

	if _, _, err := uc.Open(context.Background(), bob, "doc-1"); !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestQueryOpenMissingFileIsNotFound(t *testing.T) {
	store := memory.NewStore()
	seedOwned(t, store, "doc-1", alice.ID, domain.StatusProcessed)
	storage := newStorageFake()
	storage.openErr = domain.WrapError(domain.ErrStorage, "open file", fs.ErrNotExist)
	uc := NewQueryUseCase(store, store, store, storage)

	if _, _, err := uc.Open(context.Background(), alice, "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuerySearchIgnoresUnknownStatus(t *testing.T) {
	store := memory.NewStore()
	seedOwned(t, store, "doc-1", alice.ID, domain.StatusUploaded)
	seedOwned(t, store, "doc-2", alice.ID, domain.StatusProcessed)
	uc := newQuery(store)

	page, err := uc.Search(context.Background(), alice, "", "", "bogus", domain.PageRequest{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want filter ignored", page.Total)
	}

	page, err = uc.Search(context.Background(), alice, "", "", "processed", domain.PageRequest{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "doc-2" {
		t.Fatalf("page = %+v", page)
	}
}

func TestQuerySearchScopesToOwner(t *testing.T) {
	store := memory.NewStore()
	seedOwned(t, store, "mine", alice.ID, domain.StatusUploaded)
	seedOwned(t, store, "theirs", bob.ID, domain.StatusUploaded)
	uc := newQuery(store)

	page, _ := uc.Search(context.Background(), alice, "", "", "", domain.PageRequest{})
	if page.Total != 1 || page.Items[0].ID != "mine" {
		t.Fatalf("owner page = %+v", page)
	}
	page, _ = uc.Search(context.Background(), admin, "", "", "", domain.PageRequest{})
	if page.Total != 2 {
		t.Fatalf("admin total = %d", page.Total)
	}
}

func TestQuerySearchPageDefaults(t *testing.T) {
	store := memory.NewStore()
	uc := newQuery(store)
	page, err := uc.Search(context.Background(), alice, "", "", "", domain.PageRequest{Page: -3, Size: 1000})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if page.Page != 0 || page.Size != domain.MaxPageSize || page.Items == nil {
		t.Fatalf("page = %+v", page)
	}
}

// A document whose pipeline is still running is already visible to searches.
func TestQuerySearchSeesInFlightDocuments(t *testing.T) {
	fx := newProcessFixture()
	fx.seed(t, "doc-1", "Invoice 99")
	fx.extractor.block = make(chan struct{})
	uc := fx.useCase(nil)
	done := make(chan error, 1)
	go func() { done <- uc.ProcessByID(context.Background(), "doc-1") }()

	owner := domain.Principal{ID: "user-1"}
	query := newQuery(fx.store)
	deadline := time.Now().Add(2 * time.Second)
	for {
		page, err := query.Search(context.Background(), owner, "", "", "PROCESSING", domain.PageRequest{})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if page.Total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("document never observed in PROCESSING")
		}
		time.Sleep(time.Millisecond)
	}

	close(fx.extractor.block)
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	page, _ := query.Search(context.Background(), owner, "invoice", "INVOICE", "PROCESSED", domain.PageRequest{})
	if page.Total != 1 {
		t.Fatalf("processed page = %+v", page)
	}
}

func TestQueryAuditTrailAndStats(t *testing.T) {
	fx := newProcessFixture()
	fx.seed(t, "doc-1", "text")
	if err := fx.useCase(nil).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	uc := newQuery(fx.store)
	owner := domain.Principal{ID: "user-1"}

	entries, err := uc.AuditTrail(context.Background(), owner, "doc-1")
	if err != nil {
		t.Fatalf("AuditTrail() error = %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	if _, err := uc.AuditTrail(context.Background(), bob, "doc-1"); !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}

	stats, err := uc.Stats(context.Background(), owner)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalDocuments != 1 || stats.ProcessedDocuments != 1 || stats.AverageConfidence != 0.95 {
		t.Fatalf("stats = %+v", stats)
	}

	categories, err := uc.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(categories) != 1 || categories[0].Name != "INVOICE" {
		t.Fatalf("categories = %+v", categories)
	}
}
