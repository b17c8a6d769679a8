package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	// Create inserts the document together with its creation audit entry.
	Create(ctx context.Context, doc *domain.Document, entry domain.AuditEntry) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// ApplyChange writes change and entry as one unit; neither is visible if either fails.
	ApplyChange(ctx context.Context, id string, change domain.DocumentChange, entry domain.AuditEntry) (*domain.Document, error)
	AddTag(ctx context.Context, id, tag string) (*domain.Document, error)
	RemoveTag(ctx context.Context, id, tag string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query domain.SearchQuery) (domain.DocumentPage, error)
	Stats(ctx context.Context, scope domain.Scope) (domain.Stats, error)
}

// AuditTrail reads the append-only audit log.
type AuditTrail interface {
	ListByDocument(ctx context.Context, documentID string) ([]domain.AuditEntry, error)
}

// CategoryRepository reads and seeds categories.
type CategoryRepository interface {
	EnsureCategory(ctx context.Context, name, description string) (domain.Category, error)
	GetCategoryByName(ctx context.Context, name string) (domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// SourceFile is the handle passed to a TextExtractor.
type SourceFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, file SourceFile) (string, error)
}

// DocumentClassifier assigns a category and confidence to a document with extracted text.
type DocumentClassifier interface {
	Classify(ctx context.Context, doc domain.Document) (domain.Classification, error)
}

// RunDispatcher schedules a pipeline run and returns without waiting for it.
type RunDispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// EventPublisher delivers pipeline events on a best-effort basis.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.PipelineEvent)
}

// RunObserver records pipeline run outcomes.
type RunObserver interface {
	RunStarted()
	RunFinished(outcome string, duration time.Duration)
}
