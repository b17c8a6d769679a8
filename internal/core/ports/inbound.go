package ports

import (
	"context"
	"io"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// DocumentIngestor is the inbound contract for uploads.
type DocumentIngestor interface {
	Upload(ctx context.Context, principal domain.Principal, filename, contentType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor runs one document through the pipeline.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for documents, their audit trail and stats.
type DocumentReader interface {
	Get(ctx context.Context, principal domain.Principal, id string) (*domain.Document, error)
	Open(ctx context.Context, principal domain.Principal, id string) (*domain.Document, io.ReadCloser, error)
	Search(ctx context.Context, principal domain.Principal, text, category, status string, page domain.PageRequest) (domain.DocumentPage, error)
	AuditTrail(ctx context.Context, principal domain.Principal, id string) ([]domain.AuditEntry, error)
	Stats(ctx context.Context, principal domain.Principal) (domain.Stats, error)
	Categories(ctx context.Context) ([]domain.Category, error)
}

// DocumentManager is the inbound contract for user-driven mutations.
type DocumentManager interface {
	TriggerRun(ctx context.Context, principal domain.Principal, id string) error
	Reclassify(ctx context.Context, principal domain.Principal, id, category string) (*domain.Document, error)
	AddTag(ctx context.Context, principal domain.Principal, id, tag string) (*domain.Document, error)
	RemoveTag(ctx context.Context, principal domain.Principal, id, tag string) (*domain.Document, error)
	Delete(ctx context.Context, principal domain.Principal, id string) error
}

// EventStream opens live pipeline subscriptions.
type EventStream interface {
	Subscribe(documentID string) Subscription
	Unsubscribe(sub Subscription)
}

// Subscription delivers the events of one document until Done is closed.
type Subscription interface {
	DocumentID() string
	Events() <-chan domain.PipelineEvent
	Done() <-chan struct{}
}
