package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// QueryUseCase serves the read path. It never waits on pipeline progress.
type QueryUseCase struct {
	repo       ports.DocumentRepository
	audit      ports.AuditTrail
	categories ports.CategoryRepository
	storage    ports.ObjectStorage
}

func NewQueryUseCase(
	repo ports.DocumentRepository,
	audit ports.AuditTrail,
	categories ports.CategoryRepository,
	storage ports.ObjectStorage,
) *QueryUseCase {
	return &QueryUseCase{
		repo:       repo,
		audit:      audit,
		categories: categories,
		storage:    storage,
	}
}

func (uc *QueryUseCase) Get(ctx context.Context, principal domain.Principal, id string) (*domain.Document, error) {
	return loadAccessible(ctx, uc.repo, principal, id)
}

// Open returns the stored bytes of a document the principal may access. The caller closes the reader.
func (uc *QueryUseCase) Open(ctx context.Context, principal domain.Principal, id string) (*domain.Document, io.ReadCloser, error) {
	doc, err := loadAccessible(ctx, uc.repo, principal, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, domain.WrapError(domain.ErrDocumentNotFound, "open document file", fmt.Errorf("key=%s", doc.StorageKey))
		}
		return nil, nil, fmt.Errorf("open document file: %w", err)
	}
	return doc, body, nil
}

// Search filters documents visible to principal. An unknown status token is ignored.
func (uc *QueryUseCase) Search(
	ctx context.Context,
	principal domain.Principal,
	text, category, status string,
	page domain.PageRequest,
) (domain.DocumentPage, error) {
	query := domain.SearchQuery{
		Text:     strings.TrimSpace(text),
		Category: strings.TrimSpace(category),
		Scope:    domain.ScopeFor(principal),
		Page:     page.Normalize(),
	}
	if parsed, ok := domain.ParseStatus(status); ok {
		query.Status = &parsed
	}

	result, err := uc.repo.Search(ctx, query)
	if err != nil {
		return domain.DocumentPage{}, fmt.Errorf("search documents: %w", err)
	}
	return result, nil
}

func (uc *QueryUseCase) AuditTrail(ctx context.Context, principal domain.Principal, id string) ([]domain.AuditEntry, error) {
	if _, err := loadAccessible(ctx, uc.repo, principal, id); err != nil {
		return nil, err
	}
	entries, err := uc.audit.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

func (uc *QueryUseCase) Stats(ctx context.Context, principal domain.Principal) (domain.Stats, error) {
	stats, err := uc.repo.Stats(ctx, domain.ScopeFor(principal))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("document stats: %w", err)
	}
	return stats, nil
}

func (uc *QueryUseCase) Categories(ctx context.Context) ([]domain.Category, error) {
	out, err := uc.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func loadAccessible(ctx context.Context, repo ports.DocumentRepository, principal domain.Principal, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load document", fmt.Errorf("document id is required"))
	}
	doc, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(doc.OwnerID) {
		return nil, domain.WrapError(domain.ErrAccessDenied, "load document", fmt.Errorf("id=%s", id))
	}
	return doc, nil
}
