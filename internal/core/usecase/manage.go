package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// RunTracker reports in-process pipeline activity for a document.
type RunTracker interface {
	Active(documentID string) bool
}

type ManageDocumentUseCase struct {
	repo       ports.DocumentRepository
	categories ports.CategoryRepository
	storage    ports.ObjectStorage
	dispatcher ports.RunDispatcher
	runs       RunTracker
	logger     *slog.Logger
}

func NewManageDocumentUseCase(
	repo ports.DocumentRepository,
	categories ports.CategoryRepository,
	storage ports.ObjectStorage,
	dispatcher ports.RunDispatcher,
	runs RunTracker,
	logger *slog.Logger,
) *ManageDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManageDocumentUseCase{
		repo:       repo,
		categories: categories,
		storage:    storage,
		dispatcher: dispatcher,
		runs:       runs,
		logger:     logger,
	}
}

// TriggerRun schedules a reprocess of an existing document.
func (uc *ManageDocumentUseCase) TriggerRun(ctx context.Context, principal domain.Principal, id string) error {
	doc, err := loadAccessible(ctx, uc.repo, principal, id)
	if err != nil {
		return err
	}
	if doc.Status == domain.StatusProcessing || (uc.runs != nil && uc.runs.Active(doc.ID)) {
		return domain.WrapError(domain.ErrRunInProgress, "trigger run", fmt.Errorf("id=%s", doc.ID))
	}
	if err := uc.dispatcher.Dispatch(ctx, doc.ID); err != nil {
		return domain.WrapError(domain.ErrTemporary, "dispatch pipeline run", err)
	}
	return nil
}

// RecoverStale re-dispatches documents left in PROCESSING by a previous process.
// It is meant to run once at startup, before new uploads are accepted.
func (uc *ManageDocumentUseCase) RecoverStale(ctx context.Context) (int, error) {
	status := domain.StatusProcessing
	query := domain.SearchQuery{
		Status: &status,
		Scope:  domain.AllDocuments(),
		Page:   domain.PageRequest{Size: domain.MaxPageSize},
	}

	var ids []string
	for {
		page, err := uc.repo.Search(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("list stale runs: %w", err)
		}
		for _, doc := range page.Items {
			ids = append(ids, doc.ID)
		}
		if query.Page.Page+1 >= page.TotalPages {
			break
		}
		query.Page.Page++
	}

	recovered := 0
	for _, id := range ids {
		if uc.runs != nil && uc.runs.Active(id) {
			continue
		}
		if err := uc.dispatcher.Dispatch(ctx, id); err != nil {
			uc.logger.Error("stale_run_dispatch_failed", "document_id", id, "error", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

func (uc *ManageDocumentUseCase) Reclassify(ctx context.Context, principal domain.Principal, id, category string) (*domain.Document, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reclassify", errors.New("category is required"))
	}
	if _, err := loadAccessible(ctx, uc.repo, principal, id); err != nil {
		return nil, err
	}
	if _, err := uc.categories.GetCategoryByName(ctx, category); err != nil {
		return nil, err
	}

	doc, err := uc.repo.ApplyChange(ctx, id, domain.DocumentChange{
		CategoryName: &category,
	}, domain.AuditEntry{
		ID:         uuid.NewString(),
		DocumentID: id,
		Action:     domain.AuditReclassified,
		Details:    "Reclassified as " + category,
		Actor:      actorName(principal),
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("reclassify document: %w", err)
	}
	return doc, nil
}

func (uc *ManageDocumentUseCase) AddTag(ctx context.Context, principal domain.Principal, id, tag string) (*domain.Document, error) {
	tag, err := normalizeTag(tag)
	if err != nil {
		return nil, err
	}
	if _, err := loadAccessible(ctx, uc.repo, principal, id); err != nil {
		return nil, err
	}
	doc, err := uc.repo.AddTag(ctx, id, tag)
	if err != nil {
		return nil, fmt.Errorf("add tag: %w", err)
	}
	return doc, nil
}

func (uc *ManageDocumentUseCase) RemoveTag(ctx context.Context, principal domain.Principal, id, tag string) (*domain.Document, error) {
	tag, err := normalizeTag(tag)
	if err != nil {
		return nil, err
	}
	if _, err := loadAccessible(ctx, uc.repo, principal, id); err != nil {
		return nil, err
	}
	doc, err := uc.repo.RemoveTag(ctx, id, tag)
	if err != nil {
		return nil, fmt.Errorf("remove tag: %w", err)
	}
	return doc, nil
}

// Delete removes the stored bytes and the record. A failed byte delete is logged and
// does not block the record delete.
func (uc *ManageDocumentUseCase) Delete(ctx context.Context, principal domain.Principal, id string) error {
	doc, err := loadAccessible(ctx, uc.repo, principal, id)
	if err != nil {
		return err
	}

	if err := uc.storage.Delete(ctx, doc.StorageKey); err != nil {
		uc.logger.Warn("document_bytes_delete_failed",
			"document_id", doc.ID,
			"storage_key", doc.StorageKey,
			"error", err,
		)
	}

	if err := uc.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func normalizeTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "tag", errors.New("tag is required"))
	}
	return tag, nil
}
