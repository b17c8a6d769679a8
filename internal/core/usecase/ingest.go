package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	dispatcher ports.RunDispatcher
	logger     *slog.Logger
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	dispatcher ports.RunDispatcher,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:       repo,
		storage:    storage,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Upload stores the bytes, creates the UPLOADED record and schedules a run.
// It returns as soon as the run is scheduled.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	principal domain.Principal,
	filename, contentType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("filename is required"))
	}
	if body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("body is required"))
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	counter := &countingReader{r: body}
	if err := uc.storage.Save(ctx, storageKey, counter); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:           id,
		StorageKey:   storageKey,
		OriginalName: filename,
		ContentType:  contentType,
		SizeBytes:    counter.n,
		Status:       domain.StatusUploaded,
		OwnerID:      principal.ID,
		OwnerName:    principal.Name,
		Tags:         []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		DocumentID: id,
		Action:     domain.AuditUploaded,
		Details:    "Uploaded " + filename,
		Actor:      actorName(principal),
		Timestamp:  now,
	}

	if err := uc.repo.Create(ctx, doc, entry); err != nil {
		if delErr := uc.storage.Delete(ctx, storageKey); delErr != nil {
			uc.logger.Warn("orphan_bytes_cleanup_failed", "storage_key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.dispatcher.Dispatch(ctx, doc.ID); err != nil {
		uc.logger.Error("pipeline_dispatch_failed", "document_id", doc.ID, "error", err)
		return nil, domain.WrapError(domain.ErrTemporary, "dispatch pipeline run", err)
	}

	return doc, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func actorName(principal domain.Principal) string {
	if principal.Name != "" {
		return principal.Name
	}
	if principal.ID != "" {
		return principal.ID
	}
	return domain.SystemActor
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
