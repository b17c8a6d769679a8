package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

const (
	OutcomeProcessed = "processed"
	OutcomeError     = "error"
	OutcomeAborted   = "aborted"
)

// ProcessDocumentUseCase drives a document through extraction and classification.
// Each run owns its own locals; the only state shared between runs is the in-flight set.
type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	events     ports.EventPublisher
	observer   ports.RunObserver
	logger     *slog.Logger
	now        func() time.Time

	inFlight sync.Map
}

type ProcessOption func(*ProcessDocumentUseCase)

func WithRunObserver(observer ports.RunObserver) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if observer != nil {
			uc.observer = observer
		}
	}
}

func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithProcessClock(now func() time.Time) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	events ports.EventPublisher,
	opts ...ProcessOption,
) *ProcessDocumentUseCase {
	uc := &ProcessDocumentUseCase{
		repo:       repo,
		storage:    storage,
		extractor:  extractor,
		classifier: classifier,
		events:     events,
		observer:   noopObserver{},
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Active reports whether a run for documentID is executing in this process.
func (uc *ProcessDocumentUseCase) Active(documentID string) bool {
	_, ok := uc.inFlight.Load(documentID)
	return ok
}

// ProcessByID executes one run. Capability failures end the run in ERROR and return nil;
// only persistence failures and missing documents are returned.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if _, busy := uc.inFlight.LoadOrStore(documentID, struct{}{}); busy {
		return domain.WrapError(domain.ErrRunInProgress, "process document", fmt.Errorf("id=%s", documentID))
	}
	defer uc.inFlight.Delete(documentID)

	started := uc.now()
	uc.observer.RunStarted()
	outcome, err := uc.run(ctx, documentID)
	uc.observer.RunFinished(outcome, uc.now().Sub(started))

	if err != nil {
		uc.logger.Error("pipeline_run_aborted",
			"document_id", documentID,
			"error", err,
		)
		return err
	}
	uc.logger.Info("pipeline_run_finished",
		"document_id", documentID,
		"outcome", outcome,
		"duration_ms", float64(uc.now().Sub(started).Microseconds())/1000.0,
	)
	return nil
}

func (uc *ProcessDocumentUseCase) run(ctx context.Context, documentID string) (string, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return OutcomeAborted, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusProcessing {
		uc.logger.Warn("pipeline_stale_run_recovered", "document_id", documentID)
	}

	doc, err = uc.step(ctx, documentID, domain.DocumentChange{
		Status:       domain.StatusPtr(domain.StatusProcessing),
		ErrorMessage: domain.StringPtr(""),
	}, domain.AuditProcessStart, "Started processing document", "Processing started")
	if err != nil {
		return OutcomeAborted, err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return uc.fail(ctx, documentID, domain.ErrExtraction, err)
	}
	doc, err = uc.step(ctx, documentID, domain.DocumentChange{
		ExtractedText: &text,
	}, domain.AuditOCRDone, "OCR completed", "OCR completed")
	if err != nil {
		return OutcomeAborted, err
	}

	classification, err := uc.classify(ctx, doc)
	if err != nil {
		return uc.fail(ctx, documentID, domain.ErrClassification, err)
	}
	classified := "Classified as " + classification.Category
	if _, err := uc.step(ctx, documentID, domain.DocumentChange{
		CategoryName: &classification.Category,
		Confidence:   &classification.Confidence,
	}, domain.AuditClassified, classified, classified); err != nil {
		return OutcomeAborted, err
	}

	if _, err := uc.step(ctx, documentID, domain.DocumentChange{
		Status: domain.StatusPtr(domain.StatusProcessed),
	}, domain.AuditProcessComplete, "Processing completed successfully", "Processing completed"); err != nil {
		return OutcomeAborted, err
	}
	return OutcomeProcessed, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	body, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return "", err
	}
	defer body.Close()

	text, err := uc.extractor.Extract(ctx, ports.SourceFile{
		Name:        doc.OriginalName,
		ContentType: doc.ContentType,
		Size:        doc.SizeBytes,
		Body:        body,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty extracted text")
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) classify(ctx context.Context, doc *domain.Document) (domain.Classification, error) {
	classification, err := uc.classifier.Classify(ctx, *doc)
	if err != nil {
		return domain.Classification{}, err
	}
	classification.Category = strings.TrimSpace(classification.Category)
	if classification.Category == "" {
		return domain.Classification{}, errors.New("classifier returned empty category")
	}
	if classification.Confidence < 0 || classification.Confidence > 1 {
		return domain.Classification{}, fmt.Errorf("classifier confidence %.3f out of range [0,1]", classification.Confidence)
	}
	return classification, nil
}

// fail moves the document into ERROR keeping the capability message verbatim.
func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, kind error, cause error) (string, error) {
	message := cause.Error()
	uc.logger.Warn("pipeline_capability_failed",
		"document_id", documentID,
		"kind", kind.Error(),
		"error", message,
	)

	details := "Error: " + message
	if _, err := uc.step(ctx, documentID, domain.DocumentChange{
		Status:       domain.StatusPtr(domain.StatusError),
		ErrorMessage: &message,
	}, domain.AuditProcessError, details, details); err != nil {
		return OutcomeAborted, err
	}
	return OutcomeError, nil
}

// step persists change together with its audit entry, then publishes the matching event.
func (uc *ProcessDocumentUseCase) step(
	ctx context.Context,
	documentID string,
	change domain.DocumentChange,
	action domain.AuditAction,
	details string,
	payload string,
) (*domain.Document, error) {
	now := uc.now()
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Action:     action,
		Details:    details,
		Actor:      domain.SystemActor,
		Timestamp:  now,
	}

	doc, err := uc.repo.ApplyChange(ctx, documentID, change, entry)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "persist "+string(action), err)
	}

	if name, ok := domain.EventForAudit(action); ok {
		uc.events.Publish(ctx, domain.PipelineEvent{
			DocumentID: documentID,
			Name:       name,
			Payload:    payload,
			At:         now,
		})
	}
	return doc, nil
}

type noopObserver struct{}

func (noopObserver) RunStarted() {}

func (noopObserver) RunFinished(string, time.Duration) {}
