package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func TestCategoryRepositoryGetByNameNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM categories WHERE name").
		WithArgs("UNKNOWN").
		WillReturnError(sql.ErrNoRows)

	_, err = NewCategoryRepository(db).GetCategoryByName(context.Background(), "UNKNOWN")
	if !domain.IsKind(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCategoryRepositoryEnsureUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("ON CONFLICT \\(name\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), "INVOICE", "Invoices and bills").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description"}).AddRow("cat-1", "INVOICE", "Invoices and bills"))

	cat, err := NewCategoryRepository(db).EnsureCategory(context.Background(), " INVOICE ", "Invoices and bills")
	if err != nil {
		t.Fatalf("EnsureCategory() error = %v", err)
	}
	if cat.ID != "cat-1" {
		t.Fatalf("category = %+v", cat)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCategoryRepositoryDeleteNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM categories").
		WithArgs("cat-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewCategoryRepository(db).DeleteCategory(context.Background(), "cat-x"); !domain.IsKind(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestAuditRepositoryListsInCommitOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`ORDER BY created_at ASC, seq ASC`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "action", "details", "actor", "created_at"}).
			AddRow("a-1", "doc-1", "PROCESS_START", "Started processing document", "SYSTEM", now).
			AddRow("a-2", "doc-1", "OCR_DONE", "OCR completed", "SYSTEM", now))

	entries, err := NewAuditRepository(db).ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(entries) != 2 || entries[1].Action != domain.AuditOCRDone {
		t.Fatalf("entries = %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
