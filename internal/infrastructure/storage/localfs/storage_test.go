package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func TestStorageSaveOpenDelete(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Save(ctx, "doc-1_a.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := s.Open(ctx, "doc-1_a.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	raw, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(raw) != "hello" {
		t.Fatalf("content = %q", raw)
	}

	if err := s.Delete(ctx, "doc-1_a.txt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	err = s.Delete(ctx, "doc-1_a.txt")
	if !domain.IsKind(err, domain.ErrStorage) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("second Delete() = %v, want storage failure wrapping not-exist", err)
	}
	if _, err := s.Open(ctx, "doc-1_a.txt"); err == nil {
		t.Fatal("expected open error after delete")
	}
}

func TestStorageRejectsEscapingKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"", "../outside", "/etc/passwd", ".."} {
		if err := s.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrStorage) {
			t.Fatalf("Save(%q) = %v, want storage failure", key, err)
		}
	}
}
