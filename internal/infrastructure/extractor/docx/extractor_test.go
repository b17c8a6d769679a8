package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

func buildDocx(t *testing.T, files map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return &buf
}

func TestExtractParagraphs(t *testing.T) {
	body := buildDocx(t, map[string]string{
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t>Employment contract</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>Party A</w:t><w:tab/><w:t>Party B</w:t></w:r></w:p>` +
			`</w:body></w:document>`,
	})

	got, err := NewExtractor().Extract(context.Background(), ports.SourceFile{Name: "contract.docx", Body: body})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Employment contract\nParty A\tParty B" {
		t.Fatalf("Extract() = %q", got)
	}
}

func TestExtractMissingDocumentPart(t *testing.T) {
	body := buildDocx(t, map[string]string{"xl/workbook.xml": "<workbook/>"})

	_, err := NewExtractor().Extract(context.Background(), ports.SourceFile{Name: "book.docx", Body: body})
	if err == nil || !strings.Contains(err.Error(), "word/document.xml not found") {
		t.Fatalf("Extract() error = %v", err)
	}
}

func TestExtractEmpty(t *testing.T) {
	if _, err := NewExtractor().Extract(context.Background(), ports.SourceFile{Body: strings.NewReader("")}); err == nil {
		t.Fatal("expected error")
	}
}
