package router

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

type namedExtractor string

func (n namedExtractor) Extract(_ context.Context, file ports.SourceFile) (string, error) {
	if _, err := io.ReadAll(file.Body); err != nil {
		return "", err
	}
	return string(n), nil
}

func newTestRouter() *Router {
	return New().
		Register(MimePlain, namedExtractor("text"), ".txt", ".md").
		Register(MimePDF, namedExtractor("pdf"), ".pdf").
		Register(MimeDOCX, namedExtractor("docx"), ".docx").
		Register(MimeXLSX, namedExtractor("xlsx"), ".xlsx").
		Fallback(namedExtractor("text"))
}

func TestRouterSelectsExtractor(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		contentType string
		want        string
	}{
		{name: "content type wins", file: "scan.bin", contentType: "application/pdf", want: "pdf"},
		{name: "parameters ignored", file: "a", contentType: "text/plain; charset=utf-8", want: "text"},
		{name: "extension for octet-stream", file: "Report.XLSX", contentType: "application/octet-stream", want: "xlsx"},
		{name: "extension for empty type", file: "notes.md", contentType: "", want: "text"},
		{name: "text fallback", file: "data", contentType: "text/csv", want: "text"},
	}

	r := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Extract(context.Background(), ports.SourceFile{
				Name:        tt.file,
				ContentType: tt.contentType,
				Body:        strings.NewReader("x"),
			})
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouterSniffsZipLayout(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	_, _ = w.Write([]byte("<w:document/>"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	got, err := newTestRouter().Extract(context.Background(), ports.SourceFile{
		Name:        "upload",
		ContentType: "application/zip",
		Body:        &buf,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "docx" {
		t.Fatalf("Extract() = %q", got)
	}
}

func TestRouterUnsupported(t *testing.T) {
	_, err := newTestRouter().Extract(context.Background(), ports.SourceFile{
		Name:        "photo.png",
		ContentType: "image/png",
		Body:        strings.NewReader("x"),
	})
	if err == nil || err.Error() != "unsupported format: image/png" {
		t.Fatalf("Extract() error = %v", err)
	}
}

func TestRouterBoundsZipSniffing(t *testing.T) {
	body := strings.NewReader(strings.Repeat("z", 64))
	_, err := newTestRouter().ArchiveLimit(16).Extract(context.Background(), ports.SourceFile{
		Name:        "big.zip",
		ContentType: "application/zip",
		Body:        body,
	})
	if err == nil || !strings.Contains(err.Error(), "exceeds 16 bytes") {
		t.Fatalf("expected size error, got %v", err)
	}
	if body.Len() != 64-17 {
		t.Fatalf("read %d bytes, want limit+1", 64-body.Len())
	}
}
