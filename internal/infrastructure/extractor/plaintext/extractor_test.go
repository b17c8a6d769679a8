package plaintext

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

func TestExtractTrimsText(t *testing.T) {
	got, err := NewExtractor().Extract(context.Background(), ports.SourceFile{
		Name: "note.txt",
		Body: strings.NewReader("\uFEFF  Invoice #42\n"),
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Invoice #42" {
		t.Fatalf("Extract() = %q", got)
	}
}

func TestExtractRejectsBinary(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), ports.SourceFile{
		Name: "photo.png",
		Body: bytes.NewReader([]byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}),
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported binary format: photo.png") {
		t.Fatalf("Extract() error = %v", err)
	}
}
