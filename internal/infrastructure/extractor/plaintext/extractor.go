package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// MaxBytes bounds how much of a text file is read.
const MaxBytes = 32 << 20

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, file ports.SourceFile) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(file.Body, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if len(raw) > MaxBytes {
		return "", fmt.Errorf("text document too large: %s", file.Name)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary format: %s", file.Name)
	}
	return strings.TrimSpace(strings.TrimPrefix(string(raw), "\uFEFF")), nil
}
